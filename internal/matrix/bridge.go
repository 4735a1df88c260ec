// ABOUTME: Matrix bridge that feeds room messages to the command dispatcher
// ABOUTME: Handles client sync, allow lists, and posting replies back to rooms

package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/goal-tracker/internal/clock"
	"github.com/2389/goal-tracker/internal/commands"
	"github.com/2389/goal-tracker/internal/config"
)

// typingTimeout is how long the typing indicator shows.
const typingTimeout = 30 * time.Second

// networkTimeout bounds each Matrix API call.
const networkTimeout = 10 * time.Second

// Handler runs one chat command.
type Handler interface {
	Handle(ctx context.Context, req commands.Request) (commands.Reply, bool)
}

// Sender posts to Matrix rooms.
type Sender interface {
	Send(ctx context.Context, roomID id.RoomID, content *event.MessageEventContent) error
	Typing(ctx context.Context, roomID id.RoomID, typing bool) error
}

// clientSender adapts a mautrix client to Sender.
type clientSender struct {
	client *mautrix.Client
}

func (s clientSender) Send(ctx context.Context, roomID id.RoomID, content *event.MessageEventContent) error {
	_, err := s.client.SendMessageEvent(ctx, roomID, event.EventMessage, content)
	return err
}

func (s clientSender) Typing(ctx context.Context, roomID id.RoomID, typing bool) error {
	var timeout time.Duration
	if typing {
		timeout = typingTimeout
	}
	_, err := s.client.UserTyping(ctx, roomID, typing, timeout)
	return err
}

// Bridge connects Matrix rooms to the command dispatcher.
type Bridge struct {
	cfg     config.MatrixConfig
	client  *mautrix.Client
	sender  Sender
	handler Handler
	clock   clock.Clock
	logger  *slog.Logger

	// startedAt filters out history replayed by the initial sync.
	startedAt time.Time

	ctx context.Context
	wg  sync.WaitGroup
}

// NewBridge creates a bridge logged in with the configured access token.
func NewBridge(cfg config.MatrixConfig, handler Handler, clk clock.Clock, logger *slog.Logger) (*Bridge, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	b := newBridge(cfg, clientSender{client: client}, handler, clk, logger)
	b.client = client
	return b, nil
}

func newBridge(cfg config.MatrixConfig, sender Sender, handler Handler, clk clock.Clock, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		cfg:       cfg,
		sender:    sender,
		handler:   handler,
		clock:     clk,
		logger:    logger.With("component", "matrix"),
		startedAt: clk.Now(),
		ctx:       context.Background(),
	}
}

// Run syncs with the homeserver and blocks until ctx is cancelled or the
// sync fails. In-flight commands are allowed to finish before it returns.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("starting matrix bridge",
		"homeserver", b.cfg.Homeserver,
		"user_id", b.cfg.UserID,
	)

	var cancel context.CancelFunc
	b.ctx, cancel = context.WithCancel(ctx)
	defer cancel()
	defer b.wg.Wait()

	syncer, ok := b.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, b.handleMessageEvent)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.client.SyncWithContext(b.ctx)
	}()

	b.logger.Info("matrix bridge running")

	select {
	case <-ctx.Done():
		b.logger.Info("shutting down matrix bridge")
		return nil
	case err := <-syncErr:
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// Wait blocks until every in-flight command has replied.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// handleMessageEvent filters a room message and dispatches it in the background.
func (b *Bridge) handleMessageEvent(_ context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(b.cfg.UserID) {
		return
	}
	if time.UnixMilli(evt.Timestamp).Before(b.startedAt) {
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return
	}

	roomID := evt.RoomID.String()
	if !allowed(b.cfg.AllowedRooms, roomID) {
		b.logger.Debug("ignoring message from non-allowed room", "room", roomID)
		return
	}
	if !allowed(b.cfg.AllowedUsers, evt.Sender.String()) {
		b.logger.Debug("ignoring message from non-allowed user", "sender", evt.Sender.String())
		return
	}

	verb, args, ok := ParseCommand(content.Body, b.cfg.CommandPrefix)
	if !ok {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.process(b.ctx, evt.RoomID, evt.Sender, verb, args)
	}()
}

// process runs one command and posts the reply to the room it came from.
func (b *Bridge) process(ctx context.Context, roomID id.RoomID, sender id.UserID, verb string, args []string) {
	if v, _, _ := commands.Resolve(verb); v == commands.VerbAnalyze {
		b.setTyping(roomID, true)
		defer b.setTyping(roomID, false)
	}

	reply, handled := b.handler.Handle(ctx, commands.Request{
		Verb:     verb,
		CallerID: sender.String(),
		Args:     args,
		Notify: func(r commands.Reply) {
			b.send(roomID, r)
		},
	})
	if !handled {
		return
	}

	b.logger.Info("replying to command",
		"room", roomID.String(),
		"sender", sender.String(),
		"verb", verb,
		"length", len(reply.Text),
	)
	b.send(roomID, reply)
}

// send posts reply to the room. It uses its own timeout so replies still
// go out while the bridge is shutting down.
func (b *Bridge) send(roomID id.RoomID, reply commands.Reply) {
	if reply.Text == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), networkTimeout)
	defer cancel()

	if err := b.sender.Send(ctx, roomID, ReplyContent(reply)); err != nil {
		b.logger.Error("failed to send message", "room", roomID.String(), "error", err)
	}
}

func (b *Bridge) setTyping(roomID id.RoomID, typing bool) {
	ctx, cancel := context.WithTimeout(context.Background(), networkTimeout)
	defer cancel()

	if err := b.sender.Typing(ctx, roomID, typing); err != nil {
		b.logger.Debug("failed to set typing indicator", "room", roomID.String(), "error", err)
	}
}

// ParseCommand splits a message body into a command word and its arguments.
// With a non-empty prefix, bodies that do not start with it are rejected.
func ParseCommand(body, prefix string) (string, []string, bool) {
	body = strings.TrimSpace(body)
	if prefix != "" {
		if !strings.HasPrefix(body, prefix) {
			return "", nil, false
		}
		body = strings.TrimPrefix(body, prefix)
	}

	fields := strings.Fields(body)
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}

// allowed reports whether v is in list. An empty list allows everything.
func allowed(list []string, v string) bool {
	return len(list) == 0 || slices.Contains(list, v)
}
