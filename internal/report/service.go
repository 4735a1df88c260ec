// ABOUTME: Report service that serves cached reports or generates fresh ones
// ABOUTME: Builds the history payload, retries the generator, and collapses concurrent requests

package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/2389/goal-tracker/internal/apperror"
	"github.com/2389/goal-tracker/internal/clock"
	"github.com/2389/goal-tracker/internal/store"
)

// Defaults for report generation.
const (
	DefaultWindowDays  = 30
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2 * time.Second
)

// Instructions precede the history payload in every prompt.
const Instructions = `You are a supportive habit coach. The JSON below lists one user's
check-ins for the recent period, grouped by goal, with local (+08:00) times.
Write a short report in Markdown: highlight consistency and streaks, point
out goals that slipped, and suggest one concrete next step. Do not repeat
the raw data.`

// Generator turns a prompt into report text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// HistorySource supplies the check-ins a report is built from.
type HistorySource interface {
	RecentCheckins(ctx context.Context, userID string, days int) ([]store.GoalHistory, error)
}

// Report is a generated or cached analysis.
type Report struct {
	Text        string
	GeneratedAt time.Time
	FromCache   bool
}

// Service serves reports, generating at most one per user at a time.
type Service struct {
	cache     *FileCache
	history   HistorySource
	generator Generator
	clock     clock.Clock
	logger    *slog.Logger

	windowDays  int
	maxAttempts int
	retryDelay  time.Duration

	group singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithWindowDays sets how many days of history feed a report.
func WithWindowDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.windowDays = days
		}
	}
}

// WithRetry sets the total number of generator attempts and the pause between them.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if delay > 0 {
			s.retryDelay = delay
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a report service.
func NewService(cache *FileCache, history HistorySource, generator Generator, clk clock.Clock, opts ...Option) *Service {
	s := &Service{
		cache:       cache,
		history:     history,
		generator:   generator,
		clock:       clk,
		logger:      slog.Default(),
		windowDays:  DefaultWindowDays,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "report")
	return s
}

// GetOrGenerate returns the user's cached report if it is fresh, otherwise
// generates, caches, and returns a new one. A user with no check-ins in the
// window gets a no-data error and the generator is not called.
func (s *Service) GetOrGenerate(ctx context.Context, userID string) (*Report, error) {
	entry, ok, err := s.cache.Get(userID)
	if err != nil {
		s.logger.Warn("report cache unreadable, regenerating", "user_id", userID, "error", err)
	}
	if ok {
		return &Report{Text: entry.Text, GeneratedAt: entry.GeneratedAt, FromCache: true}, nil
	}

	v, err, shared := s.group.Do(userID, func() (any, error) {
		return s.generate(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("joined in-flight report generation", "user_id", userID)
	}
	return v.(*Report), nil
}

func (s *Service) generate(ctx context.Context, userID string) (*Report, error) {
	const op = "report"

	history, err := s.history.RecentCheckins(ctx, userID, s.windowDays)
	if err != nil {
		return nil, apperror.Storage(op, err)
	}
	if len(history) == 0 {
		return nil, apperror.NoData(op, fmt.Sprintf("no check-ins in the last %d days", s.windowDays))
	}

	now := s.clock.Now()
	prompt, err := BuildPrompt(userID, s.windowDays, now, history)
	if err != nil {
		return nil, fmt.Errorf("building prompt: %w", err)
	}

	raw, err := s.callWithRetry(ctx, userID, prompt)
	if err != nil {
		return nil, apperror.External(op, err)
	}

	text := Clean(raw)
	if text == "" {
		return nil, apperror.External(op, errors.New("generator returned an empty report"))
	}

	if err := s.cache.Put(userID, Entry{Text: text, GeneratedAt: now}); err != nil {
		s.logger.Warn("caching report failed", "user_id", userID, "error", err)
	}

	s.logger.Info("generated report", "user_id", userID, "goals", len(history))
	return &Report{Text: text, GeneratedAt: now}, nil
}

func (s *Service) callWithRetry(ctx context.Context, userID, prompt string) (string, error) {
	backoff := retry.WithMaxRetries(uint64(s.maxAttempts-1), retry.NewConstant(s.retryDelay))

	var out string
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		text, err := s.generator.Generate(ctx, prompt)
		if err != nil {
			s.logger.Warn("report generation attempt failed",
				"user_id", userID,
				"attempt", attempt,
				"max_attempts", s.maxAttempts,
				"error", err)
			return retry.RetryableError(err)
		}
		out = text
		return nil
	})
	return out, err
}

type promptPayload struct {
	UserID      string        `json:"user_id"`
	WindowDays  int           `json:"window_days"`
	GeneratedOn string        `json:"generated_on"`
	Goals       []goalPayload `json:"goals"`
}

type goalPayload struct {
	Goal     string   `json:"goal"`
	Count    int      `json:"count"`
	Checkins []string `json:"checkins"`
}

// BuildPrompt renders the instructions followed by the user's history as JSON.
func BuildPrompt(userID string, windowDays int, now time.Time, history []store.GoalHistory) (string, error) {
	payload := promptPayload{
		UserID:      userID,
		WindowDays:  windowDays,
		GeneratedOn: clock.LocalDate(now),
		Goals:       make([]goalPayload, 0, len(history)),
	}
	for _, h := range history {
		g := goalPayload{Goal: h.Goal, Count: len(h.Times), Checkins: make([]string, 0, len(h.Times))}
		for _, t := range h.Times {
			g.Checkins = append(g.Checkins, clock.Local(t).Format("2006-01-02 15:04"))
		}
		payload.Goals = append(payload.Goals, g)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return Instructions + "\n\n" + string(data), nil
}
