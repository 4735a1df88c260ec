// ABOUTME: Converts dispatcher replies into Matrix message content
// ABOUTME: Markdown replies are rendered to HTML with goldmark

package matrix

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
	"maunium.net/go/mautrix/event"

	"github.com/2389/goal-tracker/internal/commands"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(goldmarkhtml.WithHardWraps()),
)

// RenderMarkdown converts markdown source to an HTML fragment.
func RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// ReplyContent builds the notice sent for reply. Markdown that fails to
// render is sent as plain text.
func ReplyContent(reply commands.Reply) *event.MessageEventContent {
	content := &event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    reply.Text,
	}
	if !reply.Markdown {
		return content
	}

	html, err := RenderMarkdown(reply.Text)
	if err != nil {
		return content
	}
	content.Format = event.FormatHTML
	content.FormattedBody = html
	return content
}
