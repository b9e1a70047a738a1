// Package transport defines the outbound delivery contract the notifier
// pipeline writes reminder messages to.
package transport

import (
	"context"
	"strings"

	"duebot/pkg/logx"
)

// Sender delivers a text message to its configured destination.
type Sender interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// LogSender writes messages to the log. It is the fallback when no chat
// transport is configured, so reminders still show up somewhere.
type LogSender struct {
	Log logx.Logger
}

func (s LogSender) Name() string { return "log" }

func (s LogSender) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := s.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log.Info("reminder", logx.String("text", strings.TrimSpace(text)))
	return nil
}
