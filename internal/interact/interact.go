// Package interact is the boundary between the economy core and whatever
// chat surface carries the conversation.
package interact

import (
	"context"
	"time"
)

// Conversation is bound to the channel a command arrived on.
type Conversation interface {
	// Confirm asks responder a yes/no question. Timeouts and clicks from
	// anyone else resolve to false without an error.
	Confirm(ctx context.Context, responder int64, prompt string, timeout time.Duration) (bool, error)
	Send(ctx context.Context, text string) (Message, error)
	// ChannelID identifies the channel so it can be reopened later.
	ChannelID() string
}

// Message is a previously sent message that can be re-rendered in place.
type Message interface {
	Edit(ctx context.Context, text string) error
}

// Nop answers every prompt with no and discards output.
type Nop struct{}

func (Nop) Confirm(context.Context, int64, string, time.Duration) (bool, error) {
	return false, nil
}

func (Nop) Send(context.Context, string) (Message, error) {
	return nopMessage{}, nil
}

func (Nop) ChannelID() string { return "" }

type nopMessage struct{}

func (nopMessage) Edit(context.Context, string) error { return nil }
