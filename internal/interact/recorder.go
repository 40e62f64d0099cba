package interact

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Prompt is one Confirm call seen by a Recorder.
type Prompt struct {
	Responder int64
	Text      string
	Timeout   time.Duration
}

// Recorder is an in-process Conversation. Answer decides every prompt; a nil
// Answer accepts everything.
type Recorder struct {
	Answer func(ctx context.Context, responder int64, prompt string) bool
	// Channel is reported by ChannelID.
	Channel string

	mu       sync.Mutex
	prompts  []Prompt
	messages []*RecordedMessage
}

func (r *Recorder) Confirm(ctx context.Context, responder int64, prompt string, timeout time.Duration) (bool, error) {
	r.mu.Lock()
	r.prompts = append(r.prompts, Prompt{Responder: responder, Text: prompt, Timeout: timeout})
	answer := r.Answer
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}
	if answer == nil {
		return true, nil
	}
	return answer(ctx, responder, prompt), nil
}

func (r *Recorder) Send(_ context.Context, text string) (Message, error) {
	m := &RecordedMessage{texts: []string{text}}
	r.mu.Lock()
	r.messages = append(r.messages, m)
	r.mu.Unlock()
	return m, nil
}

func (r *Recorder) ChannelID() string { return r.Channel }

func (r *Recorder) Prompts() []Prompt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Prompt(nil), r.prompts...)
}

func (r *Recorder) Messages() []*RecordedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*RecordedMessage(nil), r.messages...)
}

// Said reports whether any message, in any revision, contains substr.
func (r *Recorder) Said(substr string) bool {
	for _, m := range r.Messages() {
		for _, text := range m.History() {
			if strings.Contains(text, substr) {
				return true
			}
		}
	}
	return false
}

type RecordedMessage struct {
	mu    sync.Mutex
	texts []string
}

func (m *RecordedMessage) Edit(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

// Text is the latest revision.
func (m *RecordedMessage) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.texts[len(m.texts)-1]
}

func (m *RecordedMessage) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}
