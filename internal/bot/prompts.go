package bot

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

const customIDPrefix = "confirm"

type resolution int

const (
	resolveUnknown resolution = iota
	resolveWrongUser
	resolveOK
)

type pendingPrompt struct {
	responder int64
	answer    chan bool
}

// prompts tracks confirmation buttons waiting for a click.
type prompts struct {
	mu      sync.Mutex
	pending map[string]*pendingPrompt
}

func newPrompts() *prompts {
	return &prompts{pending: make(map[string]*pendingPrompt)}
}

func (p *prompts) open(responder int64) (string, <-chan bool) {
	id := uuid.NewString()
	pp := &pendingPrompt{responder: responder, answer: make(chan bool, 1)}
	p.mu.Lock()
	p.pending[id] = pp
	p.mu.Unlock()
	return id, pp.answer
}

// resolve delivers a click. The first click from the responder wins.
func (p *prompts) resolve(id string, user int64, yes bool) (resolution, int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pp, ok := p.pending[id]
	if !ok {
		return resolveUnknown, 0
	}
	if pp.responder != user {
		return resolveWrongUser, pp.responder
	}
	delete(p.pending, id)
	pp.answer <- yes
	return resolveOK, pp.responder
}

func (p *prompts) close(id string) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

func (p *prompts) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func customID(id string, yes bool) string {
	answer := "no"
	if yes {
		answer = "yes"
	}
	return customIDPrefix + ":" + id + ":" + answer
}

func parseCustomID(s string) (id string, yes bool, ok bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] != customIDPrefix || parts[1] == "" {
		return "", false, false
	}
	switch parts[2] {
	case "yes":
		return parts[1], true, true
	case "no":
		return parts[1], false, true
	}
	return "", false, false
}
