package interact

import (
	"context"
	"testing"
	"time"
)

func TestRecorderAnswersAndRecords(t *testing.T) {
	ctx := context.Background()
	r := &Recorder{Answer: func(_ context.Context, responder int64, _ string) bool { return responder == 1 }}

	ok, err := r.Confirm(ctx, 1, "sure?", time.Second)
	if err != nil || !ok {
		t.Fatalf("got (%v, %v) want (true, nil)", ok, err)
	}
	ok, err = r.Confirm(ctx, 2, "sure?", time.Second)
	if err != nil || ok {
		t.Fatalf("got (%v, %v) want (false, nil)", ok, err)
	}
	if n := len(r.Prompts()); n != 2 {
		t.Fatalf("prompts %d want 2", n)
	}

	msg, _ := r.Send(ctx, "first")
	_ = msg.Edit(ctx, "second")
	if got := r.Messages()[0].Text(); got != "second" {
		t.Fatalf("latest text %q", got)
	}
	if !r.Said("first") {
		t.Fatalf("history should keep earlier revisions")
	}
}

func TestNopDeclines(t *testing.T) {
	ok, err := Nop{}.Confirm(context.Background(), 1, "x", time.Second)
	if ok || err != nil {
		t.Fatalf("got (%v, %v)", ok, err)
	}
}
