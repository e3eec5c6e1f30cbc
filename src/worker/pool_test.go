package worker

import (
	"context"
	"testing"
	"time"
)

func TestPoolSubmitDropWhenBusy(t *testing.T) {
	p := New(1)
	defer p.Close()
	ctx := context.Background()

	release := make(chan struct{})
	done := make(chan struct{})
	ok := p.Submit(ctx, "first", func(context.Context) { <-release; close(done) })
	if !ok {
		t.Fatal("first submit should succeed")
	}
	if !p.Busy() {
		t.Fatal("pool should report busy with one job in flight")
	}
	if p.Submit(ctx, "second", func(context.Context) {}) {
		t.Fatal("second submit must drop while the single slot is taken")
	}
	close(release)
	<-done

	deadline := time.Now().Add(time.Second)
	for p.Busy() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	ran := make(chan struct{})
	if !p.Submit(ctx, "third", func(context.Context) { close(ran) }) {
		t.Fatal("submit after completion should succeed")
	}
	<-ran
}

func TestPoolPassesContext(t *testing.T) {
	p := New(1)
	defer p.Close()
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	got := make(chan any, 1)
	p.Submit(ctx, "ctx", func(c context.Context) { got <- c.Value(key{}) })
	if v := <-got; v != "v" {
		t.Fatalf("context value = %v", v)
	}
}

func TestPoolSurvivesPanic(t *testing.T) {
	p := New(1)
	defer p.Close()
	p.Submit(context.Background(), "boom", func(context.Context) { panic("boom") })

	deadline := time.Now().Add(time.Second)
	for p.Busy() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	ran := make(chan struct{})
	if !p.Submit(context.Background(), "after", func(context.Context) { close(ran) }) {
		t.Fatal("pool did not recover its slot after a panic")
	}
	<-ran
}

func TestPoolSubmitAfterClose(t *testing.T) {
	p := New(1)
	p.Close()
	p.Close()
	if p.Submit(context.Background(), "late", func(context.Context) {}) {
		t.Fatal("submit after Close must be dropped")
	}
}
