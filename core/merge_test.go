package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PaulFidika/subkit/entitlements"
)

type failingSource struct{}

func (failingSource) Updates(context.Context) (<-chan entitlements.TransactionRecord, error) {
	return nil, errors.New("subscribe failed")
}

func TestMergeUpdatesSingleSourceIsPassedThrough(t *testing.T) {
	src := chanSource{ch: make(chan entitlements.TransactionRecord)}
	if _, ok := MergeUpdates(src).(chanSource); !ok {
		t.Fatal("a single source must not be wrapped")
	}
}

func TestMergeUpdatesWithoutSourcesCloses(t *testing.T) {
	out, err := MergeUpdates().Updates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("expected no records")
		}
	case <-time.After(time.Second):
		t.Fatal("merged stream of no sources did not close")
	}
}

func TestMergeUpdatesFanIn(t *testing.T) {
	a := chanSource{ch: make(chan entitlements.TransactionRecord)}
	b := chanSource{ch: make(chan entitlements.TransactionRecord)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out, err := MergeUpdates(a, b).Updates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	go func() { a.ch <- verified("a1") }()
	got := <-out
	go func() { b.ch <- verified("b1") }()
	got2 := <-out
	if got.ID != "a1" || got2.ID != "b1" {
		t.Fatalf("unexpected records %s %s", got.ID, got2.ID)
	}

	close(a.ch)
	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("unexpected record")
		}
	case <-time.After(time.Second):
		t.Fatal("merged stream must close when one input closes")
	}
}

func TestMergeUpdatesSubscribeFailure(t *testing.T) {
	a := chanSource{ch: make(chan entitlements.TransactionRecord)}
	if _, err := MergeUpdates(a, failingSource{}).Updates(context.Background()); err == nil {
		t.Fatal("expected subscribe error")
	}
}
