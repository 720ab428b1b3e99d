package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFansOut(t *testing.T) {
	a := &recordingSender{name: "a"}
	b := &recordingSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, nil, testLogger())

	n.Notify(context.Background(), "market_resolved", "Market resolved", "details")

	assert.Equal(t, []string{"Market resolved"}, a.titles)
	assert.Equal(t, []string{"Market resolved"}, b.titles)
}

func TestNotifyEventFilter(t *testing.T) {
	s := &recordingSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{"market_resolved"}, testLogger())

	n.Notify(context.Background(), "bet_placed", "Bet placed", "noise")
	assert.Empty(t, s.titles)

	n.Notify(context.Background(), "market_resolved", "Market resolved", "signal")
	assert.Len(t, s.titles, 1)
}

func TestNotifyFailingSenderDoesNotStopOthers(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("webhook down")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	n.Notify(context.Background(), "market_resolved", "Market resolved", "details")

	assert.Len(t, bad.titles, 1)
	assert.Len(t, good.titles, 1)
}
