package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAlignsToInterval(t *testing.T) {
	s := New(Options{Interval: 5 * time.Minute, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2024, 5, 1, 12, 3, 27, 0, time.UTC)
	next := s.nextTick(now)
	want := time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, next)
	}

	// Landing exactly on a boundary schedules the following bucket.
	next = s.nextTick(want)
	if !next.Equal(want.Add(5 * time.Minute)) {
		t.Fatalf("boundary should advance a full interval, got %s", next)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: time.Minute, AlignToStart: false}, zerolog.Nop())
	now := time.Date(2024, 5, 1, 12, 3, 27, 0, time.UTC)
	if next := s.nextTick(now); !next.Equal(now.Add(time.Minute)) {
		t.Fatalf("unaligned scheduling should add the interval, got %s", next)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(Options{Interval: time.Hour, AlignToStart: false}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, func(ctx context.Context, bucket time.Time) error { return nil })
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
