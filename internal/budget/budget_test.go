package budget

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestScheduler_Margin(t *testing.T) {
	clock := newFakeClock()
	s := New(Options{Deadline: 85 * time.Second, Margin: 75 * time.Second, Clock: clock.Now})

	if !s.CanStart() {
		t.Fatal("CanStart() = false at start")
	}
	clock.Advance(74 * time.Second)
	if !s.CanStart() {
		t.Fatal("CanStart() = false before margin")
	}
	if got := s.Remaining(); got != 11*time.Second {
		t.Errorf("Remaining() = %v, want 11s", got)
	}

	clock.Advance(time.Second)
	if s.CanStart() {
		t.Fatal("CanStart() = true at margin")
	}
	clock.Advance(time.Minute)
	if s.CanStart() {
		t.Fatal("CanStart() = true past deadline")
	}
	if got := s.Remaining(); got != 0 {
		t.Errorf("Remaining() = %v, want 0", got)
	}
	if s.Started() != 2 || s.Declined() != 2 {
		t.Errorf("started/declined = %d/%d, want 2/2", s.Started(), s.Declined())
	}
}

func TestScheduler_Defaults(t *testing.T) {
	s := New(Options{})
	if s.deadline != DefaultDeadline || s.margin != DefaultMargin {
		t.Errorf("defaults = %v/%v", s.deadline, s.margin)
	}

	s = New(Options{Deadline: 10 * time.Second})
	if s.margin != 10*time.Second {
		t.Errorf("margin = %v, want clamped to deadline", s.margin)
	}
}

func TestCall(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		got := Call(ctx, time.Second, func(context.Context) (*string, error) {
			v := "url"
			return &v, nil
		}, nil, nil)
		if got == nil || *got != "url" {
			t.Errorf("Call() = %v", got)
		}
	})

	t.Run("error yields fallback", func(t *testing.T) {
		var seen error
		got := Call(ctx, time.Second, func(context.Context) (string, error) {
			return "partial", errors.New("boom")
		}, "fallback", func(err error) { seen = err })
		if got != "fallback" || seen == nil {
			t.Errorf("Call() = %q, seen = %v", got, seen)
		}
	})

	t.Run("timeout yields fallback", func(t *testing.T) {
		start := time.Now()
		var seen error
		got := Call(ctx, 20*time.Millisecond, func(ctx context.Context) (*string, error) {
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
			}
			v := "late"
			return &v, nil
		}, nil, func(err error) { seen = err })
		if got != nil {
			t.Errorf("Call() = %v, want nil", *got)
		}
		if !errors.Is(seen, context.DeadlineExceeded) {
			t.Errorf("onErr = %v, want deadline exceeded", seen)
		}
		if time.Since(start) > 2*time.Second {
			t.Error("Call did not return at its timeout")
		}
	})
}

func TestGuard_Preserve(t *testing.T) {
	original := strings.Repeat("a", 1000)
	g := Guard{Threshold: 0.85}

	t.Run("truncated rewrite discarded", func(t *testing.T) {
		text, kept, rate := g.Preserve(original, "0123456789")
		if text != original || kept {
			t.Errorf("kept truncated rewrite: %q", text)
		}
		if rate != 0.01 {
			t.Errorf("rate = %v, want 0.01", rate)
		}
	})

	t.Run("faithful rewrite kept", func(t *testing.T) {
		rewrite := strings.Repeat("b", 900)
		text, kept, _ := g.Preserve(original, rewrite)
		if text != rewrite || !kept {
			t.Error("rejected a rewrite above the threshold")
		}
	})

	t.Run("exact threshold kept", func(t *testing.T) {
		rewrite := strings.Repeat("b", 850)
		if _, kept, _ := g.Preserve(original, rewrite); !kept {
			t.Error("rejected a rewrite at the threshold")
		}
	})

	t.Run("empty original", func(t *testing.T) {
		text, kept, rate := g.Preserve("", "anything")
		if text != "" || kept || rate != 1 {
			t.Errorf("Preserve(empty) = %q %v %v", text, kept, rate)
		}
	})
}

func TestFormatRate(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0.973, "97.3%"},
		{1, "100.0%"},
		{0, "0.0%"},
		{Rate(1000, 10), "1.0%"},
		{Rate(0, 0), "100.0%"},
	}
	for _, tt := range tests {
		if got := FormatRate(tt.rate); got != tt.want {
			t.Errorf("FormatRate(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}
