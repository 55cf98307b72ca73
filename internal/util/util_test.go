package util

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryPermanent(t *testing.T) {
	sentinel := errors.New("bad request")
	attempts := 0
	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		return Permanent(sentinel)
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("Retry error = %v, want %v", err, sentinel)
	}
	if attempts != 1 {
		t.Errorf("Retry called fn %d times, want 1", attempts)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 3, time.Hour, func() error { return errors.New("fail") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry error = %v, want context.Canceled", err)
	}
}

func TestRateLimiterSpacing(t *testing.T) {
	rl := NewRateLimiter(6000) // one slot every 10ms
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("three waits took %v, want at least 15ms", elapsed)
	}
}

func TestRateLimiterUnlimitedAndCancel(t *testing.T) {
	if err := NewRateLimiter(0).Wait(context.Background()); err != nil {
		t.Errorf("unlimited Wait: %v", err)
	}

	rl := NewRateLimiter(1)
	_ = rl.Wait(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait error = %v, want DeadlineExceeded", err)
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerTo(&buf, "warn", "json").Info("hidden")
	NewLoggerTo(&buf, "warn", "json").Warn("shown", "k", 1)
	line := strings.TrimSpace(buf.String())
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("log line %q is not JSON: %v", line, err)
	}
	if rec["msg"] != "shown" {
		t.Errorf("msg = %v, want shown", rec["msg"])
	}

	buf.Reset()
	NewLoggerTo(&buf, "debug", "text").Debug("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text output = %q, want msg=hello", buf.String())
	}

	if ParseLevel("bogus") != slog.LevelInfo {
		t.Error("unknown level should map to info")
	}
}

func day(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func TestTradingCalendar(t *testing.T) {
	cal, err := NewTradingCalendar([]time.Time{day("2024-01-04"), day("2024-01-05"), day("2024-01-08")})
	if err != nil {
		t.Fatalf("NewTradingCalendar: %v", err)
	}
	if cal.Len() != 3 {
		t.Errorf("Len() = %d, want 3", cal.Len())
	}
	if got := cal.Index(day("2024-01-05").Add(5 * time.Hour)); got != 1 {
		t.Errorf("Index = %d, want 1", got)
	}
	if got := cal.Index(day("2024-01-06")); got != -1 {
		t.Errorf("Index(weekend) = %d, want -1", got)
	}
	if next, ok := cal.Next(day("2024-01-05")); !ok || !next.Equal(day("2024-01-08")) {
		t.Errorf("Next = %v, %v; want 2024-01-08, true", next, ok)
	}
	if _, ok := cal.Next(day("2024-01-08")); ok {
		t.Error("Next after last date should report false")
	}
	if got := cal.CalendarDays(1); got != 3 {
		t.Errorf("CalendarDays(1) = %d, want 3", got)
	}
	if got := cal.Between(day("2024-01-05"), time.Time{}).Len(); got != 2 {
		t.Errorf("Between(...).Len() = %d, want 2", got)
	}

	if _, err := NewTradingCalendar([]time.Time{day("2024-01-05"), day("2024-01-05")}); !errors.Is(err, ErrUnorderedDates) {
		t.Errorf("duplicate dates error = %v, want ErrUnorderedDates", err)
	}
}
