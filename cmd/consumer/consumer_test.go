package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// fakeUpserter implements Upserter for tests
type fakeUpserter struct {
	fail  int // number of times to fail before succeeding
	calls int
}

func (f *fakeUpserter) Upsert(ctx context.Context, d models.Driver) error {
	f.calls++
	if f.calls <= f.fail {
		return errors.New("directory unavailable")
	}
	return nil
}

func TestUpsertWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpserter{fail: 2}
	d := models.Driver{ID: "d1", Loc: &models.Coord{Lat: 1, Lng: 2}, Rating: 4.5, Online: true}
	start := time.Now()
	if err := upsertWithRetry(context.Background(), f, d, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.calls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("expected at least one backoff")
	}
}

func TestUpsertWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpserter{fail: 5}
	d := models.Driver{ID: "d1", Online: true}
	if err := upsertWithRetry(context.Background(), f, d, 3, time.Millisecond); err == nil {
		t.Fatal("expected error after retries")
	}
}
