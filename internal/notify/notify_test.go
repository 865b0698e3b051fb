package notify

import (
	"context"
	"errors"
	"testing"
)

type route struct {
	fail  bool
	calls int
}

func (r *route) Publish(ctx context.Context, to Recipient, event string, payload any) error {
	r.calls++
	if r.fail {
		return errors.New("route down")
	}
	return nil
}

func TestMultiDeliversWhenAnyRouteWorks(t *testing.T) {
	dead := &route{fail: true}
	live := &route{}
	m := &Multi{Routes: []Publisher{dead, live}}
	if err := m.Publish(context.Background(), RecipientFor("d1"), "rideRequest", nil); err != nil {
		t.Fatalf("expected delivery through the live route, got %v", err)
	}
	if dead.calls != 1 || live.calls != 1 {
		t.Fatalf("every route should be tried: dead=%d live=%d", dead.calls, live.calls)
	}
}

func TestMultiReportsTotalFailure(t *testing.T) {
	m := &Multi{Routes: []Publisher{&route{fail: true}, &route{fail: true}}}
	if err := m.Publish(context.Background(), RecipientFor("d1"), "rideRequest", nil); err == nil {
		t.Fatal("expected error when no route delivered")
	}
}

func TestRecipientForDropsEmptyAliases(t *testing.T) {
	r := RecipientFor("driver-1", "", "+15550001")
	if len(r.Aliases) != 2 {
		t.Fatalf("aliases = %v", r.Aliases)
	}
}

func TestWSRegistryNoSession(t *testing.T) {
	reg := NewWSRegistry()
	err := reg.Publish(context.Background(), RecipientFor("nobody"), "rideRequest", nil)
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}
