package routing

import (
	"testing"
	"time"
)

// testRouter returns a router with a controllable clock.
func testRouter(cfg RouterConfig) (*Router, *time.Time) {
	r := NewRouter(cfg)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	return r, &now
}

func TestRouterCoalescesBurst(t *testing.T) {
	r, _ := testRouter(DefaultRouterConfig())

	var got []Transition
	r.OnRouteChange(func(tr Transition) { got = append(got, tr) })

	r.SetChatRoute("c1", RouteQueued, RouteOther, "")
	r.SetChatRoute("c1", RouteOther, RouteMy, "req1")

	// push counter runs past the tick budget
	for i := 0; i < 11; i++ {
		r.Tick()
	}

	if len(got) != 1 {
		t.Fatalf("expected exactly one settled transition, got %d", len(got))
	}
	if got[0].Initial != RouteQueued || got[0].Final != RouteMy {
		t.Fatalf("transition = %s -> %s, want queued -> my", got[0].Initial, got[0].Final)
	}
	if got[0].RequesterID != "req1" {
		t.Fatalf("requester = %q", got[0].RequesterID)
	}
}

func TestRouterSuppressesRoundTrip(t *testing.T) {
	r, _ := testRouter(DefaultRouterConfig())

	var fired int
	r.OnRouteChange(func(Transition) { fired++ })

	r.SetChatRoute("c1", RouteMy, RouteOther, "")
	r.SetChatRoute("c1", RouteOther, RouteMy, "")

	for i := 0; i < 11; i++ {
		r.Tick()
	}

	if fired != 0 {
		t.Fatalf("route that returned to its initial value must not notify, fired %d", fired)
	}
	if r.Pending() != 0 {
		t.Fatalf("settled transition must be removed")
	}
}

func TestRouterSettlesByTime(t *testing.T) {
	r, now := testRouter(DefaultRouterConfig())

	var got []Transition
	r.OnRouteChange(func(tr Transition) { got = append(got, tr) })

	r.SetChatRoute("c1", RouteQueued, RouteMy, "")

	r.Check()
	if len(got) != 0 {
		t.Fatalf("transition settled too early")
	}

	*now = now.Add(time.Second)
	r.Check()
	if len(got) != 1 {
		t.Fatalf("quiet transition must settle after SettleAfter, got %d", len(got))
	}
}

func TestRouterUpdateRestartsQuietPeriod(t *testing.T) {
	r, now := testRouter(DefaultRouterConfig())

	var got []Transition
	r.OnRouteChange(func(tr Transition) { got = append(got, tr) })

	r.SetChatRoute("c1", RouteQueued, RouteOther, "")
	*now = now.Add(900 * time.Millisecond)
	r.SetChatRoute("c1", RouteOther, RouteMy, "")
	*now = now.Add(900 * time.Millisecond)
	r.Check()
	if len(got) != 0 {
		t.Fatalf("updated transition settled before a full quiet period")
	}

	*now = now.Add(100 * time.Millisecond)
	r.Check()
	if len(got) != 1 || got[0].Final != RouteMy {
		t.Fatalf("got %+v", got)
	}
}

func TestRouterCancelAndReset(t *testing.T) {
	r, now := testRouter(DefaultRouterConfig())

	var fired int
	r.OnRouteChange(func(Transition) { fired++ })

	r.SetChatRoute("c1", RouteQueued, RouteMy, "")
	r.Cancel("c1")
	*now = now.Add(2 * time.Second)
	r.Check()
	if fired != 0 {
		t.Fatalf("cancelled transition notified")
	}

	r.SetChatRoute("c2", RouteQueued, RouteMy, "")
	r.SetChatRoute("c3", RouteOther, RouteClosed, "")
	r.Reset()
	*now = now.Add(2 * time.Second)
	r.Check()
	if fired != 0 {
		t.Fatalf("reset must drop transitions silently, fired %d", fired)
	}
	if r.Pending() != 0 {
		t.Fatalf("reset left %d pending transitions", r.Pending())
	}
}

func TestRouterIndependentChats(t *testing.T) {
	r, now := testRouter(DefaultRouterConfig())

	var got []Transition
	r.OnRouteChange(func(tr Transition) { got = append(got, tr) })

	r.SetChatRoute("c1", RouteQueued, RouteMy, "")
	*now = now.Add(500 * time.Millisecond)
	r.SetChatRoute("c2", RouteQueued, RouteOther, "")

	*now = now.Add(500 * time.Millisecond)
	r.Check()
	if len(got) != 1 || got[0].ChatID != "c1" {
		t.Fatalf("only c1 should have settled: %+v", got)
	}

	*now = now.Add(500 * time.Millisecond)
	r.Check()
	if len(got) != 2 {
		t.Fatalf("c2 should settle on its own clock: %+v", got)
	}
}
