package routing

import (
	"context"
	"sync"
	"time"

	"agentsync/pkg/logger"
)

// Transition is a settled route change for one chat: where the chat was
// when the churn started and where it ended up.
type Transition struct {
	ChatID      string
	Initial     ChatRoute
	Final       ChatRoute
	RequesterID string
}

// RouterConfig tunes when the router considers a chat's route settled.
type RouterConfig struct {
	// MaxTicks finalizes a transition once this many pushes arrived
	// after it started.
	MaxTicks int
	// SettleAfter finalizes a transition once it stopped being updated
	// for this long.
	SettleAfter time.Duration
	// DigestEvery is the cadence of the background settle check.
	DigestEvery time.Duration
}

// DefaultRouterConfig matches the cadence of the platform's pushes: a
// burst belonging to one logical change arrives well inside a second.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		MaxTicks:    10,
		SettleAfter: time.Second,
		DigestEvery: 200 * time.Millisecond,
	}
}

// Router accumulates route changes per chat and reports each chat's
// transition only once the churn settles. A chat that bounces
// queued -> other -> my within one burst produces a single
// queued -> my notification; a chat that returns to its initial route
// produces none.
type Router struct {
	cfg RouterConfig
	now func() time.Time

	mu          sync.Mutex
	counter     int
	transitions map[string]*pending
	subscribers []func(Transition)
}

type pending struct {
	counter       int
	initial       ChatRoute
	final         ChatRoute
	requesterID   string
	lastUpdatedAt time.Time
}

// NewRouter builds a Router. Call Run to drive the periodic settle
// check, or Tick/Check directly in tests.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.MaxTicks <= 0 {
		cfg.MaxTicks = 10
	}
	if cfg.SettleAfter <= 0 {
		cfg.SettleAfter = time.Second
	}
	if cfg.DigestEvery <= 0 {
		cfg.DigestEvery = 200 * time.Millisecond
	}
	return &Router{
		cfg:         cfg,
		now:         time.Now,
		transitions: make(map[string]*pending),
	}
}

// OnRouteChange registers a subscriber for settled transitions.
// Subscribers run synchronously on the goroutine that finalizes the
// transition.
func (r *Router) OnRouteChange(fn func(Transition)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

// SetChatRoute records a route observation for a chat. The first
// observation in a burst pins the initial route; later ones only move
// the final route. requesterID is kept from the most recent observation
// that carried one.
func (r *Router) SetChatRoute(chatID string, prev, next ChatRoute, requesterID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.transitions[chatID]
	if !ok {
		r.transitions[chatID] = &pending{
			counter:       r.counter,
			initial:       prev,
			final:         next,
			requesterID:   requesterID,
			lastUpdatedAt: r.now(),
		}
		return
	}
	t.final = next
	if requesterID != "" {
		t.requesterID = requesterID
	}
	t.lastUpdatedAt = r.now()
}

// Tick advances the push counter and settles anything that is due.
// Call it once per processed push.
func (r *Router) Tick() {
	r.mu.Lock()
	r.counter++
	settled := r.collect()
	r.mu.Unlock()
	r.notify(settled)
}

// Check settles anything that is due without advancing the counter.
func (r *Router) Check() {
	r.mu.Lock()
	settled := r.collect()
	r.mu.Unlock()
	r.notify(settled)
}

// collect removes due transitions. Caller holds mu.
func (r *Router) collect() []Transition {
	now := r.now()
	var settled []Transition
	for chatID, t := range r.transitions {
		if r.counter-t.counter > r.cfg.MaxTicks || now.Sub(t.lastUpdatedAt) >= r.cfg.SettleAfter {
			delete(r.transitions, chatID)
			if t.initial != t.final {
				settled = append(settled, Transition{
					ChatID:      chatID,
					Initial:     t.initial,
					Final:       t.final,
					RequesterID: t.requesterID,
				})
			}
		}
	}
	return settled
}

func (r *Router) notify(settled []Transition) {
	if len(settled) == 0 {
		return
	}
	r.mu.Lock()
	subs := make([]func(Transition), len(r.subscribers))
	copy(subs, r.subscribers)
	r.mu.Unlock()
	for _, t := range settled {
		logger.Debug("chat route settled", "chat_id", t.ChatID, "initial", t.Initial, "final", t.Final)
		for _, fn := range subs {
			fn(t)
		}
	}
}

// Cancel drops a pending transition without notifying.
func (r *Router) Cancel(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.transitions, chatID)
}

// Reset drops all pending transitions and rewinds the counter. Used on
// reconnect, when the whole chat list is about to be rebuilt.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = make(map[string]*pending)
	r.counter = 0
}

// Initial reports the route a chat had when its pending transition
// started. While a transition is in flight that is the route the UI
// should keep showing.
func (r *Router) Initial(chatID string) (ChatRoute, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transitions[chatID]
	if !ok {
		return "", false
	}
	return t.initial, true
}

// Pending reports how many chats currently have an unsettled
// transition.
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transitions)
}

// Run drives the periodic settle check until ctx is cancelled.
func (r *Router) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.DigestEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Check()
		}
	}
}
