package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"agentsync/pkg/chaterr"
	"agentsync/pkg/models"
	"agentsync/pkg/restapi"
	"agentsync/pkg/routing"
	"agentsync/pkg/rtm"
	"agentsync/pkg/store"
)

// offline fixture: a session that never dials, for exercising commands
// and push handling directly.
func newOfflineFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  store.New(store.NewState(), time.Millisecond),
		router: routing.NewRouter(routing.DefaultRouterConfig()),
		rest:   &fakeREST{},
	}
	f.session = New(Options{
		Store:   f.store,
		Router:  f.router,
		REST:    f.rest,
		Backoff: testBackoff(),
		Dial: func(ctx context.Context) (RTMConn, error) {
			t.Fatalf("unexpected dial")
			return nil, nil
		},
	})
	t.Cleanup(f.store.Dispose)
	return f
}

func (f *fixture) seedChat(chat models.Chat, myID string) {
	f.store.Dispatch(func(st *store.State) {
		chats := st.CopyChats()
		chats[chat.ID] = chat
		st.Chats = chats
		st.MyProfile = &models.MyProfile{ID: myID}
	})
}

func TestSendTextMessageConfirmsOptimisticEvent(t *testing.T) {
	f := newOfflineFixture(t)
	f.seedChat(activeChat("ch1", "me@example.com", "v1"), "me@example.com")
	f.rest.sendEvent = func(req restapi.SendEventRequest) (string, error) {
		if req.ChatID != "ch1" || req.Event.Text != "hello" {
			t.Errorf("unexpected request: %+v", req)
		}
		return "srv-99", nil
	}

	if err := f.session.SendTextMessage(context.Background(), "ch1", "hello"); err != nil {
		t.Fatalf("SendTextMessage: %v", err)
	}

	st := f.store.GetState()
	events := st.Chats["ch1"].Threads[0].Events
	if len(events) != 1 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].ID != "srv-99" || events[0].Status != models.StatusDelivered {
		t.Fatalf("event = %+v", events[0])
	}
	if events[0].CustomID == "" {
		t.Fatalf("correlation id lost on confirm")
	}
	if len(st.MessageStatuses) != 0 {
		t.Fatalf("message statuses not cleaned up: %v", st.MessageStatuses)
	}
}

func TestSendTextMessageFailureKeepsEventMarkedFailed(t *testing.T) {
	f := newOfflineFixture(t)
	f.seedChat(activeChat("ch1", "me@example.com", "v1"), "me@example.com")
	f.rest.sendEvent = func(req restapi.SendEventRequest) (string, error) {
		return "", chaterr.New(chaterr.KindInternal, "boom")
	}

	if err := f.session.SendTextMessage(context.Background(), "ch1", "hello"); err == nil {
		t.Fatalf("expected error")
	}

	st := f.store.GetState()
	events := st.Chats["ch1"].Threads[0].Events
	if len(events) != 1 {
		t.Fatalf("optimistic event vanished")
	}
	if len(st.MessageStatuses) != 1 {
		t.Fatalf("statuses = %v", st.MessageStatuses)
	}
	for _, status := range st.MessageStatuses {
		if status != models.StatusFailed {
			t.Fatalf("status = %s, want failed", status)
		}
	}
}

func TestSendTextMessageRequiresActiveThread(t *testing.T) {
	f := newOfflineFixture(t)
	chat := activeChat("ch1", "me@example.com", "v1")
	chat.Threads[0].Active = false
	f.seedChat(chat, "me@example.com")

	err := f.session.SendTextMessage(context.Background(), "ch1", "hello")
	if chaterr.KindOf(err) != chaterr.KindChatInactive {
		t.Fatalf("err = %v, want chat_inactive", err)
	}
}

func TestIncomingEventReplacesOptimisticCopy(t *testing.T) {
	f := newOfflineFixture(t)
	f.seedChat(activeChat("ch1", "me@example.com", "v1"), "me@example.com")

	block := make(chan struct{})
	release := make(chan struct{})
	f.rest.sendEvent = func(req restapi.SendEventRequest) (string, error) {
		close(block)
		<-release
		return "srv-1", nil
	}

	done := make(chan error, 1)
	go func() {
		done <- f.session.SendTextMessage(context.Background(), "ch1", "hi")
	}()
	<-block

	// server's push for the same correlation id arrives before the
	// response resolves
	st := f.store.GetState()
	var customID string
	for id := range st.MessageStatuses {
		customID = id
	}
	f.session.handlePush(rtm.IncomingEventPush{
		ChatID:   "ch1",
		ThreadID: "ch1-t1",
		Event: models.Event{
			ID:        "srv-1",
			CustomID:  customID,
			Type:      models.EventMessage,
			Text:      "hi",
			AuthorID:  "me@example.com",
			Status:    models.StatusDelivered,
			CreatedAt: time.Now(),
		},
	})

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("SendTextMessage: %v", err)
	}

	events := f.store.GetState().Chats["ch1"].Threads[0].Events
	if len(events) != 1 {
		t.Fatalf("optimistic and pushed copies both present: %+v", events)
	}
	if events[0].ID != "srv-1" {
		t.Fatalf("event = %+v", events[0])
	}
}

func TestSendFileMessageAbortRemovesEvent(t *testing.T) {
	f := newOfflineFixture(t)
	f.seedChat(activeChat("ch1", "me@example.com", "v1"), "me@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.session.SendFileMessage(ctx, "ch1", "f.png", 4, strings.NewReader("data"))
	if chaterr.KindOf(err) != chaterr.KindAborted {
		t.Fatalf("err = %v, want aborted", err)
	}

	st := f.store.GetState()
	if n := len(st.Chats["ch1"].Threads[0].Events); n != 0 {
		t.Fatalf("aborted upload left %d events behind", n)
	}
	if len(st.MessageStatuses) != 0 || len(st.FileUploads) != 0 {
		t.Fatalf("aborted upload left bookkeeping: %v %v", st.MessageStatuses, st.FileUploads)
	}
}

func TestSendFileMessageDeliversURL(t *testing.T) {
	f := newOfflineFixture(t)
	f.seedChat(activeChat("ch1", "me@example.com", "v1"), "me@example.com")

	err := f.session.SendFileMessage(context.Background(), "ch1", "f.png", 4, strings.NewReader("data"))
	if err != nil {
		t.Fatalf("SendFileMessage: %v", err)
	}

	st := f.store.GetState()
	events := st.Chats["ch1"].Threads[0].Events
	if len(events) != 1 || events[0].File == nil {
		t.Fatalf("events = %+v", events)
	}
	if events[0].File.URL != "https://cdn.example.com/f" || events[0].Status != models.StatusDelivered {
		t.Fatalf("file event = %+v", events[0])
	}
	if len(st.FileUploads) != 0 {
		t.Fatalf("upload bookkeeping not cleaned up")
	}
}

func TestAssignChatToMeResumesInactiveChat(t *testing.T) {
	f := newOfflineFixture(t)
	chat := activeChat("ch1", "other@example.com", "v1")
	chat.Access = models.Access{GroupIDs: []int{7}}
	f.seedChat(chat, "me@example.com")

	f.rest.addUser = func(req restapi.AddUserToChatRequest) error {
		return chaterr.New(chaterr.KindChatInactive, "Chat is inactive")
	}

	if err := f.session.AssignChatToMe(context.Background(), "ch1"); err != nil {
		t.Fatalf("AssignChatToMe: %v", err)
	}
	if len(f.rest.resumed) != 1 {
		t.Fatalf("resume not attempted")
	}
	req := f.rest.resumed[0]
	if req.Chat.ID != "ch1" || req.Chat.Access.GroupIDs[0] != 7 {
		t.Fatalf("resume request = %+v", req)
	}
	if len(req.Chat.Users) != 1 || req.Chat.Users[0].ID != "me@example.com" {
		t.Fatalf("resume users = %+v", req.Chat.Users)
	}
}

func TestMarkEventsAsSeenNeverRewinds(t *testing.T) {
	f := newOfflineFixture(t)
	chat := activeChat("ch1", "me@example.com", "v1")
	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	chat.Users[1].EventsSeenUpTo = seen
	f.seedChat(chat, "me@example.com")

	older := models.Event{CreatedAt: seen.Add(-time.Minute)}
	if err := f.session.MarkEventsAsSeen(context.Background(), "ch1", older); err != nil {
		t.Fatalf("MarkEventsAsSeen: %v", err)
	}
	if len(f.rest.seen) != 0 {
		t.Fatalf("cursor rewound: %v", f.rest.seen)
	}

	newer := models.Event{CreatedAt: seen.Add(time.Minute)}
	if err := f.session.MarkEventsAsSeen(context.Background(), "ch1", newer); err != nil {
		t.Fatalf("MarkEventsAsSeen: %v", err)
	}
	if len(f.rest.seen) != 1 || !f.rest.seen[0].Equal(newer.CreatedAt) {
		t.Fatalf("seen calls = %v", f.rest.seen)
	}

	chat = f.store.GetState().Chats["ch1"]
	me := chat.UserByID("me@example.com")
	if !me.EventsSeenUpTo.Equal(newer.CreatedAt) {
		t.Fatalf("local cursor = %v", me.EventsSeenUpTo)
	}
}

func TestToggleRoutingStatusRollsBackOnFailure(t *testing.T) {
	f := newOfflineFixture(t)
	f.store.Dispatch(func(st *store.State) {
		st.MyProfile = &models.MyProfile{ID: "me@example.com"}
		st.RoutingStatuses = map[string]models.RoutingStatus{
			"me@example.com": models.RoutingAccepting,
		}
	})
	f.rest.statusErr = chaterr.New(chaterr.KindInternal, "boom")

	if err := f.session.ToggleRoutingStatus(context.Background()); err == nil {
		t.Fatalf("expected error")
	}

	st := f.store.GetState()
	if st.RoutingStatuses["me@example.com"] != models.RoutingAccepting {
		t.Fatalf("status not rolled back: %v", st.RoutingStatuses)
	}
	if st.IsUpdatingRoutingStatus {
		t.Fatalf("update flag stuck")
	}
}

func TestSearchRecordsRecentQueries(t *testing.T) {
	f := newOfflineFixture(t)
	f.store.Dispatch(func(st *store.State) {
		st.MyProfile = &models.MyProfile{ID: "me@example.com"}
	})

	if err := f.session.Search(context.Background(), "  refund  "); err != nil {
		t.Fatalf("Search: %v", err)
	}
	st := f.store.GetState()
	if st.SearchQuery != "refund" {
		t.Fatalf("query = %q", st.SearchQuery)
	}
	if len(st.SearchRecentQueries) != 1 || st.SearchRecentQueries[0] != "refund" {
		t.Fatalf("recent queries = %v", st.SearchRecentQueries)
	}

	// repeating a query must not duplicate it
	if err := f.session.Search(context.Background(), "refund"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := f.store.GetState().SearchRecentQueries; len(got) != 1 {
		t.Fatalf("recent queries = %v", got)
	}

	f.session.DeleteRecentSearchQuery("refund")
	if got := f.store.GetState().SearchRecentQueries; len(got) != 0 {
		t.Fatalf("recent queries after delete = %v", got)
	}
}

func TestBackoffBounds(t *testing.T) {
	b := NewBackoff()
	for attempt := 0; attempt < 12; attempt++ {
		timeout := b.Cap
		if shifted := b.Base << uint(attempt); shifted < b.Cap {
			timeout = shifted
		}
		wait := b.Next()
		if wait < b.Floor {
			t.Fatalf("attempt %d: wait %v below floor", attempt, wait)
		}
		if wait > timeout && timeout > b.Floor {
			t.Fatalf("attempt %d: wait %v above timeout %v", attempt, wait, timeout)
		}
	}
	b.Reset()
	if b.Attempts() != 0 {
		t.Fatalf("attempts after reset = %d", b.Attempts())
	}
}

func TestBackoffReachesCap(t *testing.T) {
	b := NewBackoff()
	b.randFn = func() float64 { return 1 }
	var last time.Duration
	for i := 0; i < 10; i++ {
		last = b.Next()
	}
	if last != b.Cap {
		t.Fatalf("wait = %v, want cap %v", last, b.Cap)
	}
}

func TestStopSupervisingRemovesAgentFromChat(t *testing.T) {
	f := newOfflineFixture(t)
	f.seedChat(activeChat("ch1", "other@example.com", "v1"), "me@example.com")

	if err := f.session.StopSupervising(context.Background(), "ch1"); err != nil {
		t.Fatalf("StopSupervising: %v", err)
	}

	f.rest.mu.Lock()
	removed := append([]string(nil), f.rest.removed...)
	f.rest.mu.Unlock()
	if len(removed) != 1 || removed[0] != "ch1/me@example.com" {
		t.Fatalf("removed = %v", removed)
	}
}

func TestDisplayPreferences(t *testing.T) {
	f := newOfflineFixture(t)

	st := f.store.GetState()
	if st.ColorMode != "light" || !st.ShowDetailsSection {
		t.Fatalf("defaults = %q/%v", st.ColorMode, st.ShowDetailsSection)
	}

	f.session.SetColorMode("dark")
	f.session.ToggleDetailsSection()

	st = f.store.GetState()
	if st.ColorMode != "dark" || st.ShowDetailsSection {
		t.Fatalf("after = %q/%v", st.ColorMode, st.ShowDetailsSection)
	}
}
