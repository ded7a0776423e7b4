package store

import (
	"testing"
	"time"

	"agentsync/pkg/models"
)

func at(min int) time.Time {
	return time.Date(2026, 3, 1, 12, min, 0, 0, time.UTC)
}

func TestDispatchSwapsSnapshot(t *testing.T) {
	s := New(NewState(), 0)

	before := s.GetState()
	s.Dispatch(func(st *State) {
		st.SelectedChatID = "c1"
	})

	if before.SelectedChatID != "" {
		t.Fatalf("old snapshot mutated")
	}
	if s.GetState().SelectedChatID != "c1" {
		t.Fatalf("dispatch not applied")
	}
}

func TestSubscribeRunsEagerlyAndOnDispatch(t *testing.T) {
	s := New(NewState(), 0)

	var calls int
	unsub := s.Subscribe(func(State) { calls++ })
	if calls != 1 {
		t.Fatalf("subscriber must fire immediately, calls = %d", calls)
	}

	s.Dispatch(func(st *State) { st.SelectedChatID = "c1" })
	if calls != 2 {
		t.Fatalf("subscriber must fire on dispatch, calls = %d", calls)
	}

	unsub()
	s.Dispatch(func(st *State) { st.SelectedChatID = "c2" })
	if calls != 2 {
		t.Fatalf("unsubscribed subscriber fired")
	}
}

func TestDispatchInDispatchPanics(t *testing.T) {
	s := New(NewState(), 0)
	s.Subscribe(func(State) {})

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on reentrant dispatch")
		}
	}()
	s.Dispatch(func(*State) {
		s.Dispatch(func(*State) {})
	})
}

func TestDispatchFromSubscriberPanics(t *testing.T) {
	s := New(NewState(), 0)

	first := true
	s.Subscribe(func(State) {
		if first {
			first = false
			return
		}
		defer func() {
			if recover() == nil {
				t.Errorf("expected panic dispatching from a subscriber")
			}
		}()
		s.Dispatch(func(*State) {})
	})

	s.Dispatch(func(st *State) { st.SelectedChatID = "c1" })
}

func TestConnectShortCircuitsOnEqualProjection(t *testing.T) {
	s := New(NewState(), 0)

	var fired int
	Connect(s, func(st State) string { return st.SelectedChatID }, func(string) { fired++ })
	if fired != 1 {
		t.Fatalf("connect must seed, fired = %d", fired)
	}

	// untouched projection: no notification
	s.Dispatch(func(st *State) { st.NetworkStatus = NetworkOnline })
	if fired != 1 {
		t.Fatalf("projection unchanged but subscriber fired")
	}

	s.Dispatch(func(st *State) { st.SelectedChatID = "c1" })
	if fired != 2 {
		t.Fatalf("projection changed but subscriber silent")
	}
}

func TestLazyConnectFiresOnDigest(t *testing.T) {
	s := New(NewState(), time.Hour)

	var got []string
	LazyConnect(s, func(st State) string { return st.SelectedChatID }, func(v string) { got = append(got, v) })
	if len(got) != 1 {
		t.Fatalf("lazy connect must seed")
	}

	s.Dispatch(func(st *State) { st.SelectedChatID = "c1" })
	s.Dispatch(func(st *State) { st.SelectedChatID = "c2" })
	if len(got) != 1 {
		t.Fatalf("lazy subscriber fired outside digest")
	}

	s.Digest()
	if len(got) != 2 || got[1] != "c2" {
		t.Fatalf("digest must deliver only the latest value, got %v", got)
	}
}

func chatWithThread(chatID, threadID string, active bool, createdAt time.Time) models.Chat {
	return models.Chat{
		ID:      chatID,
		Threads: []models.Thread{{ID: threadID, Active: active, CreatedAt: createdAt}},
	}
}

func TestSetInitialStateEnterUpdateExit(t *testing.T) {
	s := New(NewState(), 0)
	profile := models.MyProfile{ID: "me", RoutingStatus: models.RoutingAccepting}
	license := models.License{ID: 123}

	s.SetInitialState([]models.Chat{
		chatWithThread("kept", "t1", true, at(0)),
		chatWithThread("dropped", "t2", true, at(0)),
	}, license, profile)

	st := s.GetState()
	if len(st.Chats) != 2 {
		t.Fatalf("enter failed: %d chats", len(st.Chats))
	}
	if st.MyProfile == nil || st.License == nil {
		t.Fatalf("profile/license not stored")
	}
	if st.RoutingStatuses["me"] != models.RoutingAccepting {
		t.Fatalf("own routing status not recorded")
	}

	// second snapshot without "dropped": its active thread must close
	s.SetInitialState([]models.Chat{
		chatWithThread("kept", "t1", true, at(0)),
	}, license, profile)

	st = s.GetState()
	dropped := st.Chats["dropped"]
	if dropped.Threads[0].Active {
		t.Fatalf("exited chat thread still active")
	}
	if !dropped.Threads[0].Incomplete {
		t.Fatalf("exited chat thread must be incomplete")
	}
	if !st.Chats["kept"].Threads[0].Active {
		t.Fatalf("kept chat deactivated by mistake")
	}
}

func TestSetChatThreadsMergesAndIgnoresUnknown(t *testing.T) {
	s := New(NewState(), 0)
	s.Dispatch(func(st *State) {
		st.Chats = map[string]models.Chat{"c1": chatWithThread("c1", "t1", true, at(0))}
	})

	s.SetChatThreads("c1", []models.Thread{{ID: "t2", Active: true, CreatedAt: at(5)}})
	chat := s.GetState().Chats["c1"]
	if len(chat.Threads) != 2 {
		t.Fatalf("threads not merged: %d", len(chat.Threads))
	}
	if chat.Threads[0].Active {
		t.Fatalf("older thread must be demoted when a newer active one arrives")
	}

	s.SetChatThreads("nope", []models.Thread{{ID: "tx"}})
	if _, ok := s.GetState().Chats["nope"]; ok {
		t.Fatalf("unknown chat id must be ignored")
	}
}

func TestDeactivateChat(t *testing.T) {
	s := New(NewState(), 0)
	s.Dispatch(func(st *State) {
		st.Chats = map[string]models.Chat{"c1": chatWithThread("c1", "t1", true, at(0))}
	})

	s.DeactivateChat("c1", "t1")
	thread := s.GetState().Chats["c1"].Threads[0]
	if thread.Active {
		t.Fatalf("thread still active")
	}
	if !thread.Incomplete {
		t.Fatalf("deactivated thread not marked incomplete")
	}
}

func TestSetChatTransferredAddsPlaceholderAgent(t *testing.T) {
	s := New(NewState(), 0)
	chat := chatWithThread("c1", "t1", true, at(0))
	chat.Users = []models.User{{ID: "v1", Type: models.UserCustomer, Present: true}}
	s.Dispatch(func(st *State) {
		st.Chats = map[string]models.Chat{"c1": chat}
	})

	s.SetChatTransferred(ChatTransferredOptions{
		ChatID:   "c1",
		ThreadID: "t1",
		GroupIDs: []int{7},
		AgentIDs: []string{"new@example.com"},
	})

	got := s.GetState().Chats["c1"]
	if got.Threads[0].Access.GroupIDs[0] != 7 {
		t.Fatalf("group access not applied: %+v", got.Threads[0].Access)
	}
	agent := got.UserByID("new@example.com")
	if agent == nil || !agent.Present || !agent.IsAgent() {
		t.Fatalf("placeholder agent missing: %+v", got.Users)
	}
}

func TestProgressSignal(t *testing.T) {
	p := NewProgress()

	var got []float64
	unsub := p.Subscribe(func(v float64) { got = append(got, v) })

	p.Set(0.5)
	p.Set(1)
	unsub()
	p.Set(0)

	if len(got) != 2 || got[0] != 0.5 || got[1] != 1 {
		t.Fatalf("got %v", got)
	}
	if p.Value() != 0 {
		t.Fatalf("value = %v", p.Value())
	}
}
