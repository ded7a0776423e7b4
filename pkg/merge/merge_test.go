package merge

import (
	"testing"
	"time"

	"agentsync/pkg/models"
)

func at(min int) time.Time {
	return time.Date(2026, 3, 1, 12, min, 0, 0, time.UTC)
}

func msg(id, customID string, createdAt time.Time) models.Event {
	return models.Event{
		ID:        id,
		CustomID:  customID,
		Type:      models.EventMessage,
		Text:      "m" + id,
		CreatedAt: createdAt,
		Status:    models.StatusDelivered,
	}
}

func TestEventsUnionSortsAndDedupes(t *testing.T) {
	current := []models.Event{msg("e1", "", at(0)), msg("e2", "", at(2))}
	incoming := []models.Event{msg("e2", "", at(2)), msg("e3", "", at(1))}

	got := Events(current, incoming)
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i, want := range []string{"e1", "e3", "e2"} {
		if got[i].ID != want {
			t.Fatalf("order[%d] = %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestEventsConfirmOptimisticSend(t *testing.T) {
	local := models.Event{CustomID: "c1", Type: models.EventMessage, Text: "hi", CreatedAt: at(1), Status: models.StatusSending}
	confirmed := models.Event{ID: "e9", CustomID: "c1", Type: models.EventMessage, Text: "hi", CreatedAt: at(1), Status: models.StatusDelivered}

	got := Events([]models.Event{local}, []models.Event{confirmed})
	if len(got) != 1 {
		t.Fatalf("local and confirmed copies must collapse, got %d events", len(got))
	}
	if got[0].ID != "e9" || got[0].CustomID != "c1" || got[0].Status != models.StatusDelivered {
		t.Fatalf("got %+v", got[0])
	}
}

func TestEventKeepsLocalCustomID(t *testing.T) {
	cur := msg("e1", "c1", at(0))
	inc := msg("e1", "", at(0))
	if got := Event(cur, inc); got.CustomID != "c1" {
		t.Fatalf("custom_id must survive when incoming omits it, got %q", got.CustomID)
	}
}

func TestUserNeverRewindsSeenCursor(t *testing.T) {
	cur := models.User{ID: "u1", Type: models.UserCustomer, EventsSeenUpTo: at(5)}
	inc := models.User{ID: "u1", Type: models.UserCustomer, Name: "Visitor", EventsSeenUpTo: at(3)}

	got := User(cur, inc)
	if got.Name != "Visitor" {
		t.Fatalf("incoming fields must win, got %+v", got)
	}
	if !got.EventsSeenUpTo.Equal(at(5)) {
		t.Fatalf("seen cursor rewound to %v", got.EventsSeenUpTo)
	}

	inc.EventsSeenUpTo = at(9)
	if got := User(cur, inc); !got.EventsSeenUpTo.Equal(at(9)) {
		t.Fatalf("later incoming cursor must win, got %v", got.EventsSeenUpTo)
	}
}

func TestThreadsDemoteStaleActive(t *testing.T) {
	current := []models.Thread{{ID: "t1", Active: true, CreatedAt: at(0)}}
	incoming := []models.Thread{{ID: "t2", Active: true, CreatedAt: at(10)}}

	got := Threads(current, incoming)
	if len(got) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(got))
	}
	if got[0].ID != "t1" || got[0].Active {
		t.Fatalf("older thread must be demoted: %+v", got[0])
	}
	if !got[0].Incomplete {
		t.Fatalf("demoted thread must be marked incomplete")
	}
	if got[1].ID != "t2" || !got[1].Active {
		t.Fatalf("latest thread keeps its active flag: %+v", got[1])
	}
}

func TestThreadsIdempotent(t *testing.T) {
	threads := []models.Thread{
		{ID: "t1", CreatedAt: at(0), Events: []models.Event{msg("e1", "", at(0))}},
		{ID: "t2", Active: true, CreatedAt: at(5)},
	}
	got := Threads(threads, threads)
	if len(got) != 2 {
		t.Fatalf("merging a set with itself grew it: %d", len(got))
	}
	if !got[1].Active || got[0].Active {
		t.Fatalf("idempotent merge changed active flags")
	}
}

func TestChatPanicsOnIDMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on chat id mismatch")
		}
	}()
	Chat(models.Chat{ID: "a"}, models.Chat{ID: "b"})
}

func TestChatsUnion(t *testing.T) {
	current := map[string]models.Chat{
		"c1": {ID: "c1", Threads: []models.Thread{{ID: "t1", Active: true, CreatedAt: at(0)}}},
	}
	incoming := map[string]models.Chat{
		"c1": {ID: "c1", Threads: []models.Thread{{ID: "t1", Active: true, CreatedAt: at(0)}}},
		"c2": {ID: "c2"},
	}
	got := Chats(current, incoming)
	if len(got) != 2 {
		t.Fatalf("expected union of 2 chats, got %d", len(got))
	}
	if len(got["c1"].Threads) != 1 {
		t.Fatalf("overlapping chat threads duplicated: %d", len(got["c1"].Threads))
	}
}

func TestUpdateEventByCustomIDDoesNotMutateInput(t *testing.T) {
	chat := models.Chat{
		ID: "c1",
		Threads: []models.Thread{{
			ID:     "t1",
			Events: []models.Event{{CustomID: "x", Status: models.StatusSending, CreatedAt: at(0)}},
		}},
	}
	got := UpdateEventByCustomID(chat, "t1", "x", func(e models.Event) models.Event {
		e.Status = models.StatusFailed
		return e
	})
	if got.Threads[0].Events[0].Status != models.StatusFailed {
		t.Fatalf("update not applied")
	}
	if chat.Threads[0].Events[0].Status != models.StatusSending {
		t.Fatalf("input chat mutated")
	}
}

func TestDeleteEventByCustomID(t *testing.T) {
	chat := models.Chat{
		ID: "c1",
		Threads: []models.Thread{{
			ID: "t1",
			Events: []models.Event{
				{ID: "e1", CreatedAt: at(0)},
				{CustomID: "x", Status: models.StatusSending, CreatedAt: at(1)},
			},
		}},
	}
	got := DeleteEventByCustomID(chat, "t1", "x")
	if len(got.Threads[0].Events) != 1 || got.Threads[0].Events[0].ID != "e1" {
		t.Fatalf("aborted event not removed: %+v", got.Threads[0].Events)
	}
}

func TestMergePartialThreadProperties(t *testing.T) {
	target := models.ThreadProperties{}
	idle := true
	var p models.PartialThreadProperties
	p.Routing.Idle = &idle

	got := ThreadProperties(target, p)
	if !got.Routing.Idle {
		t.Fatalf("idle not applied")
	}
	if got.Rating.Score != 0 || got.Source.ClientID != "" {
		t.Fatalf("untouched namespaces changed: %+v", got)
	}
}

func TestUnique(t *testing.T) {
	got := Unique([]string{"a", "b"}, []string{"b", "c", "a"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
