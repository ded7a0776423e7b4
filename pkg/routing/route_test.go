package routing

import (
	"testing"
	"time"

	"agentsync/pkg/models"
)

const me = "me@example.com"

func openChat(users ...models.User) models.Chat {
	return models.Chat{
		ID:      "c1",
		Users:   users,
		Threads: []models.Thread{{ID: "t1", Active: true, CreatedAt: time.Now()}},
	}
}

func agent(id string, present bool, vis models.Visibility) models.User {
	return models.User{ID: id, Type: models.UserAgent, Present: present, Visibility: vis}
}

func customer(id string) models.User {
	return models.User{ID: id, Type: models.UserCustomer, Present: true}
}

func TestClassifyClosedAndPinned(t *testing.T) {
	chat := models.Chat{ID: "c1", Threads: []models.Thread{{ID: "t1", Active: false}}}
	if got := Classify(chat, me); got != RouteClosed {
		t.Fatalf("no active thread = %s, want closed", got)
	}
	chat.Properties.Routing.Pinned = true
	if got := Classify(chat, me); got != RoutePinned {
		t.Fatalf("pinned closed chat = %s, want pinned", got)
	}
}

func TestClassifyMyAndSupervised(t *testing.T) {
	chat := openChat(customer("v1"), agent(me, true, models.VisibilityAll))
	if got := Classify(chat, me); got != RouteMy {
		t.Fatalf("got %s, want my", got)
	}
	chat = openChat(customer("v1"), agent(me, true, models.VisibilityAgents))
	if got := Classify(chat, me); got != RouteSupervised {
		t.Fatalf("got %s, want supervised", got)
	}
	// not present: my participation does not count
	chat = openChat(customer("v1"), agent(me, false, models.VisibilityAll))
	if got := Classify(chat, me); got == RouteMy {
		t.Fatalf("absent agent must not classify as my")
	}
}

func TestClassifyOtherQueuedUnassigned(t *testing.T) {
	chat := openChat(customer("v1"), agent("other@example.com", true, models.VisibilityAll))
	if got := Classify(chat, me); got != RouteOther {
		t.Fatalf("got %s, want other", got)
	}

	chat = openChat(customer("v1"))
	chat.Threads[0].Queue = &models.Queue{Position: 1}
	if got := Classify(chat, me); got != RouteQueued {
		t.Fatalf("got %s, want queued", got)
	}

	chat = openChat(customer("v1"))
	chat.Properties.Routing.Continuous = true
	if got := Classify(chat, me); got != RouteUnassigned {
		t.Fatalf("got %s, want unassigned", got)
	}

	// continuous but queued anyway
	chat.Threads[0].Queue = &models.Queue{Position: 2}
	if got := Classify(chat, me); got != RouteQueued {
		t.Fatalf("queued continuous chat = %s, want queued", got)
	}
}
