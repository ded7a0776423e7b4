// Package merge reconciles overlapping snapshots of chats. Full chats,
// summaries and pushes all describe the same conversations with
// different completeness, so every ingest path funnels through these
// unions instead of replacing state wholesale.
package merge

import (
	"agentsync/pkg/models"
)

// Chats unions two id-keyed chat sets. Chats present on both sides are
// merged pairwise; chats present on one side pass through.
func Chats(current, incoming map[string]models.Chat) map[string]models.Chat {
	out := make(map[string]models.Chat, len(current)+len(incoming))
	for id, cur := range current {
		if inc, ok := incoming[id]; ok {
			out[id] = Chat(cur, inc)
		} else {
			out[id] = cur
		}
	}
	for id, inc := range incoming {
		if _, ok := current[id]; !ok {
			out[id] = inc
		}
	}
	return out
}

// Chat merges two snapshots of the same chat. Chat-level fields follow
// the incoming side; participants and threads are unioned. Panics when
// the ids differ, which is a programming error at the call site.
func Chat(current, incoming models.Chat) models.Chat {
	if current.ID != incoming.ID {
		panic("merge: chat ids mismatch")
	}
	return models.Chat{
		ID:         incoming.ID,
		Users:      Users(current.Users, incoming.Users),
		Threads:    Threads(current.Threads, incoming.Threads),
		Access:     incoming.Access,
		IsFollowed: incoming.IsFollowed,
		Properties: incoming.Properties,
	}
}

// Users keeps the incoming participant list, merging each entry with its
// current counterpart when one exists. Participants absent from the
// incoming side are dropped.
func Users(current, incoming []models.User) []models.User {
	byID := make(map[string]models.User, len(current))
	for _, u := range current {
		byID[u.ID] = u
	}
	out := make([]models.User, 0, len(incoming))
	for _, inc := range incoming {
		if cur, ok := byID[inc.ID]; ok {
			out = append(out, User(cur, inc))
		} else {
			out = append(out, inc)
		}
	}
	return out
}

// User takes the incoming participant but never rewinds the seen
// cursor: events_seen_up_to keeps whichever side is later.
func User(current, incoming models.User) models.User {
	out := incoming
	if current.EventsSeenUpTo.After(incoming.EventsSeenUpTo) {
		out.EventsSeenUpTo = current.EventsSeenUpTo
	}
	return out
}

// Threads unions two thread lists by id and re-sorts by creation time.
// Only the most recent thread may stay active: any earlier thread that
// claims to be active is demoted to inactive and marked incomplete, so
// its events get refetched before display.
func Threads(current, incoming []models.Thread) []models.Thread {
	curByID := make(map[string]models.Thread, len(current))
	for _, t := range current {
		curByID[t.ID] = t
	}
	incByID := make(map[string]models.Thread, len(incoming))
	for _, t := range incoming {
		incByID[t.ID] = t
	}

	out := make([]models.Thread, 0, len(current)+len(incoming))
	for _, cur := range current {
		if inc, ok := incByID[cur.ID]; ok {
			out = append(out, Thread(cur, inc))
		} else {
			out = append(out, cur)
		}
	}
	for _, inc := range incoming {
		if _, ok := curByID[inc.ID]; !ok {
			out = append(out, inc)
		}
	}

	models.SortThreads(out)

	for i := len(out) - 2; i >= 0; i-- {
		if out[i].Active {
			out[i].Active = false
			out[i].Incomplete = true
		}
	}
	return out
}

// Thread merges two snapshots of the same thread: every thread-level
// field follows the incoming side, events are unioned. Panics when the
// ids differ.
func Thread(current, incoming models.Thread) models.Thread {
	if current.ID != incoming.ID {
		panic("merge: thread ids mismatch")
	}
	out := incoming
	out.Events = Events(current.Events, incoming.Events)
	return out
}

// Events unions two event lists. An event matches its counterpart on
// either the server id or the local correlation id, so an optimistic
// local event keyed only by custom_id collapses with its confirmed
// copy even when the server copy carries both ids. The result is
// re-sorted by creation time.
func Events(current, incoming []models.Event) []models.Event {
	incByKey := make(map[string]models.Event, len(incoming)*2)
	for _, e := range incoming {
		if e.ID != "" {
			incByKey[e.ID] = e
		}
		if e.CustomID != "" {
			incByKey[e.CustomID] = e
		}
	}

	taken := make(map[string]bool, len(incoming))
	out := make([]models.Event, 0, len(current)+len(incoming))
	for _, cur := range current {
		inc, ok := incByKey[cur.ID]
		if !ok && cur.CustomID != "" {
			inc, ok = incByKey[cur.CustomID]
		}
		if ok {
			out = append(out, Event(cur, inc))
			taken[inc.Key()] = true
		} else {
			out = append(out, cur)
		}
	}
	for _, inc := range incoming {
		if !taken[inc.Key()] {
			out = append(out, inc)
		}
	}

	models.SortEvents(out)
	return out
}

// Event overlays the incoming event on the current one. The local
// correlation id survives when the incoming copy does not carry one.
func Event(current, incoming models.Event) models.Event {
	out := incoming
	if out.CustomID == "" {
		out.CustomID = current.CustomID
	}
	return out
}

// ChatProperties applies a partial property update onto a full bag.
func ChatProperties(target models.ChatProperties, incoming models.PartialChatProperties) models.ChatProperties {
	if incoming.Routing.Continuous != nil {
		target.Routing.Continuous = *incoming.Routing.Continuous
	}
	if incoming.Routing.Pinned != nil {
		target.Routing.Pinned = *incoming.Routing.Pinned
	}
	if incoming.Source.CustomerClientID != nil {
		target.Source.CustomerClientID = *incoming.Source.CustomerClientID
	}
	return target
}

// ThreadProperties applies a partial property update onto a full bag.
func ThreadProperties(target models.ThreadProperties, incoming models.PartialThreadProperties) models.ThreadProperties {
	if incoming.Routing.Idle != nil {
		target.Routing.Idle = *incoming.Routing.Idle
	}
	if incoming.Routing.Unassigned != nil {
		target.Routing.Unassigned = *incoming.Routing.Unassigned
	}
	if incoming.Routing.LastTransferTimestamp != nil {
		target.Routing.LastTransferTimestamp = *incoming.Routing.LastTransferTimestamp
	}
	if incoming.Source.ClientID != nil {
		target.Source.ClientID = *incoming.Source.ClientID
	}
	if incoming.Rating.Score != nil {
		target.Rating.Score = *incoming.Rating.Score
	}
	if incoming.Rating.Comment != nil {
		target.Rating.Comment = *incoming.Rating.Comment
	}
	return target
}
