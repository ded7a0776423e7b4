package merge

import "agentsync/pkg/models"

// The updaters below return a modified copy of the chat without touching
// the input. Snapshots handed to subscribers stay immutable that way.

// UpdateUser rewrites the participant with the given id via fn. When the
// participant is absent the chat passes through unchanged.
func UpdateUser(chat models.Chat, userID string, fn func(models.User) models.User) models.Chat {
	users := make([]models.User, len(chat.Users))
	copy(users, chat.Users)
	for i := len(users) - 1; i >= 0; i-- {
		if users[i].ID == userID {
			users[i] = fn(users[i])
			break
		}
	}
	chat.Users = users
	return chat
}

// UpdateThread rewrites the thread with the given id via fn. When the
// thread is absent the chat passes through unchanged.
func UpdateThread(chat models.Chat, threadID string, fn func(models.Thread) models.Thread) models.Chat {
	threads := make([]models.Thread, len(chat.Threads))
	copy(threads, chat.Threads)
	for i := len(threads) - 1; i >= 0; i-- {
		if threads[i].ID == threadID {
			threads[i] = fn(threads[i])
			break
		}
	}
	chat.Threads = threads
	return chat
}

// UpdateEventByID rewrites the event with the given server id via fn.
func UpdateEventByID(chat models.Chat, threadID, eventID string, fn func(models.Event) models.Event) models.Chat {
	return UpdateThread(chat, threadID, func(t models.Thread) models.Thread {
		events := make([]models.Event, len(t.Events))
		copy(events, t.Events)
		for i := len(events) - 1; i >= 0; i-- {
			if events[i].ID == eventID {
				events[i] = fn(events[i])
				break
			}
		}
		t.Events = events
		return t
	})
}

// UpdateEventByCustomID rewrites the event with the given correlation id
// via fn. Used to confirm or fail an optimistically-appended event.
func UpdateEventByCustomID(chat models.Chat, threadID, customID string, fn func(models.Event) models.Event) models.Chat {
	return UpdateThread(chat, threadID, func(t models.Thread) models.Thread {
		events := make([]models.Event, len(t.Events))
		copy(events, t.Events)
		for i := len(events) - 1; i >= 0; i-- {
			if events[i].CustomID == customID {
				events[i] = fn(events[i])
				break
			}
		}
		t.Events = events
		return t
	})
}

// DeleteEventByCustomID removes the event with the given correlation id,
// the cleanup for an aborted upload.
func DeleteEventByCustomID(chat models.Chat, threadID, customID string) models.Chat {
	return UpdateThread(chat, threadID, func(t models.Thread) models.Thread {
		events := make([]models.Event, 0, len(t.Events))
		for _, e := range t.Events {
			if e.CustomID != "" && e.CustomID == customID {
				continue
			}
			events = append(events, e)
		}
		t.Events = events
		return t
	})
}

// Unique concatenates string lists preserving first-seen order and
// dropping duplicates.
func Unique(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
