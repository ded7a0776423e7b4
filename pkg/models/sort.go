package models

import "sort"

// SortEvents orders events ascending by creation time. The sort is
// stable so same-instant events keep their arrival order.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
}

// SortThreads orders threads ascending by creation time.
func SortThreads(threads []Thread) {
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].CreatedAt.Before(threads[j].CreatedAt)
	})
}

// ActiveThread returns the chat's active thread, or nil when every
// thread is closed.
func (c *Chat) ActiveThread() *Thread {
	for i := range c.Threads {
		if c.Threads[i].Active {
			return &c.Threads[i]
		}
	}
	return nil
}

// UserByID returns the participant with the given id, or nil.
func (c *Chat) UserByID(id string) *User {
	for i := range c.Users {
		if c.Users[i].ID == id {
			return &c.Users[i]
		}
	}
	return nil
}

// Customer returns the chat's customer participant, or nil.
func (c *Chat) Customer() *User {
	for i := range c.Users {
		if c.Users[i].IsCustomer() {
			return &c.Users[i]
		}
	}
	return nil
}

// PresentAgents returns the agents currently present in the chat.
func (c *Chat) PresentAgents() []User {
	var out []User
	for _, u := range c.Users {
		if u.IsAgent() && u.Present {
			out = append(out, u)
		}
	}
	return out
}
