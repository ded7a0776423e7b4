package store

import (
	"agentsync/pkg/merge"
	"agentsync/pkg/models"
)

// The typed mutators below wrap Dispatch with the chat bookkeeping every
// caller would otherwise repeat. They copy the maps they touch, so older
// snapshots stay valid.

// SetInitialState applies the chat set a login or reconnect returned.
// Chats the server still reports are merged, new ones enter as-is, and
// chats the server no longer reports get their active thread deactivated
// and marked incomplete: the session only sees a window of chats, so a
// missing chat means closed, not gone.
func (s *Store) SetInitialState(chats []models.Chat, license models.License, myProfile models.MyProfile) {
	s.Dispatch(func(st *State) {
		incoming := make(map[string]models.Chat, len(chats))
		for _, c := range chats {
			incoming[c.ID] = c
		}

		merged := make(map[string]models.Chat, len(st.Chats)+len(incoming))
		for id, cur := range st.Chats {
			inc, ok := incoming[id]
			if ok {
				merged[id] = merge.Chat(cur, inc)
				continue
			}
			// exit: deactivate whatever thread was open
			if active := cur.ActiveThread(); active != nil {
				merged[id] = merge.UpdateThread(cur, active.ID, func(t models.Thread) models.Thread {
					t.Active = false
					t.Incomplete = true
					return t
				})
			} else {
				merged[id] = cur
			}
		}
		for id, inc := range incoming {
			if _, ok := st.Chats[id]; !ok {
				merged[id] = inc
			}
		}

		routingStatuses := make(map[string]models.RoutingStatus, len(st.RoutingStatuses)+1)
		for k, v := range st.RoutingStatuses {
			routingStatuses[k] = v
		}
		routingStatuses[myProfile.ID] = myProfile.RoutingStatus

		st.Chats = merged
		st.RoutingStatuses = routingStatuses
		st.License = &license
		st.MyProfile = &myProfile
	})
}

// SetIncomingChat merges a single pushed chat into the set.
func (s *Store) SetIncomingChat(chat models.Chat) {
	s.Dispatch(func(st *State) {
		st.Chats = merge.Chats(st.Chats, map[string]models.Chat{chat.ID: chat})
	})
}

// SetChatThreads merges fetched threads into an existing chat. Unknown
// chat ids are ignored.
func (s *Store) SetChatThreads(chatID string, threads []models.Thread) {
	s.Dispatch(func(st *State) {
		chat, ok := st.Chats[chatID]
		if !ok {
			return
		}
		chats := st.CopyChats()
		chat.Threads = merge.Threads(chat.Threads, threads)
		chats[chatID] = chat
		st.Chats = chats
	})
}

// DeactivateChat closes one thread of a chat. The closed thread is
// marked incomplete: the deactivation push carries no events, so the
// thread must be refetched before its history is shown.
func (s *Store) DeactivateChat(chatID, threadID string) {
	s.Dispatch(func(st *State) {
		chat, ok := st.Chats[chatID]
		if !ok {
			return
		}
		chats := st.CopyChats()
		chats[chatID] = merge.UpdateThread(chat, threadID, func(t models.Thread) models.Thread {
			t.Active = false
			t.Incomplete = true
			return t
		})
		st.Chats = chats
	})
}

// ChatTransferredOptions describes a transfer to apply locally.
type ChatTransferredOptions struct {
	ChatID   string
	ThreadID string
	GroupIDs []int
	AgentIDs []string
	Queue    *models.Queue
}

// SetChatTransferred moves a chat to new groups or agents. Transferred
// agents that the chat does not know yet enter as present placeholder
// participants until the next full snapshot fills in their profile.
func (s *Store) SetChatTransferred(opts ChatTransferredOptions) {
	s.Dispatch(func(st *State) {
		chat, ok := st.Chats[opts.ChatID]
		if !ok {
			return
		}

		chat = merge.UpdateThread(chat, opts.ThreadID, func(t models.Thread) models.Thread {
			if len(opts.GroupIDs) > 0 {
				t.Access.GroupIDs = opts.GroupIDs
			}
			t.Queue = opts.Queue
			return t
		})

		if len(opts.AgentIDs) > 0 {
			users := make([]models.User, len(chat.Users))
			copy(users, chat.Users)
			for _, agentID := range opts.AgentIDs {
				found := false
				for i := range users {
					if users[i].ID == agentID {
						users[i].Present = true
						found = true
						break
					}
				}
				if !found {
					users = append(users, models.User{
						ID:      agentID,
						Type:    models.UserAgent,
						Name:    "Agent",
						Email:   agentID,
						Present: true,
					})
				}
			}
			chat.Users = users
		}

		chats := st.CopyChats()
		chats[opts.ChatID] = chat
		st.Chats = chats
	})
}
