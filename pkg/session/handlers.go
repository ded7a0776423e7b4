package session

import (
	"encoding/json"

	"agentsync/pkg/logger"
	"agentsync/pkg/merge"
	"agentsync/pkg/models"
	"agentsync/pkg/routing"
	"agentsync/pkg/rtm"
	"agentsync/pkg/store"
)

// handlePush applies one server push to the store. Pushes that can move
// a chat between folders are bracketed by a route transition so the
// router sees the before and after.
func (s *Session) handlePush(push rtm.Push) {
	s.router.Tick()

	switch p := push.(type) {
	case rtm.IncomingChatPush:
		t := s.startTransition(p.Chat.ID)
		s.store.SetIncomingChat(p.Chat)
		t.commit(p.RequesterID)

	case rtm.ChatDeactivatedPush:
		t := s.startTransition(p.ChatID)
		s.store.DeactivateChat(p.ChatID, p.ThreadID)
		t.commit(p.UserID)

	case rtm.ChatTransferredPush:
		t := s.startTransition(p.ChatID)
		s.store.SetChatTransferred(store.ChatTransferredOptions{
			ChatID:   p.ChatID,
			ThreadID: p.ThreadID,
			GroupIDs: p.TransferredTo.GroupIDs,
			AgentIDs: p.TransferredTo.AgentIDs,
			Queue:    p.Queue,
		})
		t.commit(p.RequesterID)

	case rtm.UserAddedToChatPush:
		t := s.startTransition(p.ChatID)
		s.store.Dispatch(func(st *store.State) {
			chat, ok := st.Chats[p.ChatID]
			if !ok {
				return
			}
			chats := st.CopyChats()
			chat.Users = merge.Users(chat.Users, []models.User{p.User})
			chats[p.ChatID] = chat
			st.Chats = chats
		})
		t.commit(p.RequesterID)

	case rtm.UserRemovedFromChatPush:
		t := s.startTransition(p.ChatID)
		s.store.Dispatch(func(st *store.State) {
			chat, ok := st.Chats[p.ChatID]
			if !ok {
				return
			}
			chats := st.CopyChats()
			chats[p.ChatID] = merge.UpdateUser(chat, p.UserID, func(u models.User) models.User {
				u.Present = false
				return u
			})
			st.Chats = chats
		})
		t.commit(p.RequesterID)

	case rtm.IncomingEventPush:
		s.onIncomingEvent(p)

	case rtm.EventUpdatedPush:
		s.store.Dispatch(func(st *store.State) {
			chat, ok := st.Chats[p.ChatID]
			if !ok {
				return
			}
			chats := st.CopyChats()
			chats[p.ChatID] = merge.UpdateEventByID(chat, p.ThreadID, p.Event.ID, func(cur models.Event) models.Event {
				return merge.Event(cur, p.Event)
			})
			st.Chats = chats
		})

	case rtm.ChatPropertiesUpdatedPush:
		t := s.startTransition(p.ChatID)
		s.store.Dispatch(func(st *store.State) {
			chat, ok := st.Chats[p.ChatID]
			if !ok {
				return
			}
			chats := st.CopyChats()
			chat.Properties = merge.ChatProperties(chat.Properties, p.Properties)
			chats[p.ChatID] = chat
			st.Chats = chats
		})
		t.commit("")

	case rtm.ThreadPropertiesUpdatedPush:
		s.store.Dispatch(func(st *store.State) {
			chat, ok := st.Chats[p.ChatID]
			if !ok {
				return
			}
			chats := st.CopyChats()
			chats[p.ChatID] = merge.UpdateThread(chat, p.ThreadID, func(th models.Thread) models.Thread {
				th.Properties = merge.ThreadProperties(th.Properties, p.Properties)
				return th
			})
			st.Chats = chats
		})

	case rtm.ChatAccessUpdatedPush:
		s.store.Dispatch(func(st *store.State) {
			chat, ok := st.Chats[p.ChatID]
			if !ok {
				return
			}
			chats := st.CopyChats()
			chat.Access = p.Access
			chats[p.ChatID] = chat
			st.Chats = chats
		})

	case rtm.ThreadTaggedPush:
		s.updateThreadTags(p.ChatID, p.ThreadID, p.Tag, true)

	case rtm.ThreadUntaggedPush:
		s.updateThreadTags(p.ChatID, p.ThreadID, p.Tag, false)

	case rtm.RoutingStatusSetPush:
		s.store.Dispatch(func(st *store.State) {
			statuses := make(map[string]models.RoutingStatus, len(st.RoutingStatuses)+1)
			for k, v := range st.RoutingStatuses {
				statuses[k] = v
			}
			statuses[p.AgentID] = p.Status
			st.RoutingStatuses = statuses
		})

	case rtm.EventsMarkedAsSeenPush:
		s.store.Dispatch(func(st *store.State) {
			chat, ok := st.Chats[p.ChatID]
			if !ok {
				return
			}
			chats := st.CopyChats()
			chats[p.ChatID] = merge.UpdateUser(chat, p.UserID, func(u models.User) models.User {
				u.EventsSeenUpTo = p.SeenUpTo
				return u
			})
			st.Chats = chats
		})

	case rtm.IncomingSneakPeekPush:
		s.store.Dispatch(func(st *store.State) {
			peeks := copySneakPeeks(st.SneakPeeks)
			peeks[p.ChatID] = p.SneakPeek
			st.SneakPeeks = peeks
		})

	case rtm.QueuePositionsUpdatedPush:
		chatIDs := make([]string, 0, len(p.Positions))
		for _, pos := range p.Positions {
			chatIDs = append(chatIDs, pos.ChatID)
		}
		ts := s.startTransitions(chatIDs)
		s.store.Dispatch(func(st *store.State) {
			chats := st.CopyChats()
			for _, pos := range p.Positions {
				chat, ok := chats[pos.ChatID]
				if !ok {
					continue
				}
				queue := pos.Queue
				chats[pos.ChatID] = merge.UpdateThread(chat, pos.ThreadID, func(th models.Thread) models.Thread {
					th.Queue = queue
					return th
				})
			}
			st.Chats = chats
		})
		ts.commit()

	case rtm.ChatUnfollowedPush:
		s.store.Dispatch(func(st *store.State) {
			chat, ok := st.Chats[p.ChatID]
			if !ok {
				return
			}
			chats := st.CopyChats()
			chat.IsFollowed = false
			chats[p.ChatID] = chat
			st.Chats = chats
		})

	case rtm.IncomingMulticastPush:
		s.onMulticast(p)

	case rtm.AgentDisconnectedPush:
		logger.Warn("session: agent disconnected by server", "reason", p.Reason)

	case rtm.UnknownPush:
		logger.Debug("session: unhandled push", "action", p.Action())
	}
}

// onIncomingEvent lands a pushed event in its thread. An event carrying
// the correlation id of an in-flight local send replaces the optimistic
// copy instead of duplicating it. Any sneak peek for the chat is stale
// once a real event arrives.
func (s *Session) onIncomingEvent(p rtm.IncomingEventPush) {
	s.store.Dispatch(func(st *store.State) {
		chat, ok := st.Chats[p.ChatID]
		if ok {
			_, sending := st.MessageStatuses[p.Event.CustomID]
			if p.Event.CustomID != "" && sending {
				chat = merge.UpdateEventByCustomID(chat, p.ThreadID, p.Event.CustomID, func(models.Event) models.Event {
					return p.Event
				})
			} else {
				chat = merge.UpdateThread(chat, p.ThreadID, func(th models.Thread) models.Thread {
					th.Events = merge.Events(th.Events, []models.Event{p.Event})
					return th
				})
			}
			chats := st.CopyChats()
			chats[p.ChatID] = chat
			st.Chats = chats
		}

		if _, ok := st.SneakPeeks[p.ChatID]; ok {
			peeks := copySneakPeeks(st.SneakPeeks)
			delete(peeks, p.ChatID)
			st.SneakPeeks = peeks
		}
	})

	st := s.store.GetState()
	if p.Event.Type == models.EventSystemMessage || p.Event.AuthorID == "" {
		return
	}
	if st.MyProfile != nil && p.Event.AuthorID == st.MyProfile.ID {
		return
	}
	if route, ok := s.CurrentRoute(p.ChatID); ok {
		if route == routing.RouteMy || route == routing.RouteSupervised {
			logger.Info("session: new message",
				"chat_id", p.ChatID, "author", p.Event.AuthorID)
		}
	}
}

func (s *Session) updateThreadTags(chatID, threadID, tag string, add bool) {
	s.store.Dispatch(func(st *store.State) {
		chat, ok := st.Chats[chatID]
		if !ok {
			return
		}
		chats := st.CopyChats()
		chats[chatID] = merge.UpdateThread(chat, threadID, func(th models.Thread) models.Thread {
			tags := make([]string, 0, len(th.Tags)+1)
			for _, t := range th.Tags {
				if t != tag {
					tags = append(tags, t)
				}
			}
			if add {
				tags = append(tags, tag)
			}
			th.Tags = tags
			return th
		})
		st.Chats = chats
	})
}

// multicastPayload is the lc2 envelope used for canned-response sync.
type multicastPayload struct {
	Type    string `json:"type"`
	Content struct {
		Name           string                `json:"name"`
		Group          int                   `json:"group"`
		CannedResponse models.CannedResponse `json:"canned_response"`
	} `json:"content"`
}

// onMulticast keeps the canned-response cache in step with edits made
// elsewhere. Groups that were never fetched stay untouched; they load
// in full on first use.
func (s *Session) onMulticast(p rtm.IncomingMulticastPush) {
	var m multicastPayload
	if err := json.Unmarshal(p.Payload, &m); err != nil || m.Type != "lc2" {
		return
	}

	groupID := m.Content.Group
	cr := m.Content.CannedResponse

	switch m.Content.Name {
	case "canned_response_add":
		s.mutateCannedResponses(groupID, func(list []models.CannedResponse) []models.CannedResponse {
			return append(list, cr)
		})
	case "canned_response_update":
		s.mutateCannedResponses(groupID, func(list []models.CannedResponse) []models.CannedResponse {
			for i := range list {
				if list[i].ID == cr.ID {
					list[i] = cr
				}
			}
			return list
		})
	case "canned_response_remove":
		s.mutateCannedResponses(groupID, func(list []models.CannedResponse) []models.CannedResponse {
			out := list[:0]
			for _, item := range list {
				if item.ID != cr.ID {
					out = append(out, item)
				}
			}
			return out
		})
	}
}

func (s *Session) mutateCannedResponses(groupID int, fn func([]models.CannedResponse) []models.CannedResponse) {
	s.store.Dispatch(func(st *store.State) {
		cur, ok := st.CannedResponses[groupID]
		if !ok {
			return
		}
		next := make(map[int][]models.CannedResponse, len(st.CannedResponses))
		for k, v := range st.CannedResponses {
			next[k] = v
		}
		list := make([]models.CannedResponse, len(cur))
		copy(list, cur)
		next[groupID] = fn(list)
		st.CannedResponses = next
	})
}

func copySneakPeeks(in map[string]models.SneakPeek) map[string]models.SneakPeek {
	out := make(map[string]models.SneakPeek, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
