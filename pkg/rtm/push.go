package rtm

import (
	"encoding/json"
	"time"

	"agentsync/pkg/models"
)

// Push is a server-initiated frame. Concrete types carry the decoded
// payload for the actions the session consumes; everything else arrives
// as UnknownPush so no frame is ever dropped silently.
type Push interface {
	Action() string
}

type IncomingChatPush struct {
	Chat            models.Chat
	RequesterID     string
	TransferredFrom models.Transfer
}

type ChatDeactivatedPush struct {
	ChatID   string
	ThreadID string
	UserID   string
}

type ChatDeletedPush struct {
	ChatID string
}

type ThreadDeletedPush struct {
	ChatID   string
	ThreadID string
}

type ThreadsDeletedPush struct {
	DateFrom time.Time
	DateTo   time.Time
	Tag      string
}

type ChatAccessUpdatedPush struct {
	ChatID string
	Access models.Access
}

type ChatTransferredPush struct {
	models.ChatTransferred
}

type UserAddedToChatPush struct {
	ChatID      string
	ThreadID    string
	User        models.User
	Reason      string
	RequesterID string
}

type UserRemovedFromChatPush struct {
	ChatID      string
	ThreadID    string
	UserID      string
	Reason      string
	RequesterID string
}

type IncomingEventPush struct {
	ChatID   string
	ThreadID string
	Event    models.Event
}

type EventUpdatedPush struct {
	ChatID   string
	ThreadID string
	Event    models.Event
}

type IncomingRichMessagePostbackPush struct {
	UserID   string
	ChatID   string
	ThreadID string
	EventID  string
	Postback models.Postback
	Toggled  bool
}

type ChatPropertiesUpdatedPush struct {
	ChatID     string
	Properties models.PartialChatProperties
}

type ChatPropertiesDeletedPush struct {
	ChatID     string
	Properties map[string][]string
}

type ThreadPropertiesUpdatedPush struct {
	ChatID     string
	ThreadID   string
	Properties models.PartialThreadProperties
}

type ThreadPropertiesDeletedPush struct {
	ChatID     string
	ThreadID   string
	Properties map[string][]string
}

type EventPropertiesUpdatedPush struct {
	ChatID     string
	ThreadID   string
	EventID    string
	Properties models.EventProperties
}

type EventPropertiesDeletedPush struct {
	ChatID     string
	ThreadID   string
	EventID    string
	Properties map[string][]string
}

type ThreadTaggedPush struct {
	ChatID   string
	ThreadID string
	Tag      string
}

type ThreadUntaggedPush struct {
	ChatID   string
	ThreadID string
	Tag      string
}

type RoutingStatusSetPush struct {
	AgentID string
	Status  models.RoutingStatus
}

type AgentDisconnectedPush struct {
	Reason string
	Data   map[string]any
}

type IncomingSneakPeekPush struct {
	ChatID    string
	ThreadID  string
	SneakPeek models.SneakPeek
}

type EventsMarkedAsSeenPush struct {
	ChatID   string
	UserID   string
	SeenUpTo time.Time
}

type QueuePositionsUpdatedPush struct {
	Positions []models.QueuePosition
}

type IncomingMulticastPush struct {
	Payload json.RawMessage
}

type IncomingTypingIndicatorPush struct {
	ChatID          string
	ThreadID        string
	TypingIndicator map[string]any
}

type ChatUnfollowedPush struct {
	ChatID string
}

// UnknownPush carries any action the session has no typed form for.
// The raw payload stays available for logging and future handling.
type UnknownPush struct {
	PushAction string
	Payload    json.RawMessage
}

func (IncomingChatPush) Action() string                { return "incoming_chat" }
func (ChatDeactivatedPush) Action() string             { return "chat_deactivated" }
func (ChatDeletedPush) Action() string                 { return "chat_deleted" }
func (ThreadDeletedPush) Action() string               { return "thread_deleted" }
func (ThreadsDeletedPush) Action() string              { return "threads_deleted" }
func (ChatAccessUpdatedPush) Action() string           { return "chat_access_updated" }
func (ChatTransferredPush) Action() string             { return "chat_transferred" }
func (UserAddedToChatPush) Action() string             { return "user_added_to_chat" }
func (UserRemovedFromChatPush) Action() string         { return "user_removed_from_chat" }
func (IncomingEventPush) Action() string               { return "incoming_event" }
func (EventUpdatedPush) Action() string                { return "event_updated" }
func (IncomingRichMessagePostbackPush) Action() string { return "incoming_rich_message_postback" }
func (ChatPropertiesUpdatedPush) Action() string       { return "chat_properties_updated" }
func (ChatPropertiesDeletedPush) Action() string       { return "chat_properties_deleted" }
func (ThreadPropertiesUpdatedPush) Action() string     { return "thread_properties_updated" }
func (ThreadPropertiesDeletedPush) Action() string     { return "thread_properties_deleted" }
func (EventPropertiesUpdatedPush) Action() string      { return "event_properties_updated" }
func (EventPropertiesDeletedPush) Action() string      { return "event_properties_deleted" }
func (ThreadTaggedPush) Action() string                { return "thread_tagged" }
func (ThreadUntaggedPush) Action() string              { return "thread_untagged" }
func (RoutingStatusSetPush) Action() string            { return "routing_status_set" }
func (AgentDisconnectedPush) Action() string           { return "agent_disconnected" }
func (IncomingSneakPeekPush) Action() string           { return "incoming_sneak_peek" }
func (EventsMarkedAsSeenPush) Action() string          { return "events_marked_as_seen" }
func (QueuePositionsUpdatedPush) Action() string       { return "queue_positions_updated" }
func (IncomingMulticastPush) Action() string           { return "incoming_multicast" }
func (IncomingTypingIndicatorPush) Action() string     { return "incoming_typing_indicator" }
func (ChatUnfollowedPush) Action() string              { return "chat_unfollowed" }
func (p UnknownPush) Action() string                   { return p.PushAction }

// ParsePush decodes a push frame's payload for the given action.
func ParsePush(action string, payload json.RawMessage) Push {
	var m map[string]any
	// tolerant: some payloads are arrays or absent; m stays nil then
	_ = json.Unmarshal(payload, &m)

	s := func(key string) string {
		v, _ := m[key].(string)
		return v
	}

	switch action {
	case "incoming_chat":
		tm, _ := m["transferred_from"].(map[string]any)
		tr := models.Transfer{GroupIDs: []int{}, AgentIDs: []string{}}
		if tm != nil {
			if ids, ok := tm["group_ids"].([]any); ok {
				for _, g := range ids {
					if f, ok := g.(float64); ok {
						tr.GroupIDs = append(tr.GroupIDs, int(f))
					}
				}
			}
			if ids, ok := tm["agent_ids"].([]any); ok {
				for _, a := range ids {
					if sa, ok := a.(string); ok {
						tr.AgentIDs = append(tr.AgentIDs, sa)
					}
				}
			}
		}
		return IncomingChatPush{
			Chat:            models.ParseChat(m["chat"]),
			RequesterID:     s("requester_id"),
			TransferredFrom: tr,
		}
	case "chat_deactivated":
		return ChatDeactivatedPush{ChatID: s("chat_id"), ThreadID: s("thread_id"), UserID: s("user_id")}
	case "chat_deleted":
		return ChatDeletedPush{ChatID: s("chat_id")}
	case "thread_deleted":
		return ThreadDeletedPush{ChatID: s("chat_id"), ThreadID: s("thread_id")}
	case "threads_deleted":
		return ThreadsDeletedPush{
			DateFrom: models.ParseTime(m["date_from"]),
			DateTo:   models.ParseTime(m["date_to"]),
			Tag:      s("tag"),
		}
	case "chat_access_updated":
		return ChatAccessUpdatedPush{ChatID: s("id"), Access: models.ParseAccess(m["access"])}
	case "chat_transferred":
		return ChatTransferredPush{ChatTransferred: models.ParseChatTransferred(m)}
	case "user_added_to_chat":
		user, err := models.ParseUser(m["user"])
		if err != nil {
			return UnknownPush{PushAction: action, Payload: payload}
		}
		return UserAddedToChatPush{
			ChatID:      s("chat_id"),
			ThreadID:    s("thread_id"),
			User:        user,
			Reason:      s("reason"),
			RequesterID: s("requester_id"),
		}
	case "user_removed_from_chat":
		return UserRemovedFromChatPush{
			ChatID:      s("chat_id"),
			ThreadID:    s("thread_id"),
			UserID:      s("user_id"),
			Reason:      s("reason"),
			RequesterID: s("requester_id"),
		}
	case "incoming_event":
		return IncomingEventPush{
			ChatID:   s("chat_id"),
			ThreadID: s("thread_id"),
			Event:    models.ParseEvent(m["event"]),
		}
	case "event_updated":
		return EventUpdatedPush{
			ChatID:   s("chat_id"),
			ThreadID: s("thread_id"),
			Event:    models.ParseEvent(m["event"]),
		}
	case "incoming_rich_message_postback":
		pb, _ := m["postback"].(map[string]any)
		toggled := false
		var postback models.Postback
		if pb != nil {
			postback.ID, _ = pb["id"].(string)
			toggled, _ = pb["toggled"].(bool)
		}
		return IncomingRichMessagePostbackPush{
			UserID:   s("user_id"),
			ChatID:   s("chat_id"),
			ThreadID: s("thread_id"),
			EventID:  s("event_id"),
			Postback: postback,
			Toggled:  toggled,
		}
	case "chat_properties_updated":
		return ChatPropertiesUpdatedPush{
			ChatID:     s("chat_id"),
			Properties: models.ParsePartialChatProperties(m["properties"]),
		}
	case "chat_properties_deleted":
		return ChatPropertiesDeletedPush{
			ChatID:     s("chat_id"),
			Properties: models.ParseDeletedProperties(m["properties"]),
		}
	case "thread_properties_updated":
		return ThreadPropertiesUpdatedPush{
			ChatID:     s("chat_id"),
			ThreadID:   s("thread_id"),
			Properties: models.ParsePartialThreadProperties(m["properties"]),
		}
	case "thread_properties_deleted":
		return ThreadPropertiesDeletedPush{
			ChatID:     s("chat_id"),
			ThreadID:   s("thread_id"),
			Properties: models.ParseDeletedProperties(m["properties"]),
		}
	case "event_properties_updated":
		return EventPropertiesUpdatedPush{
			ChatID:     s("chat_id"),
			ThreadID:   s("thread_id"),
			EventID:    s("event_id"),
			Properties: models.ParseEventProperties(m["properties"]),
		}
	case "event_properties_deleted":
		return EventPropertiesDeletedPush{
			ChatID:     s("chat_id"),
			ThreadID:   s("thread_id"),
			EventID:    s("event_id"),
			Properties: models.ParseDeletedProperties(m["properties"]),
		}
	case "thread_tagged":
		return ThreadTaggedPush{ChatID: s("chat_id"), ThreadID: s("thread_id"), Tag: s("tag")}
	case "thread_untagged":
		return ThreadUntaggedPush{ChatID: s("chat_id"), ThreadID: s("thread_id"), Tag: s("tag")}
	case "routing_status_set":
		return RoutingStatusSetPush{
			AgentID: s("agent_id"),
			Status:  models.ParseRoutingStatus(m["status"]),
		}
	case "agent_disconnected":
		data, _ := m["data"].(map[string]any)
		return AgentDisconnectedPush{Reason: s("reason"), Data: data}
	case "incoming_sneak_peek":
		return IncomingSneakPeekPush{
			ChatID:    s("chat_id"),
			ThreadID:  s("thread_id"),
			SneakPeek: models.ParseSneakPeek(m["sneak_peek"]),
		}
	case "events_marked_as_seen":
		return EventsMarkedAsSeenPush{
			ChatID:   s("chat_id"),
			UserID:   s("user_id"),
			SeenUpTo: models.ParseTime(m["seen_up_to"]),
		}
	case "queue_positions_updated":
		var positions []any
		_ = json.Unmarshal(payload, &positions)
		return QueuePositionsUpdatedPush{Positions: models.ParseQueuePositions(positions)}
	case "incoming_multicast":
		return IncomingMulticastPush{Payload: payload}
	case "incoming_typing_indicator":
		ti, _ := m["typing_indicator"].(map[string]any)
		return IncomingTypingIndicatorPush{
			ChatID:          s("chat_id"),
			ThreadID:        s("thread_id"),
			TypingIndicator: ti,
		}
	case "chat_unfollowed":
		return ChatUnfollowedPush{ChatID: s("chat_id")}
	default:
		return UnknownPush{PushAction: action, Payload: payload}
	}
}
