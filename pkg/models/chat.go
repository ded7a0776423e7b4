package models

import "time"

// Visibility scopes an event or an agent's participation to everyone in
// the chat or to agents only.
type Visibility string

const (
	VisibilityAll    Visibility = "all"
	VisibilityAgents Visibility = "agents"
)

// RoutingStatus is the per-agent availability, independent of any chat.
type RoutingStatus string

const (
	RoutingAccepting    RoutingStatus = "accepting_chats"
	RoutingNotAccepting RoutingStatus = "not_accepting_chats"
	RoutingOffline      RoutingStatus = "offline"
)

// Access describes group/routing ownership of a chat or thread.
type Access struct {
	GroupIDs []int `json:"group_ids"`
}

// Chat is a single visitor conversation spanning one or more threads.
// Threads are ordered oldest first; at most one of them may be active.
type Chat struct {
	ID         string         `json:"id"`
	Users      []User         `json:"users"`
	Threads    []Thread       `json:"threads"`
	Access     Access         `json:"access"`
	IsFollowed bool           `json:"is_followed"`
	Properties ChatProperties `json:"properties"`
}

// Thread is a contiguous segment of a chat's conversation. Events are
// ordered ascending by creation time. Incomplete means the event list may
// not be exhaustive and must be backfilled on demand.
type Thread struct {
	ID               string           `json:"id"`
	Active           bool             `json:"active"`
	Incomplete       bool             `json:"incomplete"`
	Events           []Event          `json:"events"`
	Access           Access           `json:"access"`
	Highlights       []Highlight      `json:"highlight,omitempty"`
	Properties       ThreadProperties `json:"properties"`
	RestrictedAccess string           `json:"restricted_access,omitempty"`
	Queue            *Queue           `json:"queue,omitempty"`
	Tags             []string         `json:"tags,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	NextThreadID     string           `json:"next_thread_id,omitempty"`
	PreviousThreadID string           `json:"previous_thread_id,omitempty"`
}

// Queue is a thread's position in the routing queue.
type Queue struct {
	Position int       `json:"position"`
	WaitTime int       `json:"wait_time"`
	QueuedAt time.Time `json:"queued_at"`
}

// QueuePosition is one entry of a queue_positions_updated push.
type QueuePosition struct {
	ChatID   string `json:"chat_id"`
	ThreadID string `json:"thread_id"`
	Queue    *Queue `json:"queue"`
}

// Highlight is a search-match fragment attached to an archived thread.
type Highlight struct {
	Type      string `json:"type"`
	Field     string `json:"field"`
	Highlight string `json:"highlight"`
}

// ChatProperties are the chat-level routing and source properties.
type ChatProperties struct {
	Routing ChatRouting `json:"routing"`
	Source  ChatSource  `json:"source"`
}

type ChatRouting struct {
	Continuous bool `json:"continuous"`
	Pinned     bool `json:"pinned"`
}

type ChatSource struct {
	CustomerClientID string `json:"customer_client_id"`
}

// PartialChatProperties carries only the fields a chat_properties_updated
// push actually specified.
type PartialChatProperties struct {
	Routing struct {
		Continuous *bool
		Pinned     *bool
	}
	Source struct {
		CustomerClientID *string
	}
}

// ThreadProperties are the thread-level routing, source and rating
// properties.
type ThreadProperties struct {
	Routing ThreadRouting `json:"routing"`
	Source  ThreadSource  `json:"source"`
	Rating  ThreadRating  `json:"rating"`
}

type ThreadRouting struct {
	Idle                  bool  `json:"idle"`
	Unassigned            bool  `json:"unassigned,omitempty"`
	LastTransferTimestamp int64 `json:"last_transfer_timestamp,omitempty"`
}

type ThreadSource struct {
	ClientID string `json:"client_id"`
}

type ThreadRating struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

// PartialThreadProperties carries only the fields a
// thread_properties_updated push actually specified.
type PartialThreadProperties struct {
	Routing struct {
		Idle                  *bool
		Unassigned            *bool
		LastTransferTimestamp *int64
	}
	Source struct {
		ClientID *string
	}
	Rating struct {
		Score   *int
		Comment *string
	}
}

// ChatTransferred is the payload of a chat_transferred push.
type ChatTransferred struct {
	ChatID        string   `json:"chat_id"`
	ThreadID      string   `json:"thread_id"`
	RequesterID   string   `json:"requester_id"`
	Reason        string   `json:"reason"`
	TransferredTo Transfer `json:"transferred_to"`
	Queue         *Queue   `json:"queue,omitempty"`
}

// Transfer names the groups and agents a chat was handed to.
type Transfer struct {
	GroupIDs []int    `json:"group_ids"`
	AgentIDs []string `json:"agent_ids"`
}

// SneakPeek is a live preview of what the visitor is typing.
type SneakPeek struct {
	AuthorID   string `json:"author_id"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
	Recipients string `json:"recipients"`
}

// MyProfile is the logged-in agent's profile returned by login.
type MyProfile struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Email         string        `json:"email"`
	Avatar        string        `json:"avatar"`
	Permission    string        `json:"permission"`
	RoutingStatus RoutingStatus `json:"routing_status"`
}

// License identifies the customer account the connection belongs to.
type License struct {
	ID int `json:"id"`
}

// CannedResponse is a reusable reply snippet scoped to a group.
type CannedResponse struct {
	ID    int      `json:"id"`
	Group int      `json:"group"`
	Tags  []string `json:"tags"`
	Text  string   `json:"text"`
}

// AgentEntry is one row of the agent directory listing.
type AgentEntry struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Group is one row of the group directory listing.
type Group struct {
	ID            int           `json:"id"`
	Name          string        `json:"name"`
	RoutingStatus RoutingStatus `json:"routing_status,omitempty"`
}
