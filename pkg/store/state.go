// Package store holds the console's single source of truth. State is an
// immutable snapshot swapped atomically on every dispatch; subscribers
// read snapshots and never see partial updates.
package store

import (
	"agentsync/pkg/models"
	"agentsync/pkg/routing"
)

// SyncStatus tracks a paged background fetch.
type SyncStatus string

const (
	SyncUnknown  SyncStatus = "unknown"
	SyncFetching SyncStatus = "fetching"
	SyncFetched  SyncStatus = "fetched"
	SyncError    SyncStatus = "error"
)

// NetworkStatus is the connection state shown to the agent. A session
// moves offline, connecting while the socket dials and logs in,
// updating while the chat set rebuilds, then online.
type NetworkStatus string

const (
	NetworkOnline     NetworkStatus = "online"
	NetworkOffline    NetworkStatus = "offline"
	NetworkConnecting NetworkStatus = "connecting"
	NetworkUpdating   NetworkStatus = "updating"
)

// State is one immutable snapshot of everything the console knows.
// Mutators receive a shallow copy: top-level fields may be reassigned
// freely, but maps and slices are shared with older snapshots and must
// be copied before modification.
type State struct {
	Credentials *models.Credentials
	Chats       map[string]models.Chat

	// One id list per inbox folder. A chat id lives in at most one of
	// the first six; archived and pinned chats also appear in
	// InactiveChatIDs.
	MyChatIDs         []string
	SupervisedChatIDs []string
	QueuedChatIDs     []string
	UnassignedChatIDs []string
	OtherChatIDs      []string
	ArchivedChatIDs   []string
	PinnedChatIDs     []string
	InactiveChatIDs   []string

	ArchivedChatsStatus     SyncStatus
	ArchivedChatsSyncError  string
	ArchivedChatsNextPageID string

	PinnedChatsStatus     SyncStatus
	PinnedChatsSyncError  string
	PinnedChatsNextPageID string

	InactiveChatsStatus     SyncStatus
	InactiveChatsSyncError  string
	InactiveChatsNextPageID string

	RoutingStatuses         map[string]models.RoutingStatus
	IsUpdatingRoutingStatus bool

	SelectedChatID     string
	SelectedChatFolder routing.ChatRoute

	ColorMode          string
	ShowDetailsSection bool
	MyProfile          *models.MyProfile
	License            *models.License
	CannedResponses    map[int][]models.CannedResponse

	ChatGapStatuses    map[string]SyncStatus
	ThreadSyncStatuses map[string]SyncStatus
	MessageStatuses    map[string]models.EventStatus
	FileUploads        map[string]Upload
	SneakPeeks         map[string]models.SneakPeek

	NetworkStatus NetworkStatus

	Agents []models.AgentEntry
	Groups []models.Group

	SearchQuery         string
	SearchNextPageID    string
	SearchFoundChats    int
	SearchErrorMessage  string
	SearchRecentQueries []string
}

// Upload tracks an in-flight file upload keyed by the event's
// correlation id. Cancelling discards the progress signal together with
// the upload.
type Upload struct {
	Progress *Progress
	Cancel   func()
}

// NewState returns the zero snapshot a fresh session starts from.
func NewState() State {
	return State{
		Chats:               map[string]models.Chat{},
		MyChatIDs:           []string{},
		SupervisedChatIDs:   []string{},
		QueuedChatIDs:       []string{},
		UnassignedChatIDs:   []string{},
		OtherChatIDs:        []string{},
		ArchivedChatIDs:     []string{},
		PinnedChatIDs:       []string{},
		InactiveChatIDs:     []string{},
		ArchivedChatsStatus: SyncUnknown,
		PinnedChatsStatus:   SyncUnknown,
		InactiveChatsStatus: SyncUnknown,
		RoutingStatuses:     map[string]models.RoutingStatus{},
		SelectedChatFolder:  routing.RouteMy,
		ColorMode:           "light",
		ShowDetailsSection:  true,
		CannedResponses:     map[int][]models.CannedResponse{},
		ChatGapStatuses:     map[string]SyncStatus{},
		ThreadSyncStatuses:  map[string]SyncStatus{},
		MessageStatuses:     map[string]models.EventStatus{},
		FileUploads:         map[string]Upload{},
		SneakPeeks:          map[string]models.SneakPeek{},
		NetworkStatus:       NetworkOffline,
		Agents:              []models.AgentEntry{},
		Groups:              []models.Group{},
		SearchRecentQueries: []string{},
	}
}

// CopyChats returns a copy of the chats map safe to modify inside a
// dispatch.
func (s *State) CopyChats() map[string]models.Chat {
	out := make(map[string]models.Chat, len(s.Chats))
	for id, c := range s.Chats {
		out[id] = c
	}
	return out
}
