package session

import (
	"context"

	"agentsync/pkg/logger"
	"agentsync/pkg/merge"
	"agentsync/pkg/models"
	"agentsync/pkg/restapi"
	"agentsync/pkg/store"
)

// The folder syncs below follow one pattern: a guard on the folder's
// status so concurrent callers do not double-fetch, a status flip to
// fetching, the page fetch, and a merge of the result. Failures land in
// the folder's error message instead of tearing the session down.

func (s *Session) listChats(ctx context.Context, payload any) (chats []models.Chat, nextPageID string, err error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, "", nil
	}
	resp, err := conn.ListChats(ctx, payload)
	if err != nil {
		return nil, "", err
	}
	return resp.Chats, resp.NextPageID, nil
}

func inactiveFilter(pinned *bool) map[string]any {
	filters := map[string]any{
		"include_active":                false,
		"include_chats_without_threads": false,
	}
	if pinned != nil {
		filters["properties"] = map[string]any{
			"routing": map[string]any{
				"pinned": map[string]any{"values": []bool{*pinned}},
			},
		}
	}
	return filters
}

func boolPtr(v bool) *bool { return &v }

// SyncPinnedChats fetches the first page of pinned chats once.
func (s *Session) SyncPinnedChats(ctx context.Context) error {
	if s.store.GetState().PinnedChatsStatus != store.SyncUnknown {
		return nil
	}
	s.store.Dispatch(func(st *store.State) { st.PinnedChatsStatus = store.SyncFetching })

	chats, nextPageID, err := s.listChats(ctx, map[string]any{
		"filters": inactiveFilter(boolPtr(true)),
		"limit":   25,
	})
	if err != nil {
		s.store.Dispatch(func(st *store.State) {
			st.PinnedChatsStatus = store.SyncError
			st.PinnedChatsSyncError = err.Error()
		})
		return err
	}

	s.store.Dispatch(func(st *store.State) {
		st.Chats = merge.Chats(st.Chats, byID(chats))
		st.PinnedChatIDs = chatIDs(chats)
		st.PinnedChatsStatus = store.SyncFetched
		st.PinnedChatsNextPageID = nextPageID
	})
	return nil
}

// LoadMorePinnedChats fetches the next pinned page, if one exists.
func (s *Session) LoadMorePinnedChats(ctx context.Context) error {
	st := s.store.GetState()
	if st.PinnedChatsStatus != store.SyncFetched || st.PinnedChatsNextPageID == "" {
		return nil
	}
	pageID := st.PinnedChatsNextPageID
	s.store.Dispatch(func(st *store.State) { st.PinnedChatsStatus = store.SyncFetching })

	chats, nextPageID, err := s.listChats(ctx, map[string]any{"page_id": pageID})
	if err != nil {
		s.store.Dispatch(func(st *store.State) {
			st.PinnedChatsStatus = store.SyncError
			st.PinnedChatsSyncError = err.Error()
		})
		return err
	}

	s.store.Dispatch(func(st *store.State) {
		st.Chats = merge.Chats(st.Chats, byID(chats))
		st.PinnedChatIDs = merge.Unique(st.PinnedChatIDs, chatIDs(chats))
		st.PinnedChatsStatus = store.SyncFetched
		st.PinnedChatsNextPageID = nextPageID
	})
	return nil
}

// SyncArchivedChats fetches the first page of closed, unpinned chats
// once.
func (s *Session) SyncArchivedChats(ctx context.Context) error {
	if s.store.GetState().ArchivedChatsStatus != store.SyncUnknown {
		return nil
	}
	s.store.Dispatch(func(st *store.State) { st.ArchivedChatsStatus = store.SyncFetching })

	chats, nextPageID, err := s.listChats(ctx, map[string]any{
		"filters": inactiveFilter(boolPtr(false)),
		"limit":   25,
	})
	if err != nil {
		s.store.Dispatch(func(st *store.State) {
			st.ArchivedChatsStatus = store.SyncError
			st.ArchivedChatsSyncError = err.Error()
		})
		return err
	}

	s.store.Dispatch(func(st *store.State) {
		st.Chats = merge.Chats(st.Chats, byID(chats))
		st.ArchivedChatIDs = chatIDs(chats)
		st.ArchivedChatsStatus = store.SyncFetched
		st.ArchivedChatsNextPageID = nextPageID
	})
	return nil
}

// LoadMoreArchivedChats fetches the next archive page, if one exists.
func (s *Session) LoadMoreArchivedChats(ctx context.Context) error {
	st := s.store.GetState()
	if st.ArchivedChatsStatus != store.SyncFetched || st.ArchivedChatsNextPageID == "" {
		return nil
	}
	pageID := st.ArchivedChatsNextPageID
	s.store.Dispatch(func(st *store.State) { st.ArchivedChatsStatus = store.SyncFetching })

	chats, nextPageID, err := s.listChats(ctx, map[string]any{"page_id": pageID})
	if err != nil {
		s.store.Dispatch(func(st *store.State) {
			st.ArchivedChatsStatus = store.SyncError
			st.ArchivedChatsSyncError = err.Error()
		})
		return err
	}

	s.store.Dispatch(func(st *store.State) {
		st.Chats = merge.Chats(st.Chats, byID(chats))
		st.ArchivedChatIDs = merge.Unique(st.ArchivedChatIDs, chatIDs(chats))
		st.ArchivedChatsStatus = store.SyncFetched
		st.ArchivedChatsNextPageID = nextPageID
	})
	return nil
}

// SyncInactiveChats fetches the first page of all closed chats once.
func (s *Session) SyncInactiveChats(ctx context.Context) error {
	if s.store.GetState().InactiveChatsStatus != store.SyncUnknown {
		return nil
	}
	s.store.Dispatch(func(st *store.State) { st.InactiveChatsStatus = store.SyncFetching })

	chats, nextPageID, err := s.listChats(ctx, map[string]any{
		"filters": inactiveFilter(nil),
		"limit":   25,
	})
	if err != nil {
		s.store.Dispatch(func(st *store.State) {
			st.InactiveChatsStatus = store.SyncError
			st.InactiveChatsSyncError = err.Error()
		})
		return err
	}

	s.store.Dispatch(func(st *store.State) {
		st.Chats = merge.Chats(st.Chats, byID(chats))
		st.InactiveChatIDs = chatIDs(chats)
		st.InactiveChatsStatus = store.SyncFetched
		st.InactiveChatsNextPageID = nextPageID
	})
	return nil
}

// LoadMoreInactiveChats fetches the next closed-chats page, if one
// exists.
func (s *Session) LoadMoreInactiveChats(ctx context.Context) error {
	st := s.store.GetState()
	if st.InactiveChatsStatus != store.SyncFetched || st.InactiveChatsNextPageID == "" {
		return nil
	}
	pageID := st.InactiveChatsNextPageID
	s.store.Dispatch(func(st *store.State) { st.InactiveChatsStatus = store.SyncFetching })

	chats, nextPageID, err := s.listChats(ctx, map[string]any{"page_id": pageID})
	if err != nil {
		s.store.Dispatch(func(st *store.State) {
			st.InactiveChatsStatus = store.SyncError
			st.InactiveChatsSyncError = err.Error()
		})
		return err
	}

	s.store.Dispatch(func(st *store.State) {
		st.Chats = merge.Chats(st.Chats, byID(chats))
		st.InactiveChatIDs = merge.Unique(st.InactiveChatIDs, chatIDs(chats))
		st.InactiveChatsStatus = store.SyncFetched
		st.InactiveChatsNextPageID = nextPageID
	})
	return nil
}

// SyncIncompleteThreads backfills every thread of the chat whose event
// list is known to be partial. Each thread is fetched at most once at a
// time.
func (s *Session) SyncIncompleteThreads(ctx context.Context, chatID string) {
	st := s.store.GetState()
	chat, ok := st.Chats[chatID]
	if !ok {
		return
	}

	for _, thread := range chat.Threads {
		if !thread.Incomplete {
			continue
		}
		if st.ThreadSyncStatuses[thread.ID] == store.SyncFetching {
			continue
		}
		threadID := thread.ID

		s.store.Dispatch(func(st *store.State) {
			st.ThreadSyncStatuses = setSyncStatus(st.ThreadSyncStatuses, threadID, store.SyncFetching)
		})

		full, err := s.rest.GetChat(ctx, chatID, threadID)
		if err != nil {
			logger.Warn("session: thread backfill failed",
				"chat_id", chatID, "thread_id", threadID, "err", err)
			s.store.Dispatch(func(st *store.State) {
				st.ThreadSyncStatuses = setSyncStatus(st.ThreadSyncStatuses, threadID, store.SyncError)
			})
			continue
		}

		s.store.SetIncomingChat(full)
		s.store.Dispatch(func(st *store.State) {
			st.ThreadSyncStatuses = setSyncStatus(st.ThreadSyncStatuses, threadID, store.SyncFetched)
		})
	}
}

// ChatGap describes a hole in a chat's thread history to fill.
type ChatGap struct {
	ID        string
	SortOrder string
	Limit     int
	PageID    string
}

// SyncChatGap fetches one missing stretch of a chat's history.
func (s *Session) SyncChatGap(ctx context.Context, chatID string, gap ChatGap) error {
	st := s.store.GetState()
	if st.ChatGapStatuses[gap.ID] == store.SyncFetching {
		return nil
	}

	s.store.Dispatch(func(st *store.State) {
		st.ChatGapStatuses = setSyncStatus(st.ChatGapStatuses, gap.ID, store.SyncFetching)
	})

	resp, err := s.rest.ListThreads(ctx, restapi.ListThreadsRequest{
		ChatID:    chatID,
		SortOrder: gap.SortOrder,
		Limit:     gap.Limit,
		PageID:    gap.PageID,
	})

	status := store.SyncFetched
	if err != nil {
		status = store.SyncError
		logger.Warn("session: chat gap sync failed", "chat_id", chatID, "err", err)
	} else {
		s.store.SetChatThreads(chatID, resp.Threads)
	}
	s.store.Dispatch(func(st *store.State) {
		st.ChatGapStatuses = setSyncStatus(st.ChatGapStatuses, gap.ID, status)
	})
	return err
}

// SyncRoutingStatuses replaces the availability map with the server's
// view.
func (s *Session) SyncRoutingStatuses(ctx context.Context) error {
	statuses, err := s.rest.ListRoutingStatuses(ctx)
	if err != nil {
		return err
	}
	s.store.Dispatch(func(st *store.State) {
		st.RoutingStatuses = statuses
	})
	return nil
}

// SyncAgents refreshes the agent directory.
func (s *Session) SyncAgents(ctx context.Context) error {
	agents, err := s.rest.ListAgents(ctx, nil)
	if err != nil {
		return err
	}
	s.store.Dispatch(func(st *store.State) {
		st.Agents = agents
	})
	return nil
}

// SyncGroups refreshes the group directory.
func (s *Session) SyncGroups(ctx context.Context) error {
	groups, err := s.rest.ListGroups(ctx)
	if err != nil {
		return err
	}
	s.store.Dispatch(func(st *store.State) {
		st.Groups = groups
	})
	return nil
}

// MaybeSyncGroups fetches groups only while the directory looks
// unpopulated.
func (s *Session) MaybeSyncGroups(ctx context.Context) error {
	if len(s.store.GetState().Groups) > 1 {
		return nil
	}
	return s.SyncGroups(ctx)
}

// MaybeSyncCannedResponses loads a group's snippets on first use.
func (s *Session) MaybeSyncCannedResponses(ctx context.Context, groupID int) error {
	if _, ok := s.store.GetState().CannedResponses[groupID]; ok {
		return nil
	}
	return s.SyncCannedResponses(ctx, groupID)
}

// SyncCannedResponses fetches a group's snippets unconditionally.
func (s *Session) SyncCannedResponses(ctx context.Context, groupID int) error {
	responses, err := s.rest.GetCannedResponses(ctx, groupID)
	if err != nil {
		return err
	}
	s.store.Dispatch(func(st *store.State) {
		next := make(map[int][]models.CannedResponse, len(st.CannedResponses)+1)
		for k, v := range st.CannedResponses {
			next[k] = v
		}
		next[groupID] = responses
		st.CannedResponses = next
	})
	return nil
}

func byID(chats []models.Chat) map[string]models.Chat {
	out := make(map[string]models.Chat, len(chats))
	for _, c := range chats {
		out[c.ID] = c
	}
	return out
}

func chatIDs(chats []models.Chat) []string {
	out := make([]string, 0, len(chats))
	for _, c := range chats {
		out = append(out, c.ID)
	}
	return out
}

func setSyncStatus(in map[string]store.SyncStatus, key string, v store.SyncStatus) map[string]store.SyncStatus {
	out := make(map[string]store.SyncStatus, len(in)+1)
	for k, val := range in {
		out[k] = val
	}
	out[key] = v
	return out
}
