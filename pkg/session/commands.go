package session

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"agentsync/pkg/chaterr"
	"agentsync/pkg/logger"
	"agentsync/pkg/merge"
	"agentsync/pkg/models"
	"agentsync/pkg/restapi"
	"agentsync/pkg/routing"
	"agentsync/pkg/store"
	"agentsync/pkg/telemetry"
)

// SendTextMessage appends the message locally right away and confirms
// it against the server. The local copy is keyed by a correlation id;
// the server's incoming_event push for the same id replaces it instead
// of duplicating.
func (s *Session) SendTextMessage(ctx context.Context, chatID, text string) error {
	st := s.store.GetState()
	chat, ok := st.Chats[chatID]
	if !ok {
		return chaterr.New(chaterr.KindValidation, "chat is not loaded")
	}
	if st.MyProfile == nil {
		return chaterr.New(chaterr.KindValidation, "profile is not loaded")
	}
	thread := chat.ActiveThread()
	if thread == nil {
		return chaterr.New(chaterr.KindChatInactive, "chat has no active thread")
	}

	visibility := models.VisibilityAll
	if route, ok := s.CurrentRoute(chatID); ok && route == routing.RouteSupervised {
		visibility = models.VisibilityAgents
	}

	customID := uuid.NewString()
	event := models.Event{
		ID:         customID,
		CustomID:   customID,
		Type:       models.EventMessage,
		AuthorID:   st.MyProfile.ID,
		Text:       text,
		Visibility: visibility,
		Status:     models.StatusSending,
		CreatedAt:  time.Now(),
	}

	s.appendLocalEvent(chatID, thread.ID, event)

	eventID, err := s.rest.SendEvent(ctx, restapi.SendEventRequest{
		ChatID: chatID,
		Event:  event,
	})
	if err != nil {
		telemetry.EventsSent.WithLabelValues("failed").Inc()
		s.markSendFailed(customID)
		return err
	}

	telemetry.EventsSent.WithLabelValues("ok").Inc()
	s.confirmLocalEvent(chatID, thread.ID, customID, func(e models.Event) models.Event {
		e.ID = eventID
		e.Status = models.StatusDelivered
		return e
	})
	return nil
}

// SendFileMessage uploads the file and appends the resulting file event
// the same optimistic way. Cancelling the returned upload removes the
// local event entirely; a failed upload keeps it in the failed state so
// the agent can retry.
func (s *Session) SendFileMessage(ctx context.Context, chatID, name string, size int64, content io.Reader) error {
	st := s.store.GetState()
	chat, ok := st.Chats[chatID]
	if !ok {
		return chaterr.New(chaterr.KindValidation, "chat is not loaded")
	}
	if st.MyProfile == nil {
		return chaterr.New(chaterr.KindValidation, "profile is not loaded")
	}
	thread := chat.ActiveThread()
	if thread == nil {
		return chaterr.New(chaterr.KindChatInactive, "chat has no active thread")
	}

	visibility := models.VisibilityAll
	if route, ok := s.CurrentRoute(chatID); ok && route == routing.RouteSupervised {
		visibility = models.VisibilityAgents
	}

	customID := uuid.NewString()
	event := models.Event{
		ID:         customID,
		CustomID:   customID,
		Type:       models.EventFile,
		AuthorID:   st.MyProfile.ID,
		Visibility: visibility,
		Status:     models.StatusSending,
		CreatedAt:  time.Now(),
		File:       &models.FileDetails{Name: name, Size: size},
	}

	uploadCtx, cancel := context.WithCancel(ctx)
	progress := store.NewProgress()

	s.store.Dispatch(func(st *store.State) {
		uploads := make(map[string]store.Upload, len(st.FileUploads)+1)
		for k, v := range st.FileUploads {
			uploads[k] = v
		}
		uploads[customID] = store.Upload{Progress: progress, Cancel: cancel}
		st.FileUploads = uploads
	})
	s.appendLocalEvent(chatID, thread.ID, event)

	result, err := s.rest.UploadFile(uploadCtx, name, size, content, progress.Set)
	if err == nil {
		_, err = s.rest.SendEvent(ctx, restapi.SendEventRequest{
			ChatID: chatID,
			Event: models.Event{
				Type:       models.EventFile,
				CustomID:   customID,
				Visibility: models.VisibilityAll,
				File:       &models.FileDetails{URL: result.URL},
			},
			AttachToLastThread: true,
		})
	}
	cancel()

	s.store.Dispatch(func(st *store.State) {
		uploads := make(map[string]store.Upload, len(st.FileUploads))
		for k, v := range st.FileUploads {
			if k != customID {
				uploads[k] = v
			}
		}
		st.FileUploads = uploads
	})

	if err != nil {
		if chaterr.KindOf(err) == chaterr.KindAborted {
			// an aborted upload disappears without a trace
			s.store.Dispatch(func(st *store.State) {
				chat, ok := st.Chats[chatID]
				if ok {
					chats := st.CopyChats()
					chats[chatID] = merge.DeleteEventByCustomID(chat, thread.ID, customID)
					st.Chats = chats
				}
				st.MessageStatuses = deleteStatus(st.MessageStatuses, customID)
			})
			return err
		}
		telemetry.EventsSent.WithLabelValues("failed").Inc()
		s.markSendFailed(customID)
		return err
	}

	telemetry.EventsSent.WithLabelValues("ok").Inc()
	s.confirmLocalEvent(chatID, thread.ID, customID, func(e models.Event) models.Event {
		e.Status = models.StatusDelivered
		if e.File != nil {
			f := *e.File
			f.URL = result.URL
			e.File = &f
		}
		return e
	})
	return nil
}

// CancelFileUpload aborts an in-flight upload by its correlation id.
func (s *Session) CancelFileUpload(customID string) {
	st := s.store.GetState()
	if up, ok := st.FileUploads[customID]; ok && up.Cancel != nil {
		up.Cancel()
	}
}

func (s *Session) appendLocalEvent(chatID, threadID string, event models.Event) {
	s.store.Dispatch(func(st *store.State) {
		if chat, ok := st.Chats[chatID]; ok {
			chats := st.CopyChats()
			chats[chatID] = merge.UpdateThread(chat, threadID, func(th models.Thread) models.Thread {
				th.Events = merge.Events(th.Events, []models.Event{event})
				return th
			})
			st.Chats = chats
		}
		st.MessageStatuses = setStatus(st.MessageStatuses, event.CustomID, models.StatusSending)
	})
}

func (s *Session) confirmLocalEvent(chatID, threadID, customID string, fn func(models.Event) models.Event) {
	s.store.Dispatch(func(st *store.State) {
		if chat, ok := st.Chats[chatID]; ok {
			chats := st.CopyChats()
			chats[chatID] = merge.UpdateEventByCustomID(chat, threadID, customID, fn)
			st.Chats = chats
		}
		st.MessageStatuses = deleteStatus(st.MessageStatuses, customID)
	})
}

func (s *Session) markSendFailed(customID string) {
	s.store.Dispatch(func(st *store.State) {
		st.MessageStatuses = setStatus(st.MessageStatuses, customID, models.StatusFailed)
	})
}

// MarkEventsAsSeen advances this agent's seen cursor past the given
// event, locally first. Cursors never move backwards.
func (s *Session) MarkEventsAsSeen(ctx context.Context, chatID string, event models.Event) error {
	st := s.store.GetState()
	chat, ok := st.Chats[chatID]
	if !ok || st.MyProfile == nil {
		return nil
	}
	me := chat.UserByID(st.MyProfile.ID)
	if me == nil {
		return nil
	}
	if !event.CreatedAt.After(me.EventsSeenUpTo) {
		return nil
	}

	myID := st.MyProfile.ID
	s.store.Dispatch(func(st *store.State) {
		chat, ok := st.Chats[chatID]
		if !ok {
			return
		}
		chats := st.CopyChats()
		chats[chatID] = merge.UpdateUser(chat, myID, func(u models.User) models.User {
			u.EventsSeenUpTo = event.CreatedAt
			return u
		})
		st.Chats = chats
	})

	if err := s.rest.MarkEventsAsSeen(ctx, chatID, event.CreatedAt); err != nil {
		logger.Warn("session: mark events as seen failed", "chat_id", chatID, "err", err)
		return err
	}
	return nil
}

// SetRoutingStatus changes this agent's availability, optimistically.
func (s *Session) SetRoutingStatus(ctx context.Context, status models.RoutingStatus) error {
	st := s.store.GetState()
	if st.MyProfile == nil {
		return chaterr.New(chaterr.KindValidation, "profile is not loaded").WithStatus(400)
	}
	myID := st.MyProfile.ID

	s.setLocalRoutingStatus(myID, status)

	if err := s.rest.SetRoutingStatus(ctx, status); err != nil {
		return err
	}
	return nil
}

// ToggleRoutingStatus flips between accepting and not accepting chats.
// The flip shows immediately and rolls back if the server refuses.
func (s *Session) ToggleRoutingStatus(ctx context.Context) error {
	st := s.store.GetState()
	if st.MyProfile == nil {
		return chaterr.New(chaterr.KindValidation, "profile is not loaded").WithStatus(400)
	}
	if st.IsUpdatingRoutingStatus {
		return chaterr.New(chaterr.KindValidation, "routing update already pending").WithStatus(400)
	}
	myID := st.MyProfile.ID

	current, hadCurrent := st.RoutingStatuses[myID]
	next := models.RoutingAccepting
	if current == models.RoutingAccepting {
		next = models.RoutingNotAccepting
	}

	s.store.Dispatch(func(st *store.State) {
		st.RoutingStatuses = setRoutingStatus(st.RoutingStatuses, myID, next)
		st.IsUpdatingRoutingStatus = true
	})

	err := s.rest.SetRoutingStatus(ctx, next)
	if err != nil && hadCurrent {
		logger.Warn("session: routing status update failed, rolling back", "err", err)
		s.setLocalRoutingStatus(myID, current)
	}

	s.store.Dispatch(func(st *store.State) {
		st.IsUpdatingRoutingStatus = false
	})
	return err
}

func (s *Session) setLocalRoutingStatus(agentID string, status models.RoutingStatus) {
	s.store.Dispatch(func(st *store.State) {
		st.RoutingStatuses = setRoutingStatus(st.RoutingStatuses, agentID, status)
	})
}

// AssignChatToMe joins the chat as a full participant. A chat that went
// inactive in the meantime is resumed with this agent on board instead.
func (s *Session) AssignChatToMe(ctx context.Context, chatID string) error {
	st := s.store.GetState()
	if st.MyProfile == nil {
		return chaterr.New(chaterr.KindValidation, "profile is not loaded")
	}
	myID := st.MyProfile.ID

	err := s.rest.AddUserToChat(ctx, restapi.AddUserToChatRequest{
		ChatID:                  chatID,
		UserID:                  myID,
		UserType:                models.UserAgent,
		Visibility:              models.VisibilityAll,
		IgnoreRequesterPresence: true,
	})
	if err == nil {
		return nil
	}
	if chaterr.KindOf(err) != chaterr.KindChatInactive {
		return err
	}

	groupID := 0
	if chat, ok := st.Chats[chatID]; ok && len(chat.Access.GroupIDs) > 0 {
		groupID = chat.Access.GroupIDs[0]
	}

	req := restapi.ResumeChatRequest{}
	req.Chat.ID = chatID
	req.Chat.Access = models.Access{GroupIDs: []int{groupID}}
	req.Chat.Users = []struct {
		ID   string          `json:"id"`
		Type models.UserType `json:"type"`
	}{{ID: myID, Type: models.UserAgent}}

	_, err = s.rest.ResumeChat(ctx, req)
	return err
}

// PickChatFromQueue takes the next queued chat.
func (s *Session) PickChatFromQueue(ctx context.Context, chatID string) error {
	st := s.store.GetState()
	if st.MyProfile == nil {
		return chaterr.New(chaterr.KindValidation, "profile is not loaded")
	}
	return s.rest.AddUserToChat(ctx, restapi.AddUserToChatRequest{
		ChatID:                  chatID,
		UserID:                  st.MyProfile.ID,
		UserType:                models.UserAgent,
		Visibility:              models.VisibilityAll,
		IgnoreRequesterPresence: true,
	})
}

// StartSupervising follows another agent's chat and joins it with
// agents-only visibility.
func (s *Session) StartSupervising(ctx context.Context, chatID string) error {
	st := s.store.GetState()
	if st.MyProfile == nil {
		return chaterr.New(chaterr.KindValidation, "profile is not loaded")
	}
	if err := s.rest.FollowChat(ctx, chatID); err != nil {
		return err
	}
	return s.rest.AddUserToChat(ctx, restapi.AddUserToChatRequest{
		ChatID:                  chatID,
		UserID:                  st.MyProfile.ID,
		UserType:                models.UserAgent,
		Visibility:              models.VisibilityAgents,
		IgnoreRequesterPresence: true,
	})
}

// StopSupervising leaves a supervised chat: unfollow, then drop this
// agent from the chat's user list.
func (s *Session) StopSupervising(ctx context.Context, chatID string) error {
	st := s.store.GetState()
	if st.MyProfile == nil {
		return chaterr.New(chaterr.KindValidation, "profile is not loaded")
	}
	if err := s.rest.UnfollowChat(ctx, chatID); err != nil {
		return err
	}
	return s.rest.RemoveUserFromChat(ctx, chatID, st.MyProfile.ID, models.UserAgent)
}

// TakeOverChat transfers the chat to this agent.
func (s *Session) TakeOverChat(ctx context.Context, chatID string) error {
	st := s.store.GetState()
	if st.MyProfile == nil {
		return chaterr.New(chaterr.KindValidation, "profile is not loaded")
	}
	return s.rest.TransferChat(ctx, restapi.TransferChatRequest{
		ID:                       chatID,
		Target:                   restapi.TransferTarget{Type: "agent", IDs: []any{st.MyProfile.ID}},
		IgnoreAgentsAvailability: true,
		IgnoreRequesterPresence:  true,
	})
}

// TransferChat hands the chat to another group or agent and deselects
// it if it was open.
func (s *Session) TransferChat(ctx context.Context, chatID string, target restapi.TransferTarget) error {
	st := s.store.GetState()
	if st.SelectedChatID == chatID {
		s.store.Dispatch(func(st *store.State) {
			st.SelectedChatID = ""
		})
	}
	return s.rest.TransferChat(ctx, restapi.TransferChatRequest{
		ID:                       chatID,
		Target:                   target,
		IgnoreAgentsAvailability: true,
		IgnoreRequesterPresence:  true,
	})
}

// DeactivateChat closes the chat's active thread.
func (s *Session) DeactivateChat(ctx context.Context, chatID string) error {
	return s.rest.DeactivateChat(ctx, chatID)
}

// UnpinChat clears the pinned flag so the chat falls back to the
// archive.
func (s *Session) UnpinChat(ctx context.Context, chatID string) error {
	return s.rest.UpdateChatProperties(ctx, chatID, map[string]map[string]any{
		"routing": {"pinned": false},
	})
}

// SelectChat opens a chat in the console and kicks off the fetches the
// view needs: incomplete thread backfill and the group's canned
// responses.
func (s *Session) SelectChat(ctx context.Context, chatID string) {
	st := s.store.GetState()
	groupID := 0
	if chat, ok := st.Chats[chatID]; ok && len(chat.Access.GroupIDs) > 0 {
		groupID = chat.Access.GroupIDs[0]
	}

	s.store.Dispatch(func(st *store.State) {
		st.SelectedChatID = chatID
	})

	s.SyncIncompleteThreads(ctx, chatID)
	if err := s.MaybeSyncCannedResponses(ctx, groupID); err != nil {
		logger.Warn("session: canned responses sync failed", "group", groupID, "err", err)
	}
}

// SelectFolder switches the visible inbox folder. Opening the archive
// triggers its first fetch.
func (s *Session) SelectFolder(ctx context.Context, folder routing.ChatRoute) {
	s.store.Dispatch(func(st *store.State) {
		st.SelectedChatFolder = folder
	})
	if folder == routing.RouteClosed {
		if err := s.SyncArchivedChats(ctx); err != nil {
			logger.Warn("session: archived chats sync failed", "err", err)
		}
	}
}

// Search runs an archive search. A new query cancels the previous one;
// the query joins the recent-queries list immediately.
func (s *Session) Search(ctx context.Context, query string) error {
	s.CancelSearch()

	query = strings.TrimSpace(query)
	if query == "" {
		s.store.Dispatch(func(st *store.State) {
			st.SearchQuery = ""
			st.SearchFoundChats = 0
			st.SearchNextPageID = ""
			st.SearchErrorMessage = ""
		})
		return nil
	}

	searchCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.searchCancel = cancel
	s.mu.Unlock()

	s.store.Dispatch(func(st *store.State) {
		st.SearchQuery = query
		st.SearchErrorMessage = ""
		st.SearchRecentQueries = merge.Unique([]string{query}, st.SearchRecentQueries)
	})

	req := restapi.ListArchivesRequest{Limit: 25}
	req.Filters.Query = query
	resp, err := s.rest.ListArchives(searchCtx, req)
	if err != nil {
		if chaterr.KindOf(err) != chaterr.KindAborted {
			s.store.Dispatch(func(st *store.State) {
				st.SearchErrorMessage = err.Error()
			})
		}
		return err
	}

	s.store.Dispatch(func(st *store.State) {
		incoming := make(map[string]models.Chat, len(resp.Chats))
		for _, c := range resp.Chats {
			incoming[c.ID] = c
		}
		st.Chats = merge.Chats(st.Chats, incoming)
		st.SearchFoundChats = resp.FoundChats
		st.SearchNextPageID = resp.NextPageID
	})
	return nil
}

// CancelSearch aborts the in-flight search, if any.
func (s *Session) CancelSearch() {
	s.mu.Lock()
	cancel := s.searchCancel
	s.searchCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// DeleteRecentSearchQuery drops one entry from the search history.
func (s *Session) DeleteRecentSearchQuery(query string) {
	s.store.Dispatch(func(st *store.State) {
		out := make([]string, 0, len(st.SearchRecentQueries))
		for _, q := range st.SearchRecentQueries {
			if q != query {
				out = append(out, q)
			}
		}
		st.SearchRecentQueries = out
	})
}

// SetColorMode switches the console theme.
func (s *Session) SetColorMode(mode string) {
	s.store.Dispatch(func(st *store.State) {
		st.ColorMode = mode
	})
}

// ToggleDetailsSection shows or hides the customer details panel.
func (s *Session) ToggleDetailsSection() {
	s.store.Dispatch(func(st *store.State) {
		st.ShowDetailsSection = !st.ShowDetailsSection
	})
}

func setStatus(in map[string]models.EventStatus, key string, v models.EventStatus) map[string]models.EventStatus {
	out := make(map[string]models.EventStatus, len(in)+1)
	for k, val := range in {
		out[k] = val
	}
	out[key] = v
	return out
}

func deleteStatus(in map[string]models.EventStatus, key string) map[string]models.EventStatus {
	out := make(map[string]models.EventStatus, len(in))
	for k, v := range in {
		if k != key {
			out[k] = v
		}
	}
	return out
}

func setRoutingStatus(in map[string]models.RoutingStatus, key string, v models.RoutingStatus) map[string]models.RoutingStatus {
	out := make(map[string]models.RoutingStatus, len(in)+1)
	for k, val := range in {
		out[k] = val
	}
	out[key] = v
	return out
}

