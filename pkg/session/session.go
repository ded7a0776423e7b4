// Package session drives one agent's live connection: it logs in over
// the socket, feeds pushes into the store through the route debouncer,
// exposes the agent-facing commands, and reconnects with backoff when
// the transport drops.
package session

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"agentsync/pkg/chaterr"
	"agentsync/pkg/logger"
	"agentsync/pkg/merge"
	"agentsync/pkg/models"
	"agentsync/pkg/restapi"
	"agentsync/pkg/routing"
	"agentsync/pkg/rtm"
	"agentsync/pkg/store"
	"agentsync/pkg/telemetry"
)

// RTMConn is the slice of the socket client the session drives.
type RTMConn interface {
	OnPush(fn func(rtm.Push))
	OnClose(fn func(manual bool))
	Login(ctx context.Context, req rtm.LoginRequest) (rtm.LoginResponse, error)
	ListChats(ctx context.Context, payload any) (rtm.ListChatsResponse, error)
	Perform(ctx context.Context, action string, payload any) (json.RawMessage, error)
	Close() error
}

// Dialer opens a fresh socket connection.
type Dialer func(ctx context.Context) (RTMConn, error)

// REST is the slice of the web API client the session drives.
type REST interface {
	GetChat(ctx context.Context, chatID, threadID string) (models.Chat, error)
	ListThreads(ctx context.Context, req restapi.ListThreadsRequest) (restapi.ListThreadsResponse, error)
	ListArchives(ctx context.Context, req restapi.ListArchivesRequest) (restapi.ListArchivesResponse, error)
	SendEvent(ctx context.Context, req restapi.SendEventRequest) (string, error)
	MarkEventsAsSeen(ctx context.Context, chatID string, seenUpTo time.Time) error
	AddUserToChat(ctx context.Context, req restapi.AddUserToChatRequest) error
	RemoveUserFromChat(ctx context.Context, chatID, userID string, userType models.UserType) error
	ResumeChat(ctx context.Context, req restapi.ResumeChatRequest) (restapi.ResumeChatResponse, error)
	DeactivateChat(ctx context.Context, chatID string) error
	FollowChat(ctx context.Context, chatID string) error
	UnfollowChat(ctx context.Context, chatID string) error
	TransferChat(ctx context.Context, req restapi.TransferChatRequest) error
	UpdateChatProperties(ctx context.Context, chatID string, properties map[string]map[string]any) error
	ListRoutingStatuses(ctx context.Context) (map[string]models.RoutingStatus, error)
	SetRoutingStatus(ctx context.Context, status models.RoutingStatus) error
	ListAgentsForTransfer(ctx context.Context, chatID string) ([]restapi.AgentForTransfer, error)
	ListAgents(ctx context.Context, groupIDs []int) ([]models.AgentEntry, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	GetCannedResponses(ctx context.Context, groupID int) ([]models.CannedResponse, error)
	UploadFile(ctx context.Context, name string, size int64, content io.Reader, progress func(float64)) (restapi.UploadResult, error)
}

// Options wires a Session together.
type Options struct {
	Store  *store.Store
	Router *routing.Router
	Dial   Dialer
	REST   REST
	// Backoff paces reconnect attempts; nil gets the default windows.
	Backoff *Backoff
	// Timezone is sent with login, e.g. "Europe/Warsaw".
	Timezone string
	// Application identifies this client to the platform.
	AppName    string
	AppVersion string
}

// Session is one agent's connection lifecycle. Commands may be called
// from any goroutine; pushes are processed on the socket's read
// goroutine.
type Session struct {
	store   *store.Store
	router  *routing.Router
	rest    REST
	dial    Dialer
	backoff *Backoff

	timezone   string
	appName    string
	appVersion string

	mu           sync.Mutex
	conn         RTMConn
	searchCancel context.CancelFunc
}

// New builds a Session and hooks it into the router's settled
// transitions.
func New(opts Options) *Session {
	s := &Session{
		store:      opts.Store,
		router:     opts.Router,
		rest:       opts.REST,
		dial:       opts.Dial,
		backoff:    opts.Backoff,
		timezone:   opts.Timezone,
		appName:    opts.AppName,
		appVersion: opts.AppVersion,
	}
	if s.backoff == nil {
		s.backoff = NewBackoff()
	}
	if s.appName == "" {
		s.appName = "agentsync"
	}
	s.router.OnRouteChange(s.applyRouteChange)
	return s
}

// Run connects and keeps the session alive until ctx is cancelled. A
// transport drop schedules a reconnect; an authentication rejection
// returns immediately since retrying with the same token cannot help.
func (s *Session) Run(ctx context.Context) error {
	for {
		closed, err := s.connect(ctx)
		if err != nil {
			if chaterr.KindOf(err) == chaterr.KindAuthentication {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := s.backoff.Next()
			logger.Warn("session: connect failed, will retry",
				"err", err, "wait", wait, "attempt", s.backoff.Attempts())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		select {
		case <-ctx.Done():
			s.closeConn()
			return ctx.Err()
		case manual := <-closed:
			s.router.Reset()
			s.store.Dispatch(func(st *store.State) {
				st.NetworkStatus = store.NetworkOffline
			})
			telemetry.Connected.Set(0)
			if manual {
				return nil
			}
			wait := s.backoff.Next()
			logger.Info("session: connection lost, reconnecting", "wait", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
}

// Close shuts the current connection down. Run returns after the close
// settles.
func (s *Session) Close() {
	s.closeConn()
}

func (s *Session) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// connect performs one full connection attempt: dial, login, rebuild
// the chat set, and kick off the follow-up syncs. The returned channel
// fires once when the connection closes.
func (s *Session) connect(ctx context.Context) (<-chan bool, error) {
	state := s.store.GetState()
	if state.Credentials == nil {
		return nil, chaterr.New(chaterr.KindAuthentication, "no credentials")
	}
	token := state.Credentials.AccessToken

	s.store.Dispatch(func(st *store.State) {
		st.NetworkStatus = store.NetworkConnecting
	})

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}

	// Handlers go on before login. A close during the login or sync
	// window must still reach Run, and pushes arriving before the
	// rebuild finishes are held back so their dispatches cannot
	// interleave with the rebuild's own.
	closed := make(chan bool, 1)
	conn.OnClose(func(manual bool) { closed <- manual })

	var pushMu sync.Mutex
	var backlog []rtm.Push
	live := false
	conn.OnPush(func(p rtm.Push) {
		pushMu.Lock()
		defer pushMu.Unlock()
		if !live {
			backlog = append(backlog, p)
			return
		}
		s.handlePush(p)
	})

	login, err := conn.Login(ctx, rtm.LoginRequest{
		Token:     "Bearer " + token,
		Timezone:  s.timezone,
		Reconnect: true,
		Application: map[string]any{
			"name":    s.appName,
			"version": s.appVersion,
		},
	})
	if err != nil {
		conn.Close()
		return nil, err
	}

	s.store.Dispatch(func(st *store.State) {
		st.NetworkStatus = store.NetworkUpdating
	})

	// every chat we knew before plus every chat the login reported can
	// change its route during the rebuild
	state = s.store.GetState()
	known := make([]string, 0, len(state.Chats))
	for id := range state.Chats {
		known = append(known, id)
	}
	incoming := make([]string, 0, len(login.ChatsSummary))
	for _, c := range login.ChatsSummary {
		incoming = append(incoming, c.ID)
	}
	transitions := s.startTransitions(merge.Unique(known, incoming))

	s.store.SetInitialState(login.ChatsSummary, login.License, login.MyProfile)
	transitions.commit()

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if err := s.SyncPinnedChats(ctx); err != nil {
		logger.Warn("session: pinned chats sync failed", "err", err)
	}
	if err := s.SyncRoutingStatuses(ctx); err != nil {
		logger.Warn("session: routing statuses sync failed", "err", err)
	}

	s.store.Dispatch(func(st *store.State) {
		st.NetworkStatus = store.NetworkOnline
	})

	// replay whatever arrived while the rebuild ran, then go live; the
	// lock keeps the read goroutine out until the replay finishes
	pushMu.Lock()
	for _, p := range backlog {
		s.handlePush(p)
	}
	backlog = nil
	live = true
	pushMu.Unlock()

	s.backoff.Reset()
	telemetry.Connected.Set(1)
	telemetry.Reconnects.WithLabelValues("ok").Inc()
	logger.Info("session: connected",
		"agent", login.MyProfile.ID, "chats", len(login.ChatsSummary))
	return closed, nil
}

// routeOf classifies a chat against the current snapshot.
func (s *Session) routeOf(st store.State, chatID string) (routing.ChatRoute, bool) {
	if st.MyProfile == nil {
		return "", false
	}
	chat, ok := st.Chats[chatID]
	if !ok {
		return "", false
	}
	return routing.Classify(chat, st.MyProfile.ID), true
}

// CurrentRoute is the route the UI should show for a chat: the
// pre-churn route while a transition is pending, the classified route
// otherwise.
func (s *Session) CurrentRoute(chatID string) (routing.ChatRoute, bool) {
	if initial, ok := s.router.Initial(chatID); ok {
		return initial, initial != ""
	}
	return s.routeOf(s.store.GetState(), chatID)
}

// transition captures a chat's route before a mutation so the change
// can be handed to the router afterwards.
type transition struct {
	s      *Session
	chatID string
	prev   routing.ChatRoute
}

func (s *Session) startTransition(chatID string) transition {
	prev, _ := s.routeOf(s.store.GetState(), chatID)
	return transition{s: s, chatID: chatID, prev: prev}
}

func (t transition) commit(requesterID string) {
	next, ok := t.s.routeOf(t.s.store.GetState(), t.chatID)
	if !ok {
		return
	}
	t.s.router.SetChatRoute(t.chatID, t.prev, next, requesterID)
}

type transitionSet []transition

func (s *Session) startTransitions(chatIDs []string) transitionSet {
	out := make(transitionSet, 0, len(chatIDs))
	for _, id := range chatIDs {
		out = append(out, s.startTransition(id))
	}
	return out
}

func (ts transitionSet) commit() {
	for _, t := range ts {
		t.commit("")
	}
}

// applyRouteChange moves a settled chat into its new folder list. A
// chat lives in at most one of the open folders; closed and pinned
// chats also join the inactive list.
func (s *Session) applyRouteChange(t routing.Transition) {
	telemetry.RouteTransitions.WithLabelValues(string(t.Final)).Inc()

	s.store.Dispatch(func(st *store.State) {
		st.MyChatIDs = removeID(st.MyChatIDs, t.ChatID)
		st.SupervisedChatIDs = removeID(st.SupervisedChatIDs, t.ChatID)
		st.QueuedChatIDs = removeID(st.QueuedChatIDs, t.ChatID)
		st.UnassignedChatIDs = removeID(st.UnassignedChatIDs, t.ChatID)
		st.OtherChatIDs = removeID(st.OtherChatIDs, t.ChatID)
		st.ArchivedChatIDs = removeID(st.ArchivedChatIDs, t.ChatID)
		st.PinnedChatIDs = removeID(st.PinnedChatIDs, t.ChatID)

		switch t.Final {
		case routing.RouteMy:
			st.MyChatIDs = append(st.MyChatIDs, t.ChatID)
		case routing.RouteSupervised:
			st.SupervisedChatIDs = append(st.SupervisedChatIDs, t.ChatID)
		case routing.RouteQueued:
			st.QueuedChatIDs = append(st.QueuedChatIDs, t.ChatID)
		case routing.RouteUnassigned:
			st.UnassignedChatIDs = append(st.UnassignedChatIDs, t.ChatID)
		case routing.RouteOther:
			st.OtherChatIDs = append(st.OtherChatIDs, t.ChatID)
		case routing.RouteClosed:
			st.ArchivedChatIDs = append(st.ArchivedChatIDs, t.ChatID)
			st.InactiveChatIDs = merge.Unique(st.InactiveChatIDs, []string{t.ChatID})
		case routing.RoutePinned:
			st.PinnedChatIDs = append(st.PinnedChatIDs, t.ChatID)
			st.InactiveChatIDs = merge.Unique(st.InactiveChatIDs, []string{t.ChatID})
		default:
			logger.Warn("session: unknown chat route", "route", t.Final, "chat_id", t.ChatID)
		}
	})
}

// removeID copies; appending to the result must not touch the backing
// array an older snapshot still shares.
func removeID(list []string, id string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
