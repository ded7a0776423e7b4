package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"agentsync/pkg/chaterr"
	"agentsync/pkg/models"
)

type recordedRequest struct {
	path   string
	header http.Header
	body   map[string]any
}

// restServer answers every POST with the configured status and body and
// records what it saw.
type restServer struct {
	*httptest.Server
	mu       sync.Mutex
	status   int
	response string
	requests []recordedRequest
}

func newRESTServer(t *testing.T, status int, response string) *restServer {
	t.Helper()
	s := &restServer{status: status, response: response}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		json.Unmarshal(raw, &body)
		s.mu.Lock()
		s.requests = append(s.requests, recordedRequest{path: r.URL.Path, header: r.Header.Clone(), body: body})
		status, response := s.status, s.response
		s.mu.Unlock()
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *restServer) last(t *testing.T) recordedRequest {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		t.Fatalf("no requests recorded")
	}
	return s.requests[len(s.requests)-1]
}

func newTestClient(srv *restServer, token string) *Client {
	return New(Config{BaseURL: srv.URL, RPS: 1000, Burst: 1000}, func() string { return token })
}

func TestRequestHeaders(t *testing.T) {
	srv := newRESTServer(t, 200, `{}`)
	c := newTestClient(srv, "fra:abc123")

	if err := c.FollowChat(context.Background(), "c1"); err != nil {
		t.Fatalf("FollowChat: %v", err)
	}

	req := srv.last(t)
	if req.path != "/v3.5/agent/action/follow_chat" {
		t.Fatalf("path = %q", req.path)
	}
	if got := req.header.Get("Authorization"); got != "Bearer fra:abc123" {
		t.Fatalf("authorization = %q", got)
	}
	if got := req.header.Get("X-Api-Version"); got != "2" {
		t.Fatalf("x-api-version = %q", got)
	}
	if got := req.header.Get("X-Region"); got != "fra" {
		t.Fatalf("x-region = %q", got)
	}
}

func TestRegionDefaultsWithoutPrefix(t *testing.T) {
	srv := newRESTServer(t, 200, `{}`)
	c := newTestClient(srv, "plain-token")

	if err := c.FollowChat(context.Background(), "c1"); err != nil {
		t.Fatalf("FollowChat: %v", err)
	}
	if got := srv.last(t).header.Get("X-Region"); got != "dal" {
		t.Fatalf("x-region = %q, want dal", got)
	}
}

func TestErrorBodyMapsToKind(t *testing.T) {
	srv := newRESTServer(t, 400, `{"error": {"type": "chat_inactive", "message": "Chat is inactive"}}`)
	c := newTestClient(srv, "t")

	err := c.DeactivateChat(context.Background(), "c1")
	if chaterr.KindOf(err) != chaterr.KindChatInactive {
		t.Fatalf("kind = %s, want chat_inactive", chaterr.KindOf(err))
	}
	var ce *chaterr.Error
	if !errors.As(err, &ce) || ce.Status != 400 {
		t.Fatalf("status not carried: %v", err)
	}
}

func TestErrorsArrayJoined(t *testing.T) {
	srv := newRESTServer(t, 422, `{"errors": ["group is required", "group must be a number"]}`)
	c := newTestClient(srv, "t")

	_, err := c.GetCannedResponses(context.Background(), 0)
	if chaterr.KindOf(err) != chaterr.KindInternal {
		t.Fatalf("kind = %s", chaterr.KindOf(err))
	}
	if !strings.Contains(err.Error(), "group is required, group must be a number") {
		t.Fatalf("messages not joined: %v", err)
	}
}

func TestGetChatParsesResponse(t *testing.T) {
	srv := newRESTServer(t, 200, `{
		"id": "ch1",
		"users": [{"id": "v1", "type": "customer", "present": true}],
		"thread": {"id": "t1", "active": true, "created_at": "2026-03-01T10:00:00Z"}
	}`)
	c := newTestClient(srv, "t")

	chat, err := c.GetChat(context.Background(), "ch1", "t1")
	if err != nil {
		t.Fatalf("GetChat: %v", err)
	}
	if chat.ID != "ch1" || len(chat.Threads) != 1 || chat.Threads[0].ID != "t1" {
		t.Fatalf("chat = %+v", chat)
	}
	body := srv.last(t).body
	if body["chat_id"] != "ch1" || body["thread_id"] != "t1" {
		t.Fatalf("request body = %v", body)
	}
}

func TestListThreadsPaging(t *testing.T) {
	srv := newRESTServer(t, 200, `{
		"threads": [
			{"id": "t1", "active": false, "created_at": "2026-03-01T09:00:00Z"},
			{"id": "t2", "active": true, "created_at": "2026-03-01T10:00:00Z"}
		],
		"found_threads": 12,
		"next_page_id": "page2"
	}`)
	c := newTestClient(srv, "t")

	resp, err := c.ListThreads(context.Background(), ListThreadsRequest{ChatID: "c1", Limit: 2})
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(resp.Threads) != 2 || resp.FoundThreads != 12 || resp.NextPageID != "page2" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestSendEventReturnsID(t *testing.T) {
	srv := newRESTServer(t, 200, `{"event_id": "ev42"}`)
	c := newTestClient(srv, "t")

	id, err := c.SendEvent(context.Background(), SendEventRequest{
		ChatID:             "c1",
		Event:              models.Event{Type: models.EventMessage, Text: "hi", CustomID: "local1"},
		AttachToLastThread: true,
	})
	if err != nil {
		t.Fatalf("SendEvent: %v", err)
	}
	if id != "ev42" {
		t.Fatalf("event_id = %q", id)
	}
	body := srv.last(t).body
	if body["attach_to_last_thread"] != true {
		t.Fatalf("attach_to_last_thread missing: %v", body)
	}
}

func TestListAgentsForTransfer(t *testing.T) {
	srv := newRESTServer(t, 200, `[
		{"agent_id": "a@example.com", "total_active_chats": 3},
		{"agent_id": "b@example.com", "total_active_chats": 0}
	]`)
	c := newTestClient(srv, "t")

	agents, err := c.ListAgentsForTransfer(context.Background(), "c1")
	if err != nil {
		t.Fatalf("ListAgentsForTransfer: %v", err)
	}
	if len(agents) != 2 || agents[0].AgentID != "a@example.com" || agents[0].TotalActiveChats != 3 {
		t.Fatalf("agents = %+v", agents)
	}
}

func TestGetCannedResponsesTrimsText(t *testing.T) {
	srv := newRESTServer(t, 200, `[
		{"id": 1, "group": 7, "text": "  hello there \n", "tags": ["greet", "hi"]}
	]`)
	c := newTestClient(srv, "t")

	crs, err := c.GetCannedResponses(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetCannedResponses: %v", err)
	}
	if len(crs) != 1 || crs[0].Text != "hello there" || len(crs[0].Tags) != 2 {
		t.Fatalf("canned = %+v", crs)
	}
	if srv.last(t).body["group"] != float64(7) {
		t.Fatalf("group not sent: %v", srv.last(t).body)
	}
}

func TestUploadFileReportsProgress(t *testing.T) {
	srv := newRESTServer(t, 200, `{"url": "https://cdn.example.com/f.png"}`)
	c := newTestClient(srv, "t")

	content := strings.Repeat("x", 1024)
	var mu sync.Mutex
	var fractions []float64
	res, err := c.UploadFile(context.Background(), "f.png", int64(len(content)),
		strings.NewReader(content), func(f float64) {
			mu.Lock()
			fractions = append(fractions, f)
			mu.Unlock()
		})
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if res.URL != "https://cdn.example.com/f.png" {
		t.Fatalf("url = %q", res.URL)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(fractions) == 0 || fractions[len(fractions)-1] != 1.0 {
		t.Fatalf("progress = %v", fractions)
	}
}

func TestUploadFileAborted(t *testing.T) {
	srv := newRESTServer(t, 200, `{"url": "u"}`)
	c := newTestClient(srv, "t")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.UploadFile(ctx, "f.png", 4, strings.NewReader("data"), nil)
	if chaterr.KindOf(err) != chaterr.KindAborted {
		t.Fatalf("kind = %s, want aborted", chaterr.KindOf(err))
	}
}

func TestUploadErrorMapped(t *testing.T) {
	srv := newRESTServer(t, 413, `{"error": {"type": "validation", "message": "file too large"}}`)
	c := newTestClient(srv, "t")

	_, err := c.UploadFile(context.Background(), "f.png", 4, strings.NewReader("data"), nil)
	if chaterr.KindOf(err) != chaterr.KindValidation {
		t.Fatalf("kind = %s, want validation", chaterr.KindOf(err))
	}
}

func TestCallAbortedByContext(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() { close(release); slow.Close() })

	c := New(Config{BaseURL: slow.URL, RPS: 1000, Burst: 1000}, func() string { return "t" })
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := c.FollowChat(ctx, "c1")
	if chaterr.KindOf(err) != chaterr.KindAborted {
		t.Fatalf("kind = %s, want aborted", chaterr.KindOf(err))
	}
}

func TestRefreshTokenExchanges(t *testing.T) {
	srv := newRESTServer(t, 200, `{
		"access_token": "fra:new-token",
		"refresh_token": "next-refresh",
		"entity_id": "agent@example.com",
		"expires_in": 28800,
		"scope": "chats--all:rw,agents--my:rw"
	}`)
	c := New(Config{BaseURL: srv.URL, AccountsURL: srv.URL, RPS: 1000, Burst: 1000},
		func() string { return "old" })

	creds, err := c.RefreshToken(context.Background(), "client-1", "old-refresh")
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}

	req := srv.last(t)
	if req.path != "/v2/token" {
		t.Fatalf("path = %q", req.path)
	}
	if got := req.header.Get("Authorization"); got != "" {
		t.Fatalf("refresh must not carry a bearer header, got %q", got)
	}
	if req.body["grant_type"] != "refresh_token" || req.body["client_id"] != "client-1" {
		t.Fatalf("body = %v", req.body)
	}
	if creds.AccessToken != "fra:new-token" || creds.RefreshToken != "next-refresh" {
		t.Fatalf("creds = %+v", creds)
	}
	if len(creds.Scopes) != 2 || creds.Scopes[0] != "chats--all:rw" {
		t.Fatalf("scopes = %v", creds.Scopes)
	}
	if until := time.Until(creds.ExpiresAt); until < 7*time.Hour || until > 9*time.Hour {
		t.Fatalf("expires_at = %v", creds.ExpiresAt)
	}
}

func TestRefreshTokenRejectionIsAuthentication(t *testing.T) {
	srv := newRESTServer(t, 400, `{"error": "invalid_grant", "error_description": "refresh token revoked"}`)
	c := New(Config{BaseURL: srv.URL, AccountsURL: srv.URL, RPS: 1000, Burst: 1000},
		func() string { return "old" })

	_, err := c.RefreshToken(context.Background(), "client-1", "revoked")
	if chaterr.KindOf(err) != chaterr.KindAuthentication {
		t.Fatalf("kind = %v, err = %v", chaterr.KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "refresh token revoked") {
		t.Fatalf("err = %v", err)
	}
}
