// Package restapi is the client for the platform's REST surface: the
// calls that don't ride the socket (archives, uploads, directory
// listings) plus web fallbacks for a few socket actions.
package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"agentsync/pkg/chaterr"
	"agentsync/pkg/models"
	"agentsync/pkg/telemetry"
)

// Config tunes the REST client.
type Config struct {
	// BaseURL is the API origin, e.g. https://api.livechatinc.com.
	BaseURL string
	// AccountsURL is the OAuth token service used for refresh.
	AccountsURL string
	// RPS and Burst bound the request rate across all callers.
	RPS   float64
	Burst int
	// Timeout bounds a single round trip.
	Timeout time.Duration
}

// Client talks to the REST API. Safe for concurrent use; all requests
// share one rate limiter so a chatty caller cannot starve the session.
type Client struct {
	base     string
	accounts string
	token    func() string
	hc       *fasthttp.Client
	limiter  *rate.Limiter
	timeout  time.Duration
}

// New builds a Client. token is called per request so a refreshed
// credential takes effect without rebuilding the client.
func New(cfg Config, token func() string) *Client {
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.AccountsURL == "" {
		cfg.AccountsURL = "https://accounts.livechat.com"
	}
	return &Client{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		accounts: strings.TrimRight(cfg.AccountsURL, "/"),
		token:    token,
		hc:       &fasthttp.Client{},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		timeout:  cfg.Timeout,
	}
}

// region is encoded as the token prefix before the first colon.
func region(token string) string {
	if i := strings.IndexByte(token, ':'); i > 0 {
		return token[:i]
	}
	return "dal"
}

// call posts a JSON body to path and decodes the response into a
// generic JSON value. Non-2xx responses map onto the wire error
// taxonomy; an undecodable body is an internal_error.
func (c *Client) call(ctx context.Context, path string, body any) (any, error) {
	endpoint := path[strings.LastIndexByte(path, '/')+1:]

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, chaterr.Wrap(chaterr.KindAborted, "aborted", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, chaterr.Wrap(chaterr.KindValidation, "unencodable request body", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	token := c.token()
	req.SetRequestURI(c.base + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-API-Version", "2")
	req.Header.Set("X-Region", region(token))
	req.SetBody(payload)

	if err := c.do(ctx, req, resp); err != nil {
		telemetry.RESTRequests.WithLabelValues(endpoint, "transport_error").Inc()
		return nil, err
	}

	status := resp.StatusCode()
	var decoded any
	if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
		telemetry.RESTRequests.WithLabelValues(endpoint, "parse_error").Inc()
		return nil, chaterr.Wrap(chaterr.KindInternal,
			fmt.Sprintf("failed to parse JSON response: %.200s", resp.Body()), err).WithStatus(status)
	}

	if status >= 200 && status < 300 {
		telemetry.RESTRequests.WithLabelValues(endpoint, "ok").Inc()
		return decoded, nil
	}

	telemetry.RESTRequests.WithLabelValues(endpoint, "error").Inc()
	return nil, wireError(decoded, status)
}

// do runs the round trip honoring ctx. fasthttp has no context support
// of its own, so the deadline rides on DoDeadline and cancellation is
// checked around it.
func (c *Client) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	if err := ctx.Err(); err != nil {
		return chaterr.Wrap(chaterr.KindAborted, "aborted", err)
	}
	deadline := time.Now().Add(c.timeout)
	fromCtx := false
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
		fromCtx = true
	}

	done := make(chan error, 1)
	go func() { done <- c.hc.DoDeadline(req, resp, deadline) }()
	select {
	case <-ctx.Done():
		return chaterr.Wrap(chaterr.KindAborted, "aborted", ctx.Err())
	case err := <-done:
		if err != nil {
			// a timeout on the ctx's own deadline is a cancellation even
			// when DoDeadline reports it before ctx.Err() flips
			if ctx.Err() != nil || (fromCtx && errors.Is(err, fasthttp.ErrTimeout)) {
				return chaterr.Wrap(chaterr.KindAborted, "aborted", err)
			}
			return chaterr.Wrap(chaterr.KindConnection, "request failed", err)
		}
		return nil
	}
}

func wireError(decoded any, status int) error {
	m, _ := decoded.(map[string]any)
	if em, ok := m["error"].(map[string]any); ok {
		typ, _ := em["type"].(string)
		msg, _ := em["message"].(string)
		return chaterr.FromWire(typ, msg).WithStatus(status)
	}
	// some endpoints answer {"errors": ["..."]}
	if list, ok := m["errors"].([]any); ok {
		parts := make([]string, 0, len(list))
		for _, e := range list {
			if s, ok := e.(string); ok {
				parts = append(parts, s)
			}
		}
		return chaterr.New(chaterr.KindInternal, strings.Join(parts, ", ")).WithStatus(status)
	}
	return chaterr.New(chaterr.KindInternal, "unknown error").WithStatus(status)
}

// GetChat fetches one full chat, optionally a specific thread of it.
func (c *Client) GetChat(ctx context.Context, chatID, threadID string) (models.Chat, error) {
	body := map[string]any{"chat_id": chatID}
	if threadID != "" {
		body["thread_id"] = threadID
	}
	resp, err := c.call(ctx, "/v3.5/agent/action/get_chat", body)
	if err != nil {
		return models.Chat{}, err
	}
	return models.ParseChat(resp), nil
}

// ListThreadsResponse is one page of a chat's thread history.
type ListThreadsResponse struct {
	Threads      []models.Thread
	FoundThreads int
	NextPageID   string
}

// ListThreadsRequest selects the page.
type ListThreadsRequest struct {
	ChatID         string `json:"chat_id"`
	SortOrder      string `json:"sort_order,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	PageID         string `json:"page_id,omitempty"`
	MinEventsCount int    `json:"min_events_count,omitempty"`
}

// ListThreads fetches one page of threads for a chat.
func (c *Client) ListThreads(ctx context.Context, req ListThreadsRequest) (ListThreadsResponse, error) {
	resp, err := c.call(ctx, "/v3.5/agent/action/list_threads", req)
	if err != nil {
		return ListThreadsResponse{}, err
	}
	m, _ := resp.(map[string]any)
	out := ListThreadsResponse{}
	if raw, ok := m["threads"].([]any); ok {
		for _, t := range raw {
			out.Threads = append(out.Threads, models.ParseThread(t))
		}
	}
	if f, ok := m["found_threads"].(float64); ok {
		out.FoundThreads = int(f)
	}
	out.NextPageID, _ = m["next_page_id"].(string)
	return out, nil
}

// ListArchivesRequest is a filtered archive search.
type ListArchivesRequest struct {
	Filters struct {
		Query    string `json:"query"`
		From     string `json:"from,omitempty"`
		To       string `json:"to,omitempty"`
		GroupIDs []int  `json:"group_ids,omitempty"`
	} `json:"filters"`
	PageID     string `json:"page_id,omitempty"`
	SortOrder  string `json:"sort_order,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Highlights any    `json:"highlights,omitempty"`
}

// ListArchivesResponse is one page of archived chats.
type ListArchivesResponse struct {
	Chats      []models.Chat
	FoundChats int
	NextPageID string
}

// ListArchives searches closed chats.
func (c *Client) ListArchives(ctx context.Context, req ListArchivesRequest) (ListArchivesResponse, error) {
	resp, err := c.call(ctx, "/v3.5/agent/action/list_archives", req)
	if err != nil {
		return ListArchivesResponse{}, err
	}
	m, _ := resp.(map[string]any)
	out := ListArchivesResponse{}
	if raw, ok := m["chats"].([]any); ok {
		for _, ch := range raw {
			out.Chats = append(out.Chats, models.ParseChat(ch))
		}
	}
	if f, ok := m["found_chats"].(float64); ok {
		out.FoundChats = int(f)
	}
	out.NextPageID, _ = m["next_page_id"].(string)
	return out, nil
}

// SendEventRequest appends an event to a chat.
type SendEventRequest struct {
	ChatID             string       `json:"chat_id"`
	Event              models.Event `json:"event"`
	AttachToLastThread bool         `json:"attach_to_last_thread"`
}

// SendEvent appends an event and returns the server-assigned event id.
func (c *Client) SendEvent(ctx context.Context, req SendEventRequest) (string, error) {
	resp, err := c.call(ctx, "/v3.5/agent/action/send_event", req)
	if err != nil {
		return "", err
	}
	m, _ := resp.(map[string]any)
	id, _ := m["event_id"].(string)
	return id, nil
}

// MarkEventsAsSeen advances this agent's seen cursor in a chat.
func (c *Client) MarkEventsAsSeen(ctx context.Context, chatID string, seenUpTo time.Time) error {
	_, err := c.call(ctx, "/v3.5/agent/action/mark_events_as_seen", map[string]any{
		"chat_id":    chatID,
		"seen_up_to": seenUpTo.UTC().Format(time.RFC3339Nano),
	})
	return err
}

// AddUserToChatRequest adds a user to an active chat.
type AddUserToChatRequest struct {
	ChatID                  string            `json:"chat_id"`
	UserID                  string            `json:"user_id"`
	UserType                models.UserType   `json:"user_type"`
	Visibility              models.Visibility `json:"visibility"`
	IgnoreRequesterPresence bool              `json:"ignore_requester_presence,omitempty"`
}

// AddUserToChat adds a participant. A chat_inactive error means the
// caller should resume the chat instead.
func (c *Client) AddUserToChat(ctx context.Context, req AddUserToChatRequest) error {
	_, err := c.call(ctx, "/v3.5/agent/action/add_user_to_chat", req)
	return err
}

// RemoveUserFromChat drops a participant from an active chat.
func (c *Client) RemoveUserFromChat(ctx context.Context, chatID, userID string, userType models.UserType) error {
	_, err := c.call(ctx, "/v3.5/agent/action/remove_user_from_chat", map[string]any{
		"chat_id":   chatID,
		"user_id":   userID,
		"user_type": userType,
	})
	return err
}

// ResumeChatRequest reopens a closed chat.
type ResumeChatRequest struct {
	Chat struct {
		ID         string        `json:"id"`
		Continuous bool          `json:"continuous,omitempty"`
		Access     models.Access `json:"access"`
		Users      []struct {
			ID   string          `json:"id"`
			Type models.UserType `json:"type"`
		} `json:"users,omitempty"`
	} `json:"chat"`
}

// ResumeChatResponse carries the new thread.
type ResumeChatResponse struct {
	ThreadID string
	EventIDs []string
}

// ResumeChat opens a new thread on a closed chat.
func (c *Client) ResumeChat(ctx context.Context, req ResumeChatRequest) (ResumeChatResponse, error) {
	resp, err := c.call(ctx, "/v3.5/agent/action/resume_chat", req)
	if err != nil {
		return ResumeChatResponse{}, err
	}
	m, _ := resp.(map[string]any)
	out := ResumeChatResponse{}
	out.ThreadID, _ = m["thread_id"].(string)
	if ids, ok := m["event_ids"].([]any); ok {
		for _, id := range ids {
			if s, ok := id.(string); ok {
				out.EventIDs = append(out.EventIDs, s)
			}
		}
	}
	return out, nil
}

// DeactivateChat closes a chat's active thread.
func (c *Client) DeactivateChat(ctx context.Context, chatID string) error {
	_, err := c.call(ctx, "/v3.5/agent/action/deactivate_chat", map[string]any{"id": chatID})
	return err
}

// FollowChat subscribes this agent to a chat's pushes.
func (c *Client) FollowChat(ctx context.Context, chatID string) error {
	_, err := c.call(ctx, "/v3.5/agent/action/follow_chat", map[string]any{"id": chatID})
	return err
}

// UnfollowChat unsubscribes this agent from a chat's pushes.
func (c *Client) UnfollowChat(ctx context.Context, chatID string) error {
	_, err := c.call(ctx, "/v3.5/agent/action/unfollow_chat", map[string]any{"id": chatID})
	return err
}

// TransferTarget names where a chat goes.
type TransferTarget struct {
	Type string `json:"type"` // "group" or "agent"
	IDs  []any  `json:"ids"`
}

// TransferChatRequest hands a chat to another group or agent.
type TransferChatRequest struct {
	ID                       string         `json:"id"`
	Target                   TransferTarget `json:"target"`
	IgnoreAgentsAvailability bool           `json:"ignore_agents_availability"`
	IgnoreRequesterPresence  bool           `json:"ignore_requester_presence"`
}

// TransferChat hands the chat over.
func (c *Client) TransferChat(ctx context.Context, req TransferChatRequest) error {
	_, err := c.call(ctx, "/v3.5/agent/action/transfer_chat", req)
	return err
}

// UpdateChatProperties patches a chat's property bag.
func (c *Client) UpdateChatProperties(ctx context.Context, chatID string, properties map[string]map[string]any) error {
	_, err := c.call(ctx, "/v3.5/agent/action/update_chat_properties", map[string]any{
		"id":         chatID,
		"properties": properties,
	})
	return err
}

// ListRoutingStatuses fetches every agent's availability.
func (c *Client) ListRoutingStatuses(ctx context.Context) (map[string]models.RoutingStatus, error) {
	resp, err := c.call(ctx, "/v3.5/agent/action/list_routing_statuses", map[string]any{})
	if err != nil {
		return nil, err
	}
	return models.ParseRoutingStatuses(resp), nil
}

// SetRoutingStatus changes this agent's availability over REST.
func (c *Client) SetRoutingStatus(ctx context.Context, status models.RoutingStatus) error {
	_, err := c.call(ctx, "/v3.5/agent/action/set_routing_status", map[string]any{"status": string(status)})
	return err
}

// AgentForTransfer is a transfer candidate with its current load.
type AgentForTransfer struct {
	AgentID          string
	TotalActiveChats int
}

// ListAgentsForTransfer lists agents a chat can be handed to.
func (c *Client) ListAgentsForTransfer(ctx context.Context, chatID string) ([]AgentForTransfer, error) {
	resp, err := c.call(ctx, "/v3.5/agent/action/list_agents_for_transfer", map[string]any{"chat_id": chatID})
	if err != nil {
		return nil, err
	}
	raw, _ := resp.([]any)
	out := make([]AgentForTransfer, 0, len(raw))
	for _, item := range raw {
		m, _ := item.(map[string]any)
		if m == nil {
			continue
		}
		id, _ := m["agent_id"].(string)
		total, _ := m["total_active_chats"].(float64)
		out = append(out, AgentForTransfer{AgentID: id, TotalActiveChats: int(total)})
	}
	return out, nil
}

// ListAgents fetches the agent directory from the configuration API.
func (c *Client) ListAgents(ctx context.Context, groupIDs []int) ([]models.AgentEntry, error) {
	body := map[string]any{}
	if len(groupIDs) > 0 {
		body["filters"] = map[string]any{"group_ids": groupIDs}
	}
	resp, err := c.call(ctx, "/v3.5/configuration/action/list_agents", body)
	if err != nil {
		return nil, err
	}
	raw, _ := resp.([]any)
	out := make([]models.AgentEntry, 0, len(raw))
	for _, item := range raw {
		m, _ := item.(map[string]any)
		if m == nil {
			continue
		}
		id, _ := m["id"].(string)
		name, _ := m["name"].(string)
		avatar, _ := m["avatar_path"].(string)
		out = append(out, models.AgentEntry{ID: id, Name: name, Avatar: avatar})
	}
	return out, nil
}

// ListGroups fetches the group directory from the configuration API.
func (c *Client) ListGroups(ctx context.Context) ([]models.Group, error) {
	resp, err := c.call(ctx, "/v3.5/configuration/action/list_groups", map[string]any{})
	if err != nil {
		return nil, err
	}
	raw, _ := resp.([]any)
	out := make([]models.Group, 0, len(raw))
	for _, item := range raw {
		m, _ := item.(map[string]any)
		if m == nil {
			continue
		}
		id, _ := m["id"].(float64)
		name, _ := m["name"].(string)
		out = append(out, models.Group{
			ID:            int(id),
			Name:          name,
			RoutingStatus: models.ParseRoutingStatus(m["routing_status"]),
		})
	}
	return out, nil
}

// GetCannedResponses fetches the reply snippets for a group.
func (c *Client) GetCannedResponses(ctx context.Context, groupID int) ([]models.CannedResponse, error) {
	resp, err := c.call(ctx, "/v3.5/agent/action/list_canned_responses", map[string]any{"group": groupID})
	if err != nil {
		return nil, err
	}
	raw, _ := resp.([]any)
	out := make([]models.CannedResponse, 0, len(raw))
	for _, item := range raw {
		m, _ := item.(map[string]any)
		if m == nil {
			continue
		}
		id, _ := m["id"].(float64)
		group, _ := m["group"].(float64)
		text, _ := m["text"].(string)
		cr := models.CannedResponse{ID: int(id), Group: int(group), Text: strings.TrimSpace(text)}
		if tags, ok := m["tags"].([]any); ok {
			for _, tg := range tags {
				if s, ok := tg.(string); ok {
					cr.Tags = append(cr.Tags, s)
				}
			}
		}
		out = append(out, cr)
	}
	return out, nil
}

// UploadResult is the stored file's public URL.
type UploadResult struct {
	URL string
}

// UploadFile posts a multipart upload, reporting progress as a fraction
// of bytes read from content. Cancelling ctx aborts the upload.
func (c *Client) UploadFile(ctx context.Context, name string, size int64, content io.Reader, progress func(float64)) (UploadResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return UploadResult{}, chaterr.Wrap(chaterr.KindAborted, "upload aborted", err)
	}

	var buf strings.Builder
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return UploadResult{}, chaterr.Wrap(chaterr.KindInternal, "upload encode failed", err)
	}
	reader := &progressReader{r: content, total: size, report: progress, ctx: ctx}
	if _, err := io.Copy(part, reader); err != nil {
		if ctx.Err() != nil {
			return UploadResult{}, chaterr.Wrap(chaterr.KindAborted, "upload aborted", ctx.Err())
		}
		return UploadResult{}, chaterr.Wrap(chaterr.KindInternal, "upload read failed", err)
	}
	if err := writer.Close(); err != nil {
		return UploadResult{}, chaterr.Wrap(chaterr.KindInternal, "upload encode failed", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	token := c.token()
	req.SetRequestURI(c.base + "/v3.5/agent/action/upload_file")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType(writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Region", region(token))
	req.SetBodyString(buf.String())

	if err := c.do(ctx, req, resp); err != nil {
		return UploadResult{}, err
	}

	var body struct {
		URL   string `json:"url"`
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return UploadResult{}, chaterr.Wrap(chaterr.KindInternal, "upload error", err).WithStatus(resp.StatusCode())
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return UploadResult{}, chaterr.FromWire(body.Error.Type, body.Error.Message).WithStatus(resp.StatusCode())
	}
	return UploadResult{URL: body.URL}, nil
}

// progressReader reports cumulative read progress and honors ctx.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report func(float64)
	ctx    context.Context
}

func (p *progressReader) Read(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.report != nil && p.total > 0 {
		p.report(float64(p.read) / float64(p.total))
	}
	return n, err
}

// RefreshToken exchanges a refresh token for fresh credentials at the
// accounts service. No bearer header and no shared limiter: an expired
// token must not ride along, and a saturated limiter must not delay the
// renewal every other request is waiting on.
func (c *Client) RefreshToken(ctx context.Context, clientID, refreshToken string) (models.Credentials, error) {
	payload, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     clientID,
		"refresh_token": refreshToken,
	})
	if err != nil {
		return models.Credentials{}, chaterr.Wrap(chaterr.KindValidation, "unencodable request body", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.accounts + "/v2/token")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	if err := c.do(ctx, req, resp); err != nil {
		telemetry.RESTRequests.WithLabelValues("token", "transport_error").Inc()
		return models.Credentials{}, err
	}

	var body struct {
		AccessToken      string `json:"access_token"`
		RefreshToken     string `json:"refresh_token"`
		EntityID         string `json:"entity_id"`
		ExpiresIn        int    `json:"expires_in"`
		Scope            string `json:"scope"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	status := resp.StatusCode()
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		telemetry.RESTRequests.WithLabelValues("token", "parse_error").Inc()
		return models.Credentials{}, chaterr.Wrap(chaterr.KindInternal,
			fmt.Sprintf("failed to parse JSON response: %.200s", resp.Body()), err).WithStatus(status)
	}
	if status < 200 || status >= 300 {
		telemetry.RESTRequests.WithLabelValues("token", "error").Inc()
		msg := body.ErrorDescription
		if msg == "" {
			msg = body.Error
		}
		kind := chaterr.KindInternal
		if status >= 400 && status < 500 {
			kind = chaterr.KindAuthentication
		}
		return models.Credentials{}, chaterr.New(kind, msg).WithStatus(status)
	}
	telemetry.RESTRequests.WithLabelValues("token", "ok").Inc()

	out := models.Credentials{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		EntityID:     body.EntityID,
		ExpiresAt:    time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	for _, s := range strings.Split(body.Scope, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out.Scopes = append(out.Scopes, s)
		}
	}
	return out, nil
}
