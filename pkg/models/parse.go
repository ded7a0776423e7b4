package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// The parsers below accept decoded JSON (map[string]any) rather than
// typed payloads. The platform ships fields of the wrong type often
// enough that strict unmarshalling would drop whole pushes; instead each
// field is coerced individually and missing or malformed values fall
// back to zero values.

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case bool:
		return fmt.Sprintf("%v", t)
	case nil:
		return ""
	default:
		return ""
	}
}

func boolean(v any) bool {
	b, _ := v.(bool)
	return b
}

func num(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	default:
		return 0
	}
}

// ParseTime decodes the timestamps the wire carries: RFC3339 strings
// (with or without sub-second precision) and millisecond epochs. A value
// it cannot decode yields the zero time.
func ParseTime(v any) time.Time {
	switch t := v.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts
		}
		if ts, err := time.Parse("2006-01-02T15:04:05.000000Z0700", t); err == nil {
			return ts
		}
		return time.Time{}
	case float64:
		if t == 0 {
			return time.Time{}
		}
		return time.UnixMilli(int64(t)).UTC()
	default:
		return time.Time{}
	}
}

// propValue reads properties[ns][key], returning def when absent.
func propValue(properties map[string]any, ns, key string, def any) any {
	nsm := asMap(properties[ns])
	if nsm == nil {
		return def
	}
	v, ok := nsm[key]
	if !ok || v == nil {
		return def
	}
	return v
}

func hasPropValue(properties map[string]any, ns, key string) bool {
	nsm := asMap(properties[ns])
	if nsm == nil {
		return false
	}
	_, ok := nsm[key]
	return ok
}

// ParseAccess decodes an access block; a missing group list means the
// default group.
func ParseAccess(v any) Access {
	groupIDs := []int{0}
	if raw := asSlice(asMap(v)["group_ids"]); raw != nil {
		groupIDs = make([]int, 0, len(raw))
		for _, g := range raw {
			groupIDs = append(groupIDs, int(num(g)))
		}
	}
	return Access{GroupIDs: groupIDs}
}

// ParseQueue decodes an optional queue block.
func ParseQueue(v any) *Queue {
	m := asMap(v)
	if m == nil {
		return nil
	}
	return &Queue{
		Position: int(num(m["position"])),
		WaitTime: int(num(m["wait_time"])),
		QueuedAt: ParseTime(m["queued_at"]),
	}
}

// ParseQueuePositions decodes a queue_positions_updated payload. Entries
// without a queue block are skipped.
func ParseQueuePositions(v any) []QueuePosition {
	raw := asSlice(v)
	out := make([]QueuePosition, 0, len(raw))
	for _, item := range raw {
		m := asMap(item)
		q := ParseQueue(m["queue"])
		if q == nil {
			continue
		}
		out = append(out, QueuePosition{
			ChatID:   str(m["chat_id"]),
			ThreadID: str(m["thread_id"]),
			Queue:    q,
		})
	}
	return out
}

func parseTags(v any) []string {
	raw := asSlice(v)
	if raw == nil {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		out = append(out, str(t))
	}
	return out
}

// ParseChatProperties decodes a chat property bag into its typed form,
// defaulting every absent property.
func ParseChatProperties(v any) ChatProperties {
	m := asMap(v)
	return ChatProperties{
		Routing: ChatRouting{
			Continuous: boolean(propValue(m, "routing", "continuous", false)),
			Pinned:     boolean(propValue(m, "routing", "pinned", false)),
		},
		Source: ChatSource{
			CustomerClientID: str(propValue(m, "source", "customer_client_id", "")),
		},
	}
}

// ParsePartialChatProperties decodes only the properties present in a
// chat_properties_updated payload.
func ParsePartialChatProperties(v any) PartialChatProperties {
	m := asMap(v)
	var p PartialChatProperties
	if hasPropValue(m, "routing", "continuous") {
		b := boolean(propValue(m, "routing", "continuous", false))
		p.Routing.Continuous = &b
	}
	if hasPropValue(m, "routing", "pinned") {
		b := boolean(propValue(m, "routing", "pinned", false))
		p.Routing.Pinned = &b
	}
	if hasPropValue(m, "source", "customer_client_id") {
		s := str(propValue(m, "source", "customer_client_id", ""))
		p.Source.CustomerClientID = &s
	}
	return p
}

// ParseThreadProperties decodes a thread property bag into its typed
// form, defaulting every absent property.
func ParseThreadProperties(v any) ThreadProperties {
	m := asMap(v)
	return ThreadProperties{
		Routing: ThreadRouting{
			Idle:                  boolean(propValue(m, "routing", "idle", false)),
			Unassigned:            boolean(propValue(m, "routing", "unassigned", false)),
			LastTransferTimestamp: int64(num(propValue(m, "routing", "last_transfer_timestamp", float64(0)))),
		},
		Source: ThreadSource{
			ClientID: str(propValue(m, "source", "client_id", "")),
		},
		Rating: ThreadRating{
			Score:   int(num(propValue(m, "rating", "score", float64(0)))),
			Comment: str(propValue(m, "rating", "comment", "")),
		},
	}
}

// ParsePartialThreadProperties decodes only the properties present in a
// thread_properties_updated payload.
func ParsePartialThreadProperties(v any) PartialThreadProperties {
	m := asMap(v)
	var p PartialThreadProperties
	if hasPropValue(m, "routing", "idle") {
		b := boolean(propValue(m, "routing", "idle", false))
		p.Routing.Idle = &b
	}
	if hasPropValue(m, "routing", "unassigned") {
		b := boolean(propValue(m, "routing", "unassigned", false))
		p.Routing.Unassigned = &b
	}
	if hasPropValue(m, "routing", "last_transfer_timestamp") {
		n := int64(num(propValue(m, "routing", "last_transfer_timestamp", float64(0))))
		p.Routing.LastTransferTimestamp = &n
	}
	if hasPropValue(m, "source", "client_id") {
		s := str(propValue(m, "source", "client_id", ""))
		p.Source.ClientID = &s
	}
	if hasPropValue(m, "rating", "score") {
		n := int(num(propValue(m, "rating", "score", float64(0))))
		p.Rating.Score = &n
	}
	if hasPropValue(m, "rating", "comment") {
		s := str(propValue(m, "rating", "comment", ""))
		p.Rating.Comment = &s
	}
	return p
}

// ParseDeletedProperties decodes a *_properties_deleted payload: a map
// from namespace to the list of deleted property names.
func ParseDeletedProperties(v any) map[string][]string {
	m := asMap(v)
	out := make(map[string][]string, len(m))
	for ns, names := range m {
		out[ns] = parseTags(names)
	}
	return out
}

// ParseEventProperties copies the namespaced property bag of an event.
func ParseEventProperties(v any) EventProperties {
	m := asMap(v)
	if len(m) == 0 {
		return nil
	}
	out := make(EventProperties, len(m))
	for ns, nsv := range m {
		nsm := asMap(nsv)
		if nsm == nil {
			continue
		}
		cp := make(map[string]any, len(nsm))
		for k, val := range nsm {
			cp[k] = val
		}
		out[ns] = cp
	}
	return out
}

func parseVisibility(v any) Visibility {
	if str(v) == string(VisibilityAgents) {
		return VisibilityAgents
	}
	return VisibilityAll
}

// ParseEvent decodes a single thread event. Events of a type this build
// does not understand are kept on the timeline as system messages rather
// than dropped, so ordering and seen-cursors stay correct.
func ParseEvent(v any) Event {
	m := asMap(v)
	e := Event{
		ID:         str(m["id"]),
		CustomID:   str(m["custom_id"]),
		AuthorID:   str(m["author_id"]),
		CreatedAt:  ParseTime(m["created_at"]),
		Visibility: parseVisibility(m["visibility"]),
		Properties: ParseEventProperties(m["properties"]),
		Status:     StatusDelivered,
	}
	switch EventType(str(m["type"])) {
	case EventMessage:
		e.Type = EventMessage
		e.Text = str(m["text"])
		e.Postback = parsePostback(m["postback"])
	case EventSystemMessage:
		e.Type = EventSystemMessage
		e.SystemMessageType = str(m["system_message_type"])
		e.Text = str(m["text"])
		e.TextVars = parseTextVars(m["text_vars"])
	case EventFilledForm:
		e.Type = EventFilledForm
		e.FormID = str(m["form_id"])
		e.FormType = str(m["form_type"])
		e.Fields = ParseFormFields(m["fields"])
	case EventForm:
		e.Type = EventForm
		e.FormID = str(m["form_id"])
		e.FormType = str(m["form_type"])
		e.Fields = ParseFormFields(m["fields"])
	case EventFile:
		e.Type = EventFile
		e.File = &FileDetails{
			Name:         str(m["name"]),
			URL:          str(m["url"]),
			ThumbnailURL: str(m["thumbnail_url"]),
			ContentType:  str(m["content_type"]),
			Size:         int64(num(m["size"])),
			Width:        int(num(m["width"])),
			Height:       int(num(m["height"])),
		}
	case EventRichMessage:
		e.Type = EventRichMessage
		e.TemplateID = str(m["template_id"])
		e.Elements = parseRichElements(m["elements"])
	case EventAnnotation:
		e.Type = EventAnnotation
		e.AnnotationType = str(m["annotation_type"])
	case EventCustom:
		e.Type = EventCustom
		e.Content = asMap(m["content"])
	default:
		e.Type = EventSystemMessage
		e.SystemMessageType = "unknown_event_type"
		e.Text = "Unsupported type of message"
		e.TextVars = map[string]string{}
	}
	return e
}

// ParseEvents decodes a thread's event list.
func ParseEvents(v any) []Event {
	raw := asSlice(v)
	out := make([]Event, 0, len(raw))
	for _, item := range raw {
		out = append(out, ParseEvent(item))
	}
	return out
}

func parsePostback(v any) *Postback {
	m := asMap(v)
	if m == nil {
		return nil
	}
	return &Postback{
		ID:       str(m["id"]),
		ThreadID: str(m["thread_id"]),
		EventID:  str(m["event_id"]),
		Type:     str(m["type"]),
		Value:    str(m["value"]),
	}
}

func parseTextVars(v any) map[string]string {
	m := asMap(v)
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = str(val)
	}
	return out
}

// ParseFormFields decodes the answers of a filled_form event.
func ParseFormFields(v any) []FormField {
	raw := asSlice(v)
	out := make([]FormField, 0, len(raw))
	for _, item := range raw {
		m := asMap(item)
		if m == nil {
			continue
		}
		f := FormField{
			ID:       str(m["id"]),
			Type:     str(m["type"]),
			Label:    str(m["label"]),
			Value:    str(m["value"]),
			Required: boolean(m["required"]),
		}
		if am := asMap(m["answer"]); am != nil {
			f.Answer = &FieldAnswer{ID: str(am["id"]), Label: str(am["label"])}
		} else if m["answer"] != nil {
			f.Answer = &FieldAnswer{Label: str(m["answer"])}
		}
		for _, a := range asSlice(m["answers"]) {
			if am := asMap(a); am != nil {
				f.Answers = append(f.Answers, FieldAnswer{ID: str(am["id"]), Label: str(am["label"])})
			} else {
				f.Answers = append(f.Answers, FieldAnswer{Label: str(a)})
			}
		}
		out = append(out, f)
	}
	return out
}

func parseRichElements(v any) []RichElement {
	raw := asSlice(v)
	out := make([]RichElement, 0, len(raw))
	for _, item := range raw {
		m := asMap(item)
		if m == nil {
			continue
		}
		el := RichElement{
			Title:    str(m["title"]),
			Subtitle: str(m["subtitle"]),
		}
		if im := asMap(m["image"]); im != nil {
			el.Image = &RichImage{
				Name:   str(im["name"]),
				URL:    str(im["url"]),
				Width:  int(num(im["width"])),
				Height: int(num(im["height"])),
			}
		}
		for _, b := range asSlice(m["buttons"]) {
			bm := asMap(b)
			if bm == nil {
				continue
			}
			btn := RichButton{
				Text:       str(bm["text"]),
				Type:       str(bm["type"]),
				Value:      str(bm["value"]),
				PostbackID: str(bm["postback_id"]),
			}
			for _, uid := range asSlice(bm["user_ids"]) {
				btn.UserIDs = append(btn.UserIDs, str(uid))
			}
			el.Buttons = append(el.Buttons, btn)
		}
		out = append(out, el)
	}
	return out
}

// ParseUser decodes a chat participant. Users of an unrecognized type
// are rejected so callers can skip them.
func ParseUser(v any) (User, error) {
	m := asMap(v)
	switch UserType(str(m["type"])) {
	case UserAgent:
		name := str(m["name"])
		if name == "" {
			name = "Agent"
		}
		return User{
			ID:             str(m["id"]),
			Type:           UserAgent,
			Name:           name,
			Email:          str(m["email"]),
			Avatar:         parseAvatarURL(str(m["avatar"])),
			Visibility:     parseVisibility(m["visibility"]),
			Present:        boolean(m["present"]),
			EventsSeenUpTo: ParseTime(m["events_seen_up_to"]),
		}, nil
	case UserCustomer:
		name := str(m["name"])
		if name == "" {
			name = "Visitor"
		}
		return User{
			ID:             str(m["id"]),
			Type:           UserCustomer,
			Name:           name,
			Email:          str(m["email"]),
			Avatar:         parseAvatarURL(str(m["avatar"])),
			Present:        boolean(m["present"]),
			EventsSeenUpTo: ParseTime(m["events_seen_up_to"]),
			LastVisit:      ParseVisit(m["last_visit"]),
			Statistics:     ParseStatistics(m["statistics"]),
			SessionFields:  ParseSessionFields(m["session_fields"]),
		}, nil
	default:
		return User{}, fmt.Errorf("unsupported user type %q", str(m["type"]))
	}
}

// ParseUsers decodes a participant list, dropping entries of an
// unrecognized type.
func ParseUsers(v any) []User {
	raw := asSlice(v)
	out := make([]User, 0, len(raw))
	for _, item := range raw {
		u, err := ParseUser(item)
		if err != nil {
			continue
		}
		out = append(out, u)
	}
	return out
}

// parseAvatarURL normalizes protocol-relative avatar URLs.
func parseAvatarURL(u string) string {
	if len(u) >= 2 && u[0] == '/' && u[1] == '/' {
		return "https:" + u
	}
	return u
}

// ParseVisit decodes a customer's last_visit block.
func ParseVisit(v any) *Visit {
	m := asMap(v)
	if m == nil {
		return nil
	}
	visit := &Visit{
		StartedAt:   ParseTime(m["started_at"]),
		EndedAt:     ParseTime(m["ended_at"]),
		IP:          str(m["ip"]),
		UserAgent:   str(m["user_agent"]),
		Referrer:    str(m["referrer"]),
		Geolocation: ParseGeolocation(m["geolocation"]),
	}
	for _, p := range asSlice(m["last_pages"]) {
		pm := asMap(p)
		if pm == nil {
			continue
		}
		visit.LastPages = append(visit.LastPages, VisitPage{
			URL:      str(pm["url"]),
			Title:    str(pm["title"]),
			OpenedAt: ParseTime(pm["opened_at"]),
		})
	}
	return visit
}

// ParseGeolocation decodes a geolocation block; the wire sometimes ships
// an empty object, which means no geolocation at all.
func ParseGeolocation(v any) *Geolocation {
	m := asMap(v)
	if len(m) == 0 {
		return nil
	}
	return &Geolocation{
		Country:     str(m["country"]),
		CountryCode: str(m["country_code"]),
		Region:      str(m["region"]),
		City:        str(m["city"]),
		Timezone:    str(m["timezone"]),
		Latitude:    str(m["latitude"]),
		Longitude:   str(m["longitude"]),
	}
}

// ParseStatistics decodes the customer counters block.
func ParseStatistics(v any) Statistics {
	m := asMap(v)
	return Statistics{
		ChatsCount:     int(num(m["chats_count"])),
		ThreadsCount:   int(num(m["threads_count"])),
		VisitsCount:    int(num(m["visits_count"])),
		PageViewsCount: int(num(m["page_views_count"])),
		GreetingsShown: int(num(m["greetings_shown_count"])),
	}
}

// ParseSessionFields flattens the session_fields list. Each entry is a
// single-key object; entries under __details_json hold a JSON document
// of further fields and are expanded in place.
func ParseSessionFields(v any) map[string]string {
	raw := asSlice(v)
	if raw == nil {
		return nil
	}
	out := make(map[string]string)
	for _, item := range raw {
		m := asMap(item)
		if m == nil {
			continue
		}
		if details, ok := m["__details_json"]; ok {
			parseDetailsJSON(str(details), out)
			continue
		}
		if len(m) != 1 {
			continue
		}
		for k, val := range m {
			out[k] = str(val)
		}
	}
	return out
}

func parseDetailsJSON(details string, out map[string]string) {
	var data []map[string]any
	if err := json.Unmarshal([]byte(details), &data); err != nil {
		out["__details_json"] = "failed to parse: " + err.Error()
		return
	}
	for _, item := range data {
		for _, f := range asSlice(item["fields"]) {
			fm := asMap(f)
			if fm == nil {
				continue
			}
			name := str(fm["name"])
			if name == "" {
				name = str(fm["value"])
			}
			value := str(fm["url"])
			if value == "" {
				value = str(fm["value"])
			}
			out[name] = value
		}
	}
}

// ParseThread decodes a full thread, including its events. Full threads
// arrive complete.
func ParseThread(v any) Thread {
	m := asMap(v)
	return Thread{
		ID:               str(m["id"]),
		Active:           boolean(m["active"]),
		Incomplete:       false,
		Events:           ParseEvents(m["events"]),
		Access:           ParseAccess(m["access"]),
		Highlights:       ParseHighlights(m["highlight"]),
		Properties:       ParseThreadProperties(m["properties"]),
		RestrictedAccess: str(m["restricted_access"]),
		Queue:            ParseQueue(m["queue"]),
		Tags:             parseTags(m["tags"]),
		CreatedAt:        ParseTime(m["created_at"]),
		NextThreadID:     str(m["next_thread_id"]),
		PreviousThreadID: str(m["previous_thread_id"]),
	}
}

// ParseChat decodes a full chat carrying a single thread, the shape an
// incoming_chat push and a get_chat response use.
func ParseChat(v any) Chat {
	m := asMap(v)
	return Chat{
		ID:         str(m["id"]),
		Users:      ParseUsers(m["users"]),
		Access:     ParseAccess(m["access"]),
		Properties: ParseChatProperties(m["properties"]),
		Threads:    []Thread{ParseThread(m["thread"])},
		IsFollowed: boolean(m["is_followed"]),
	}
}

// ParseChatSummary decodes a chat summary: thread skeletons built from
// last_thread_summary and last_event_per_type. Summary threads are
// incomplete until their events are fetched.
func ParseChatSummary(v any) Chat {
	m := asMap(v)
	return Chat{
		ID:         str(m["id"]),
		Users:      ParseUsers(m["users"]),
		IsFollowed: boolean(m["is_followed"]),
		Properties: ParseChatProperties(m["properties"]),
		Threads:    ParseThreadSummary(m["last_thread_summary"], m["last_event_per_type"]),
		Access:     ParseAccess(m["access"]),
	}
}

// ParseChatsSummary decodes a list_chats chats_summary list.
func ParseChatsSummary(v any) []Chat {
	raw := asSlice(v)
	out := make([]Chat, 0, len(raw))
	for _, item := range raw {
		out = append(out, ParseChatSummary(item))
	}
	return out
}

// ParseThreadSummary rebuilds thread skeletons from a summary: the last
// thread plus one placeholder per older thread referenced by the
// last-event-per-type index. Every rebuilt thread is incomplete. The
// result is sorted ascending by creation time.
func ParseThreadSummary(lastThreadSummary, lastEventsByType any) []Thread {
	lm := asMap(lastThreadSummary)
	last := Thread{
		ID:               str(lm["id"]),
		Active:           boolean(lm["active"]),
		Incomplete:       true,
		Events:           []Event{},
		Highlights:       []Highlight{},
		Properties:       ParseThreadProperties(lm["properties"]),
		Access:           ParseAccess(lm["access"]),
		Tags:             parseTags(lm["tags"]),
		Queue:            ParseQueue(lm["queue"]),
		CreatedAt:        ParseTime(lm["created_at"]),
		NextThreadID:     str(lm["next_thread_id"]),
		PreviousThreadID: str(lm["previous_thread_id"]),
	}

	threads := map[string]*Thread{last.ID: &last}
	order := []*Thread{&last}

	for _, ev := range asMap(lastEventsByType) {
		em := asMap(ev)
		if em == nil {
			continue
		}
		threadID := str(em["thread_id"])
		t, ok := threads[threadID]
		if !ok {
			t = &Thread{
				ID:         threadID,
				Active:     false,
				Incomplete: true,
				Events:     []Event{},
				Highlights: []Highlight{},
				Properties: ThreadProperties{
					Source: ThreadSource{ClientID: last.Properties.Source.ClientID},
				},
				RestrictedAccess: str(em["restricted_access"]),
				Access:           ParseAccess(lm["access"]),
				Tags:             []string{},
				CreatedAt:        ParseTime(em["thread_created_at"]),
			}
			threads[threadID] = t
			order = append(order, t)
		}
		if ra := str(em["restricted_access"]); ra != "" {
			t.RestrictedAccess = ra
		}
		if em["event"] != nil {
			t.Events = append(t.Events, ParseEvent(em["event"]))
		}
	}

	out := make([]Thread, 0, len(order))
	for _, t := range order {
		SortEvents(t.Events)
		out = append(out, *t)
	}
	SortThreads(out)
	return out
}

// ParseHighlights decodes archive search highlights, skipping types this
// build does not know how to render.
func ParseHighlights(v any) []Highlight {
	raw := asSlice(v)
	out := make([]Highlight, 0, len(raw))
	for _, item := range raw {
		m := asMap(item)
		var field string
		switch str(m["type"]) {
		case "event.message":
			field = "text"
		case "event.file":
			field = "name"
		case "event.filled_form":
			field = "answer"
		default:
			continue
		}
		out = append(out, Highlight{
			Type:      str(m["type"]),
			Field:     field,
			Highlight: str(m["highlight"]),
		})
	}
	return out
}

// ParseMyProfile decodes the login response's my_profile block.
func ParseMyProfile(v any) MyProfile {
	m := asMap(v)
	return MyProfile{
		ID:            str(m["id"]),
		Name:          str(m["name"]),
		Email:         str(m["email"]),
		Avatar:        parseAvatarURL(str(m["avatar"])),
		Permission:    str(m["permission"]),
		RoutingStatus: ParseRoutingStatus(m["routing_status"]),
	}
}

// ParseLicense decodes the login response's license block.
func ParseLicense(v any) License {
	return License{ID: int(num(asMap(v)["id"]))}
}

// ParseRoutingStatus folds the legacy spellings of a routing status onto
// the canonical ones. Unrecognized values read as offline.
func ParseRoutingStatus(v any) RoutingStatus {
	switch str(v) {
	case "accepting_chats", "accepting chats", "online":
		return RoutingAccepting
	case "not_accepting_chats", "not accepting chats", "away":
		return RoutingNotAccepting
	default:
		return RoutingOffline
	}
}

// ParseRoutingStatuses decodes a list of per-agent routing statuses into
// an agent-id-keyed map.
func ParseRoutingStatuses(v any) map[string]RoutingStatus {
	out := map[string]RoutingStatus{}
	for _, item := range asSlice(v) {
		m := asMap(item)
		if m == nil {
			continue
		}
		out[str(m["agent_id"])] = ParseRoutingStatus(m["status"])
	}
	return out
}

// ParseChatTransferred decodes a chat_transferred payload.
func ParseChatTransferred(v any) ChatTransferred {
	m := asMap(v)
	tm := asMap(m["transferred_to"])
	tr := Transfer{GroupIDs: []int{}, AgentIDs: []string{}}
	for _, g := range asSlice(tm["group_ids"]) {
		tr.GroupIDs = append(tr.GroupIDs, int(num(g)))
	}
	for _, a := range asSlice(tm["agent_ids"]) {
		tr.AgentIDs = append(tr.AgentIDs, str(a))
	}
	return ChatTransferred{
		ChatID:        str(m["chat_id"]),
		ThreadID:      str(m["thread_id"]),
		RequesterID:   str(m["requester_id"]),
		Reason:        str(m["reason"]),
		TransferredTo: tr,
		Queue:         ParseQueue(m["queue"]),
	}
}

// ParseSneakPeek decodes an incoming_sneak_peek payload.
func ParseSneakPeek(v any) SneakPeek {
	m := asMap(v)
	return SneakPeek{
		AuthorID:   str(m["author_id"]),
		Text:       str(m["text"]),
		Recipients: str(m["recipients"]),
		Timestamp:  int64(num(m["timestamp"])),
	}
}
