package models

import "time"

// EventType discriminates the variants of a thread event.
type EventType string

const (
	EventMessage       EventType = "message"
	EventSystemMessage EventType = "system_message"
	EventFilledForm    EventType = "filled_form"
	EventFile          EventType = "file"
	EventRichMessage   EventType = "rich_message"
	EventCustom        EventType = "custom"
	EventAnnotation    EventType = "annotation"
	EventForm          EventType = "form"
)

// EventStatus tracks an optimistically-appended event's delivery.
type EventStatus string

const (
	// StatusSending marks a locally-appended event not yet confirmed.
	StatusSending EventStatus = "sending"
	// StatusDelivered marks a server-confirmed event.
	StatusDelivered EventStatus = "delivered"
	// StatusFailed marks a locally-appended event whose send failed.
	StatusFailed EventStatus = "failed"
)

// Event is a single item on a thread's timeline. Type selects which of
// the variant fields are meaningful; the shared fields apply to all
// variants. CustomID correlates a locally-appended event with its
// server-confirmed copy and is preserved across that swap.
type Event struct {
	ID         string          `json:"id"`
	CustomID   string          `json:"custom_id,omitempty"`
	Type       EventType       `json:"type"`
	AuthorID   string          `json:"author_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Visibility Visibility      `json:"visibility,omitempty"`
	Status     EventStatus     `json:"status,omitempty"`
	Properties EventProperties `json:"properties,omitempty"`

	// message
	Text     string    `json:"text,omitempty"`
	Postback *Postback `json:"postback,omitempty"`

	// system_message
	SystemMessageType string            `json:"system_message_type,omitempty"`
	TextVars          map[string]string `json:"text_vars,omitempty"`

	// filled_form, form
	FormID   string      `json:"form_id,omitempty"`
	FormType string      `json:"form_type,omitempty"`
	Fields   []FormField `json:"fields,omitempty"`

	// annotation
	AnnotationType string `json:"annotation_type,omitempty"`

	// file
	File *FileDetails `json:"file,omitempty"`

	// rich_message
	TemplateID string        `json:"template_id,omitempty"`
	Elements   []RichElement `json:"elements,omitempty"`

	// custom
	Content map[string]any `json:"content,omitempty"`
}

// EventProperties is the free-form property bag namespaced by owner.
type EventProperties map[string]map[string]any

// Postback records a rich-message button reply referenced by a message.
type Postback struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	EventID  string `json:"event_id"`
	Type     string `json:"type,omitempty"`
	Value    string `json:"value,omitempty"`
}

// FormField is a single answer inside a filled_form event.
type FormField struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Label    string        `json:"label"`
	Value    string        `json:"value,omitempty"`
	Answer   *FieldAnswer  `json:"answer,omitempty"`
	Answers  []FieldAnswer `json:"answers,omitempty"`
	Required bool          `json:"required,omitempty"`
}

// FieldAnswer is one selected option of a choice form field.
type FieldAnswer struct {
	ID    string `json:"id,omitempty"`
	Label string `json:"label"`
}

// FileDetails describes the upload backing a file event.
type FileDetails struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// RichElement is one card of a rich_message event.
type RichElement struct {
	Title    string       `json:"title,omitempty"`
	Subtitle string       `json:"subtitle,omitempty"`
	Image    *RichImage   `json:"image,omitempty"`
	Buttons  []RichButton `json:"buttons,omitempty"`
}

type RichImage struct {
	Name   string `json:"name,omitempty"`
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

type RichButton struct {
	Text       string   `json:"text"`
	Type       string   `json:"type,omitempty"`
	Value      string   `json:"value,omitempty"`
	PostbackID string   `json:"postback_id,omitempty"`
	UserIDs    []string `json:"user_ids,omitempty"`
}

// Key returns the identity used to dedupe events when merging: the
// server id when assigned, otherwise the local correlation id.
func (e Event) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return e.CustomID
}
