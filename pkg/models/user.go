package models

import "time"

// UserType discriminates the participants of a chat.
type UserType string

const (
	UserAgent    UserType = "agent"
	UserCustomer UserType = "customer"
)

// User is a chat participant, agent or customer. Fields that only apply
// to one of the two kinds are left zero for the other.
type User struct {
	ID      string   `json:"id"`
	Type    UserType `json:"type"`
	Name    string   `json:"name"`
	Email   string   `json:"email,omitempty"`
	Avatar  string   `json:"avatar,omitempty"`
	Present bool     `json:"present"`

	// Agent-only.
	Visibility Visibility `json:"visibility,omitempty"`

	// Customer-only.
	EventsSeenUpTo time.Time         `json:"events_seen_up_to,omitempty"`
	LastVisit      *Visit            `json:"last_visit,omitempty"`
	Statistics     Statistics        `json:"statistics,omitempty"`
	SessionFields  map[string]string `json:"session_fields,omitempty"`
}

// Visit is the customer's current or most recent site visit.
type Visit struct {
	StartedAt   time.Time    `json:"started_at"`
	EndedAt     time.Time    `json:"ended_at,omitempty"`
	IP          string       `json:"ip"`
	UserAgent   string       `json:"user_agent"`
	Referrer    string       `json:"referrer,omitempty"`
	Geolocation *Geolocation `json:"geolocation,omitempty"`
	LastPages   []VisitPage  `json:"last_pages,omitempty"`
}

// VisitPage is a single page view within a visit.
type VisitPage struct {
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	OpenedAt time.Time `json:"opened_at"`
}

// Geolocation locates a customer's visit.
type Geolocation struct {
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	Region      string `json:"region"`
	City        string `json:"city"`
	Timezone    string `json:"timezone"`
	Latitude    string `json:"latitude"`
	Longitude   string `json:"longitude"`
}

// Statistics are the customer's lifetime counters.
type Statistics struct {
	ChatsCount     int `json:"chats_count"`
	ThreadsCount   int `json:"threads_count"`
	VisitsCount    int `json:"visits_count"`
	PageViewsCount int `json:"page_views_count"`
	GreetingsShown int `json:"greetings_shown_count"`
}

// IsAgent reports whether u is an agent participant.
func (u User) IsAgent() bool { return u.Type == UserAgent }

// IsCustomer reports whether u is a customer participant.
func (u User) IsCustomer() bool { return u.Type == UserCustomer }
