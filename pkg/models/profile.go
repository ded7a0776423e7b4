package models

import "time"

// Credentials is the bearer token the session authenticates with, plus
// the metadata needed to decide when it must be refreshed.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	EntityID     string    `json:"entity_id,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// ExpiresWithin reports whether the token expires before now+threshold.
func (c Credentials) ExpiresWithin(now time.Time, threshold time.Duration) bool {
	return !c.ExpiresAt.After(now.Add(threshold))
}

// HasScope reports whether the token carries the named scope.
func (c Credentials) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
