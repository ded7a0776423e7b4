// Command agentsync-inspect prints the persisted session state of an
// agentsync database as JSON. The access token is redacted; run it only
// while no session holds the database.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"agentsync/pkg/logger"
	"agentsync/pkg/persist"
)

type report struct {
	Credentials *credentialsSummary `json:"credentials,omitempty"`
	Profile     any                 `json:"profile,omitempty"`
	Recent      []string            `json:"recent_queries,omitempty"`
	Selected    string              `json:"selected_chat,omitempty"`
	Prefs       *persist.UIPrefs    `json:"ui_prefs,omitempty"`
	CleanStop   string              `json:"last_clean_shutdown,omitempty"`
}

type credentialsSummary struct {
	EntityID  string   `json:"entity_id,omitempty"`
	Scopes    []string `json:"scopes,omitempty"`
	ExpiresAt string   `json:"expires_at,omitempty"`
	Token     string   `json:"access_token"`
}

func main() {
	dbPath := flag.String("db", "./.agentsync", "state database path")
	flag.Parse()

	logger.Init()

	ps, err := persist.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", *dbPath, err)
		os.Exit(1)
	}
	defer ps.Close()

	var rep report

	if c, ok, err := ps.LoadCredentials(); err != nil {
		fmt.Fprintf(os.Stderr, "read credentials: %v\n", err)
		os.Exit(1)
	} else if ok {
		sum := credentialsSummary{
			EntityID: c.EntityID,
			Scopes:   c.Scopes,
			Token:    redact(c.AccessToken),
		}
		if !c.ExpiresAt.IsZero() {
			sum.ExpiresAt = c.ExpiresAt.Format(time.RFC3339)
		}
		rep.Credentials = &sum
	}

	if p, ok, err := ps.LoadProfile(); err != nil {
		fmt.Fprintf(os.Stderr, "read profile: %v\n", err)
		os.Exit(1)
	} else if ok {
		rep.Profile = p
	}

	if q, err := ps.LoadRecentQueries(); err == nil {
		rep.Recent = q
	}
	if id, err := ps.LoadSelectedChat(); err == nil {
		rep.Selected = id
	}
	if p, ok, err := ps.LoadUIPrefs(); err == nil && ok {
		rep.Prefs = &p
	}
	if at, ok, err := ps.LastCleanShutdown(); err == nil && ok {
		rep.CleanStop = at.Format(time.RFC3339)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		fmt.Fprintf(os.Stderr, "encode report: %v\n", err)
		os.Exit(1)
	}
}

// redact keeps just enough of the token to tell two apart.
func redact(token string) string {
	if len(token) <= 8 {
		return "<set>"
	}
	return token[:4] + "…" + token[len(token)-4:]
}
