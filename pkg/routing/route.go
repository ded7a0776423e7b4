// Package routing classifies chats into the console's inbox lists and
// debounces the route churn the platform produces while a chat settles.
package routing

import "agentsync/pkg/models"

// ChatRoute names the inbox list a chat belongs to from one agent's
// point of view.
type ChatRoute string

const (
	// RouteMy is an open chat this agent participates in with full
	// visibility.
	RouteMy ChatRoute = "my"
	// RouteSupervised is an open chat this agent watches with
	// agents-only visibility.
	RouteSupervised ChatRoute = "supervised"
	// RouteQueued is an open chat waiting for any agent.
	RouteQueued ChatRoute = "queued"
	// RouteUnassigned is an open continuous chat nobody serves and
	// nothing queues.
	RouteUnassigned ChatRoute = "unassigned"
	// RouteOther is an open chat some other agent serves.
	RouteOther ChatRoute = "other"
	// RoutePinned is a closed chat kept visible.
	RoutePinned ChatRoute = "pinned"
	// RouteClosed is a closed chat.
	RouteClosed ChatRoute = "closed"
)

// Classify derives the chat's route for the agent with the given
// profile id. A chat without an active thread is closed or pinned; an
// open chat belongs to whoever is present in it.
func Classify(chat models.Chat, myProfileID string) ChatRoute {
	activeThread := chat.ActiveThread()
	if activeThread == nil {
		if chat.Properties.Routing.Pinned {
			return RoutePinned
		}
		return RouteClosed
	}

	if me := chat.UserByID(myProfileID); me != nil && me.IsAgent() && me.Present {
		if me.Visibility == models.VisibilityAgents {
			return RouteSupervised
		}
		return RouteMy
	}

	if agents := chat.PresentAgents(); len(agents) > 0 {
		return RouteOther
	}

	if chat.Properties.Routing.Continuous && activeThread.Queue == nil {
		return RouteUnassigned
	}
	return RouteQueued
}
