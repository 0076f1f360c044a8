// Package navigation keeps the route the UI shell has to show and tells the shell when it changes
package navigation

import (
	"maps"
	"sync"

	"github.com/nkiryanov/newsdesk/internal/logger"
)

type Route string

const (
	RouteLogin          Route = "/login"
	RouteHome           Route = "/home"
	RouteResetPassword  Route = "/reset-password"
	RouteForgotPassword Route = "/forgot-password"
	RouteNews           Route = "/news"
)

const (
	TypeReplace = "navigation_replace"
	TypeCurrent = "navigation_current"
)

// Message sent to the shell
type Message struct {
	Type   string            `json:"type"`
	Route  Route             `json:"route"`
	Params map[string]string `json:"params,omitempty"`
	Seq    int64             `json:"seq"`
}

// Navigator replaces the current route: there is no history to go back to
type Navigator interface {
	Replace(route Route, params map[string]string) bool
}

type Broadcaster interface {
	Broadcast(msg any)
}

type Router struct {
	broadcaster Broadcaster
	logger      logger.Logger

	mu      sync.Mutex
	current Message
}

func NewRouter(b Broadcaster, l logger.Logger) *Router {
	return &Router{
		broadcaster: b,
		logger:      l,
		current:     Message{Type: TypeCurrent, Route: RouteLogin},
	}
}

// Replace route and broadcast it. Same route with same params is dropped and false returned
func (r *Router) Replace(route Route, params map[string]string) bool {
	r.mu.Lock()
	if r.current.Route == route && maps.Equal(r.current.Params, params) {
		r.mu.Unlock()
		r.logger.Debug("navigation dropped, already there", "route", route)
		return false
	}

	r.current = Message{Type: TypeCurrent, Route: route, Params: maps.Clone(params), Seq: r.current.Seq + 1}
	msg := r.current
	r.mu.Unlock()

	msg.Type = TypeReplace
	r.logger.Info("navigate", "route", route)
	if r.broadcaster != nil {
		r.broadcaster.Broadcast(msg)
	}

	return true
}

func (r *Router) Current() Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := r.current
	msg.Params = maps.Clone(msg.Params)
	return msg
}
