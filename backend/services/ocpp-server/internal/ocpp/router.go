package ocpp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
)

// HandlerFunc processes a payload and returns the response body. Response handlers return nil.
type HandlerFunc func(ctx context.Context, mc MessageContext, payload json.RawMessage) (interface{}, error)

// RouteKind tells calls sent by stations apart from answers to calls we sent.
type RouteKind int

const (
	RouteCall RouteKind = iota + 1
	RouteResponse
)

func (k RouteKind) String() string {
	switch k {
	case RouteCall:
		return "call"
	case RouteResponse:
		return "response"
	default:
		return fmt.Sprintf("RouteKind(%d)", int(k))
	}
}

// Route binds an action to its handler.
type Route struct {
	Action  string
	Kind    RouteKind
	Handler HandlerFunc
}

// Call routes a station-initiated action.
func Call(action string, h HandlerFunc) Route {
	return Route{Action: action, Kind: RouteCall, Handler: h}
}

// Response routes the answer to a server-initiated action.
func Response(action string, h HandlerFunc) Route {
	return Route{Action: action, Kind: RouteResponse, Handler: h}
}

// Actions every dispatcher must serve.
var (
	RequiredCalls = []string{
		protocol.ActionTransactionEvent,
		protocol.ActionMeterValues,
		protocol.ActionStatusNotification,
	}
	RequiredResponses = []string{
		protocol.ActionCostUpdated,
		protocol.ActionGetTransactionStatus,
	}
)

type routeKey struct {
	kind   RouteKind
	action string
}

// Dispatcher routes messages through a routing table fixed at construction.
type Dispatcher struct {
	routes map[routeKey]HandlerFunc
}

// NewDispatcher validates routes and builds the table. It fails on empty actions, nil
// handlers, duplicates and any required action left without a handler.
func NewDispatcher(routes ...Route) (*Dispatcher, error) {
	table := make(map[routeKey]HandlerFunc, len(routes))
	var problems []string

	for _, r := range routes {
		action := strings.TrimSpace(r.Action)
		switch {
		case action == "":
			problems = append(problems, "route with empty action")
			continue
		case r.Kind != RouteCall && r.Kind != RouteResponse:
			problems = append(problems, fmt.Sprintf("%s: invalid kind %s", action, r.Kind))
			continue
		case r.Handler == nil:
			problems = append(problems, fmt.Sprintf("%s %s: nil handler", r.Kind, action))
			continue
		}
		key := routeKey{kind: r.Kind, action: action}
		if _, dup := table[key]; dup {
			problems = append(problems, fmt.Sprintf("%s %s: duplicate route", r.Kind, action))
			continue
		}
		table[key] = r.Handler
	}

	for _, action := range RequiredCalls {
		if _, ok := table[routeKey{kind: RouteCall, action: action}]; !ok {
			problems = append(problems, fmt.Sprintf("call %s: missing route", action))
		}
	}
	for _, action := range RequiredResponses {
		if _, ok := table[routeKey{kind: RouteResponse, action: action}]; !ok {
			problems = append(problems, fmt.Sprintf("response %s: missing route", action))
		}
	}

	if len(problems) > 0 {
		return nil, errors.New("ocpp: invalid routing table: " + strings.Join(problems, "; "))
	}
	return &Dispatcher{routes: table}, nil
}

// Dispatch runs the handler registered for a station call.
func (d *Dispatcher) Dispatch(ctx context.Context, mc MessageContext, action string, payload json.RawMessage) (interface{}, error) {
	handler, ok := d.routes[routeKey{kind: RouteCall, action: action}]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnsupportedAction, action)
	}
	return handler(ctx, mc, payload)
}

// DispatchResponse hands a station's answer to the response handler for action.
func (d *Dispatcher) DispatchResponse(ctx context.Context, mc MessageContext, action string, payload json.RawMessage) error {
	handler, ok := d.routes[routeKey{kind: RouteResponse, action: action}]
	if !ok {
		return fmt.Errorf("%w response %s", ErrUnsupportedAction, action)
	}
	_, err := handler(ctx, mc, payload)
	return err
}

// Actions lists the routing table as "kind action" entries in sorted order.
func (d *Dispatcher) Actions() []string {
	out := make([]string, 0, len(d.routes))
	for k := range d.routes {
		out = append(out, k.kind.String()+" "+k.action)
	}
	sort.Strings(out)
	return out
}
