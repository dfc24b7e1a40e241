// Package triage routes every inbound platform event: direct messages drive
// the report wizard, moderator channel replies resolve the pending report, and
// monitored channel posts are forwarded with heuristics and classifier scores.
package triage

import (
	"github.com/whisper/modbot/internal/transport"
)

// Route is the handling path for one event.
type Route int

const (
	RouteIgnore Route = iota
	RouteSelf
	RouteDeleted
	RouteDirect
	RouteModerator
	RouteMonitored
)

var routeNames = map[Route]string{
	RouteIgnore:    "ignored",
	RouteSelf:      "self",
	RouteDeleted:   "deleted",
	RouteDirect:    "direct",
	RouteModerator: "moderator",
	RouteMonitored: "monitored",
}

func (r Route) String() string {
	if name, ok := routeNames[r]; ok {
		return name
	}
	return "unknown"
}

// Channels names the group's guild channels.
type Channels struct {
	Monitored string
	Moderator string
}

// ChannelNames returns the channel names for a group number.
func ChannelNames(group string) Channels {
	return Channels{
		Monitored: "group-" + group,
		Moderator: "group-" + group + "-mod",
	}
}

// Classify picks the route for ev. selfID is the bot's own user ID.
func Classify(ev transport.Event, selfID string, ch Channels) Route {
	msg := ev.Message
	if msg.Author.ID != "" && msg.Author.ID == selfID {
		return RouteSelf
	}
	if ev.Kind == transport.EventDelete {
		return RouteDeleted
	}
	if msg.IsDirect() {
		return RouteDirect
	}
	switch msg.ChannelName {
	case ch.Moderator:
		return RouteModerator
	case ch.Monitored:
		return RouteMonitored
	}
	return RouteIgnore
}
