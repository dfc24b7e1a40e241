// Package transport defines the contract between modbot and the chat platform
// bridge: the events the bridge delivers, the directory of guilds and channels
// it exposes at startup, and the outbound calls modbot makes back to it.
package transport

import (
	"context"
	"fmt"
)

// Marker is a symbolic annotation attached to a reported message.
type Marker string

const (
	MarkerRemoval      Marker = "❌"
	MarkerWarning      Marker = "⭕"
	MarkerDeprioritize Marker = "🔻"
)

// EventKind distinguishes new messages from deletions.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventDelete  EventKind = "delete"
)

// User is a chat identity.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MessageRef locates a single message on the platform. GuildID is empty for
// direct messages.
type MessageRef struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// String renders the ref as guild/channel/message.
func (r MessageRef) String() string {
	return fmt.Sprintf("%s/%s/%s", r.GuildID, r.ChannelID, r.MessageID)
}

// Message is a chat message as seen by the bot.
type Message struct {
	Ref         MessageRef `json:"ref"`
	ChannelName string     `json:"channel_name"`
	Author      User       `json:"author"`
	Content     string     `json:"content"`
}

// IsDirect reports whether the message was sent outside any guild.
func (m *Message) IsDirect() bool {
	return m.Ref.GuildID == ""
}

// Event is one inbound notification from the bridge.
type Event struct {
	Kind    EventKind `json:"kind"`
	Message Message   `json:"message"`
}

// Channel is a guild text channel.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Guild is a server the bot is a member of.
type Guild struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Channels []Channel `json:"channels"`
}

// Directory is the bridge's view of the bot identity and its guilds.
type Directory struct {
	Self   User    `json:"self"`
	Guilds []Guild `json:"guilds"`
}

// Sender delivers outbound calls to the platform.
type Sender interface {
	Send(ctx context.Context, channelID string, text string) error
	React(ctx context.Context, ref MessageRef, marker Marker) error
}

// Handler consumes inbound events.
type Handler func(ctx context.Context, ev Event)

// Source produces the startup directory and then streams events until ctx is
// cancelled.
type Source interface {
	Hello(ctx context.Context) (*Directory, error)
	Run(ctx context.Context, handler Handler) error
}

// Transport is a bidirectional bridge connection.
type Transport interface {
	Sender
	Source
	Close() error
}
