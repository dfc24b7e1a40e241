// Package msgindex remembers guild messages the bot has seen so a message link
// pasted into a report can be resolved to its author and content. Removed or
// deleted messages drop out of the index and no longer resolve.
package msgindex

import (
	"context"
	"sync"

	"github.com/whisper/modbot/internal/transport"
)

// Index records, forgets, and resolves messages.
type Index interface {
	Record(ctx context.Context, msg transport.Message) error
	Forget(ctx context.Context, ref transport.MessageRef) error
	Resolve(ctx context.Context, ref transport.MessageRef) (*transport.Message, error)
}

// DefaultPerChannel is the number of recent messages kept per channel by the
// in-memory index.
const DefaultPerChannel = 1000

// channelKey identifies one channel's ring buffer.
type channelKey struct {
	guild, channel string
}

// Memory keeps the last N messages per channel. It is goroutine-safe.
type Memory struct {
	mu         sync.RWMutex
	perChannel int
	buffers    map[channelKey]*ringBuffer
}

// ringBuffer is a fixed-size circular buffer with an id lookup.
type ringBuffer struct {
	items []transport.Message
	pos   int
	count int
	byID  map[string]int // message id -> slot
}

// NewMemory creates an index holding perChannel messages per channel.
// Non-positive values use DefaultPerChannel.
func NewMemory(perChannel int) *Memory {
	if perChannel <= 0 {
		perChannel = DefaultPerChannel
	}
	return &Memory{
		perChannel: perChannel,
		buffers:    make(map[channelKey]*ringBuffer),
	}
}

// Record stores msg, evicting the channel's oldest entry when full.
func (m *Memory) Record(_ context.Context, msg transport.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := channelKey{msg.Ref.GuildID, msg.Ref.ChannelID}
	rb, ok := m.buffers[key]
	if !ok {
		rb = &ringBuffer{
			items: make([]transport.Message, m.perChannel),
			byID:  make(map[string]int),
		}
		m.buffers[key] = rb
	}

	if slot, ok := rb.byID[msg.Ref.MessageID]; ok {
		rb.items[slot] = msg
		return nil
	}

	if rb.count == m.perChannel {
		evicted := rb.items[rb.pos]
		if rb.byID[evicted.Ref.MessageID] == rb.pos {
			delete(rb.byID, evicted.Ref.MessageID)
		}
	}
	rb.items[rb.pos] = msg
	rb.byID[msg.Ref.MessageID] = rb.pos
	rb.pos = (rb.pos + 1) % m.perChannel
	if rb.count < m.perChannel {
		rb.count++
	}
	return nil
}

// Forget drops ref so it no longer resolves.
func (m *Memory) Forget(_ context.Context, ref transport.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rb, ok := m.buffers[channelKey{ref.GuildID, ref.ChannelID}]
	if !ok {
		return nil
	}
	delete(rb.byID, ref.MessageID)
	return nil
}

// Resolve returns a copy of the message, or nil if it is unknown or forgotten.
func (m *Memory) Resolve(_ context.Context, ref transport.MessageRef) (*transport.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rb, ok := m.buffers[channelKey{ref.GuildID, ref.ChannelID}]
	if !ok {
		return nil, nil
	}
	slot, ok := rb.byID[ref.MessageID]
	if !ok {
		return nil, nil
	}
	msg := rb.items[slot]
	return &msg, nil
}
