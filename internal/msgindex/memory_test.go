package msgindex

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/modbot/internal/report"
	"github.com/whisper/modbot/internal/transport"
)

var (
	_ Index           = (*Memory)(nil)
	_ Index           = (*Redis)(nil)
	_ report.Resolver = (*Memory)(nil)
	_ report.Resolver = (*Redis)(nil)
)

func message(channel, id, content string) transport.Message {
	return transport.Message{
		Ref:         transport.MessageRef{GuildID: "g1", ChannelID: channel, MessageID: id},
		ChannelName: "general",
		Author:      transport.User{ID: "u1", Name: "mallory"},
		Content:     content,
	}
}

func TestMemory_RecordAndResolve(t *testing.T) {
	idx := NewMemory(10)
	ctx := context.Background()
	msg := message("c1", "m1", "hello")

	require.NoError(t, idx.Record(ctx, msg))

	got, err := idx.Resolve(ctx, msg.Ref)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, msg, *got)
}

func TestMemory_UnknownResolvesNil(t *testing.T) {
	idx := NewMemory(10)
	ctx := context.Background()
	require.NoError(t, idx.Record(ctx, message("c1", "m1", "hello")))

	tests := []transport.MessageRef{
		{GuildID: "g1", ChannelID: "c1", MessageID: "m2"},
		{GuildID: "g1", ChannelID: "c2", MessageID: "m1"},
		{GuildID: "g2", ChannelID: "c1", MessageID: "m1"},
	}
	for _, ref := range tests {
		got, err := idx.Resolve(ctx, ref)
		assert.NoError(t, err)
		assert.Nil(t, got, "Resolve(%s)", ref)
	}
}

func TestMemory_Forget(t *testing.T) {
	idx := NewMemory(10)
	ctx := context.Background()
	msg := message("c1", "m1", "hello")
	require.NoError(t, idx.Record(ctx, msg))

	require.NoError(t, idx.Forget(ctx, msg.Ref))
	got, err := idx.Resolve(ctx, msg.Ref)
	assert.NoError(t, err)
	assert.Nil(t, got)

	// Forgetting an unknown channel is a no-op.
	assert.NoError(t, idx.Forget(ctx, transport.MessageRef{GuildID: "x", ChannelID: "y", MessageID: "z"}))
}

func TestMemory_Eviction(t *testing.T) {
	idx := NewMemory(3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, idx.Record(ctx, message("c1", fmt.Sprintf("m%d", i), fmt.Sprintf("msg-%d", i))))
	}

	for i := 1; i <= 2; i++ {
		got, _ := idx.Resolve(ctx, message("c1", fmt.Sprintf("m%d", i), "").Ref)
		assert.Nil(t, got, "m%d should be evicted", i)
	}
	for i := 3; i <= 5; i++ {
		got, _ := idx.Resolve(ctx, message("c1", fmt.Sprintf("m%d", i), "").Ref)
		require.NotNil(t, got, "m%d should be retained", i)
		assert.Equal(t, fmt.Sprintf("msg-%d", i), got.Content)
	}
}

func TestMemory_RecordSameIDOverwrites(t *testing.T) {
	idx := NewMemory(2)
	ctx := context.Background()

	require.NoError(t, idx.Record(ctx, message("c1", "m1", "first")))
	require.NoError(t, idx.Record(ctx, message("c1", "m1", "edited")))
	require.NoError(t, idx.Record(ctx, message("c1", "m2", "other")))

	got, _ := idx.Resolve(ctx, message("c1", "m1", "").Ref)
	require.NotNil(t, got)
	assert.Equal(t, "edited", got.Content)
}

func TestMemory_ChannelsIndependent(t *testing.T) {
	idx := NewMemory(1)
	ctx := context.Background()

	require.NoError(t, idx.Record(ctx, message("c1", "m1", "one")))
	require.NoError(t, idx.Record(ctx, message("c2", "m2", "two")))

	got, _ := idx.Resolve(ctx, message("c1", "m1", "").Ref)
	assert.NotNil(t, got)
	got, _ = idx.Resolve(ctx, message("c2", "m2", "").Ref)
	assert.NotNil(t, got)
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	idx := NewMemory(50)
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				msg := message(fmt.Sprintf("c%d", id), fmt.Sprintf("m%d", j), "x")
				_ = idx.Record(ctx, msg)
				_, _ = idx.Resolve(ctx, msg.Ref)
				if j%3 == 0 {
					_ = idx.Forget(ctx, msg.Ref)
				}
			}
		}(i)
	}
	wg.Wait()
}
