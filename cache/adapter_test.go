package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCache_LocalWhenNoRedis(t *testing.T) {
	c, err := NewCache(CacheConfig{LocalGCInterval: time.Minute})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, err = c.HGet(ctx, "bot:1:cast_ledger", "133")
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(nil))
}

func TestNewPubSub_LocalRoundTrip(t *testing.T) {
	ps, err := NewPubSub(CacheConfig{LocalPubSubBuf: 4})
	require.NoError(t, err)

	ctx := context.Background()
	ch, cancel, err := ps.Subscribe(ctx, "rotation:decision")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "rotation:decision", "x"))
	select {
	case msg := <-ch:
		assert.Equal(t, "rotation:decision", msg.Channel)
		assert.Equal(t, "x", msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
}

func TestNewPubSub_CancelClosesChannel(t *testing.T) {
	ps, err := NewPubSub(CacheConfig{})
	require.NoError(t, err)

	ch, cancel, err := ps.Subscribe(context.Background(), "a", "b")
	require.NoError(t, err)
	require.NoError(t, ps.Publish(context.Background(), "b", "1"))
	assert.Equal(t, "b", (<-ch).Channel)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestBridge_ConvertsUntilClosed(t *testing.T) {
	in := make(chan int, 2)
	in <- 1
	in <- 2
	close(in)
	out := bridge((<-chan int)(in), func(n int) *Message {
		return &Message{Payload: string(rune('0' + n))}
	})
	var got []string
	for m := range out {
		got = append(got, m.Payload)
	}
	assert.Equal(t, []string{"1", "2"}, got)
}
