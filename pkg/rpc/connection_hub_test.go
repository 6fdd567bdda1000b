package rpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConnection struct {
	id      string
	written [][]byte
}

func (c *recordingConnection) ConnectionID() string               { return c.id }
func (c *recordingConnection) RawRequests() <-chan []byte         { return nil }
func (c *recordingConnection) Serve(context.Context, func(error)) {}
func (c *recordingConnection) WriteRawResponse(message []byte) bool {
	c.written = append(c.written, message)
	return true
}

func TestConnectionHub(t *testing.T) {
	hub := NewConnectionHub()
	a := &recordingConnection{id: "a"}
	b := &recordingConnection{id: "b"}

	require.NoError(t, hub.Add(a))
	require.NoError(t, hub.Add(b))
	assert.Error(t, hub.Add(&recordingConnection{id: "a"}), "duplicate connection ID")
	assert.Error(t, hub.Add(nil))
	assert.Equal(t, 2, hub.Count())
	assert.Equal(t, a, hub.Get("a"))

	hub.Broadcast([]byte("hello"))
	assert.Equal(t, [][]byte{[]byte("hello")}, a.written)
	assert.Equal(t, [][]byte{[]byte("hello")}, b.written)

	hub.Remove("a")
	assert.Nil(t, hub.Get("a"))
	hub.Broadcast([]byte("again"))
	assert.Len(t, a.written, 1)
	assert.Len(t, b.written, 2)
}
