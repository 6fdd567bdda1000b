package rpc_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djeraseit/parity/pkg/log"
	"github.com/djeraseit/parity/pkg/rpc"
	"github.com/djeraseit/parity/pkg/sign"
)

const testSignerKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestNewWebsocketNode(t *testing.T) {
	t.Parallel()

	cfg := rpc.WebsocketNodeConfig{}
	_, err := rpc.NewWebsocketNode(cfg)
	require.EqualError(t, err, "signer cannot be nil")

	cfg.Signer = sign.NewMockSigner("signer1")
	_, err = rpc.NewWebsocketNode(cfg)
	require.EqualError(t, err, "logger cannot be nil")
	cfg.Logger = log.NewNoopLogger()

	node, err := rpc.NewWebsocketNode(cfg)
	require.NoError(t, err)
	require.NotNil(t, node)
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialNode(t *testing.T, server *httptest.Server) *testClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(id uint64, method string, params any) {
	c.t.Helper()

	p, err := rpc.NewParams(params)
	require.NoError(c.t, err)
	data, err := json.Marshal(rpc.NewRequest(rpc.NewPayload(id, method, p)))
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, data))
}

func (c *testClient) sendRaw(data string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

func (c *testClient) read() rpc.Response {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)

	var res rpc.Response
	require.NoError(c.t, json.Unmarshal(data, &res))
	return res
}

func TestWebsocketNode_Ping(t *testing.T) {
	t.Parallel()

	signer, err := sign.NewEthereumSigner(testSignerKey)
	require.NoError(t, err)

	node, err := rpc.NewWebsocketNode(rpc.WebsocketNodeConfig{Signer: signer, Logger: log.NewNoopLogger()})
	require.NoError(t, err)

	server := httptest.NewServer(node)
	defer server.Close()

	client := dialNode(t, server)
	client.send(1, rpc.PingMethod.String(), nil)

	res := client.read()
	assert.Equal(t, uint64(1), res.Res.RequestID)
	assert.Equal(t, rpc.PongMethod.String(), res.Res.Method)

	signers, err := res.GetSigners()
	require.NoError(t, err)
	require.Len(t, signers, 1)
	assert.True(t, signers[0].Equals(signer.PublicKey().Address()), "response is signed by the node")
}

func TestWebsocketNode_Errors(t *testing.T) {
	t.Parallel()

	node, err := rpc.NewWebsocketNode(rpc.WebsocketNodeConfig{
		Signer: sign.NewMockSigner("node"),
		Logger: log.NewNoopLogger(),
	})
	require.NoError(t, err)

	node.Handle("internal", func(c *rpc.Context) {
		c.Fail(assert.AnError, "failed to do the thing")
	})
	node.Handle("client", func(c *rpc.Context) {
		c.Fail(rpc.Errorf("bad input: %d", 5), "")
	})
	node.Handle("silent", func(c *rpc.Context) {})

	server := httptest.NewServer(node)
	defer server.Close()
	client := dialNode(t, server)

	tcs := []struct {
		name     string
		send     func()
		expected string
	}{
		{name: "malformed message", send: func() { client.sendRaw(`{"req": "nope"}`) }, expected: "invalid message format"},
		{name: "unknown method", send: func() { client.send(2, "missing", nil) }, expected: "unknown method: missing"},
		{name: "internal error", send: func() { client.send(3, "internal", nil) }, expected: "failed to do the thing"},
		{name: "client error", send: func() { client.send(4, "client", nil) }, expected: "bad input: 5"},
		{name: "no response", send: func() { client.send(5, "silent", nil) }, expected: "internal server error: no response from handler"},
	}

	for _, tc := range tcs {
		tc.send()
		res := client.read()
		assert.Equal(t, rpc.ErrorMethod.String(), res.Res.Method, tc.name)
		require.Error(t, res.Error(), tc.name)
		assert.Equal(t, tc.expected, res.Error().Error(), tc.name)
	}
}

func TestWebsocketNode_Groups(t *testing.T) {
	t.Parallel()

	node, err := rpc.NewWebsocketNode(rpc.WebsocketNodeConfig{
		Signer: sign.NewMockSigner("node"),
		Logger: log.NewNoopLogger(),
	})
	require.NoError(t, err)

	var mu sync.Mutex
	var trail []string
	record := func(step string) rpc.Handler {
		return func(c *rpc.Context) {
			mu.Lock()
			trail = append(trail, step)
			mu.Unlock()
			c.Next()
		}
	}

	node.Use(record("root"))
	guarded := node.NewGroup("guarded")
	guarded.Use(record("guarded"))
	inner := guarded.NewGroup("inner")
	inner.Use(record("inner"))
	inner.Use(func(c *rpc.Context) {
		if c.Request.Req.Method == "blocked" {
			c.Fail(rpc.Errorf("blocked"), "")
			return
		}
		c.Next()
	})

	succeed := func(c *rpc.Context) { c.Succeed(c.Request.Req.Method, nil) }
	node.Handle("open", succeed)
	inner.Handle("nested", succeed)
	inner.Handle("blocked", succeed)

	server := httptest.NewServer(node)
	defer server.Close()
	client := dialNode(t, server)

	client.send(1, "open", nil)
	assert.Equal(t, "open", client.read().Res.Method)

	client.send(2, "nested", nil)
	assert.Equal(t, "nested", client.read().Res.Method)

	client.send(3, "blocked", nil)
	res := client.read()
	require.Error(t, res.Error())
	assert.Equal(t, "blocked", res.Error().Error())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"root",
		"root", "guarded", "inner",
		"root", "guarded", "inner",
	}, trail)
}

func TestWebsocketNode_Broadcast(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	connected := map[string]bool{}
	disconnected := map[string]bool{}

	node, err := rpc.NewWebsocketNode(rpc.WebsocketNodeConfig{
		Signer: sign.NewMockSigner("node"),
		Logger: log.NewNoopLogger(),
		OnConnectHandler: func(connectionID string, send rpc.SendResponseFunc) {
			mu.Lock()
			connected[connectionID] = true
			mu.Unlock()
			send("welcome", nil)
		},
		OnDisconnectHandler: func(connectionID string) {
			mu.Lock()
			disconnected[connectionID] = true
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	server := httptest.NewServer(node)
	defer server.Close()

	alice := dialNode(t, server)
	bob := dialNode(t, server)
	assert.Equal(t, "welcome", alice.read().Res.Method)
	assert.Equal(t, "welcome", bob.read().Res.Method)
	require.Equal(t, 2, node.ConnectionCount())

	params, err := rpc.NewParams(rpc.AccountCreatedNotification{Address: "0x01"})
	require.NoError(t, err)
	node.Broadcast(rpc.AccountCreatedEvent.String(), params)

	for _, client := range []*testClient{alice, bob} {
		res := client.read()
		assert.Equal(t, rpc.AccountCreatedEvent.String(), res.Res.Method)
		assert.Equal(t, uint64(0), res.Res.RequestID)

		var note rpc.AccountCreatedNotification
		require.NoError(t, res.Res.Params.Translate(&note))
		assert.Equal(t, "0x01", note.Address)
	}

	require.NoError(t, alice.conn.Close())
	require.Eventually(t, func() bool { return node.ConnectionCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, connected, 2)
	assert.Len(t, disconnected, 1)
}
