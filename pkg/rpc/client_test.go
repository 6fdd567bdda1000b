package rpc_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djeraseit/parity/pkg/log"
	"github.com/djeraseit/parity/pkg/rpc"
	"github.com/djeraseit/parity/pkg/sign"
)

func startClient(t *testing.T, node *rpc.WebsocketNode, cfg rpc.WebsocketDialerConfig) (*rpc.Client, *rpc.WebsocketDialer, chan error) {
	t.Helper()

	server := httptest.NewServer(node)
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	closed := make(chan error, 1)
	dialer := rpc.NewWebsocketDialer(cfg)
	client := rpc.NewClient(dialer)
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	require.NoError(t, client.Start(ctx, url, func(err error) { closed <- err }))

	return client, dialer, closed
}

func TestClient_Calls(t *testing.T) {
	t.Parallel()

	signer, err := sign.NewEthereumSigner(testSignerKey)
	require.NoError(t, err)

	node, err := rpc.NewWebsocketNode(rpc.WebsocketNodeConfig{Signer: signer, Logger: log.NewNoopLogger()})
	require.NoError(t, err)

	node.Handle(rpc.ListAccountsMethod.String(), func(c *rpc.Context) {
		params, err := rpc.NewParams(rpc.ListAccountsResponse{Accounts: []string{"0x01", "0x02"}})
		require.NoError(t, err)
		c.Succeed(rpc.ListAccountsMethod.String(), params)
	})
	node.Handle(rpc.UnlockAccountMethod.String(), func(c *rpc.Context) {
		var req rpc.UnlockAccountRequest
		require.NoError(t, c.Request.Req.Params.Translate(&req))
		if req.Password != "secret" {
			c.Fail(rpc.Errorf("invalid password"), "")
			return
		}
		params, err := rpc.NewParams(rpc.UnlockAccountResponse{Address: req.Address, Unlocked: true})
		require.NoError(t, err)
		c.Succeed(rpc.UnlockAccountMethod.String(), params)
	})

	client, dialer, _ := startClient(t, node, rpc.DefaultWebsocketDialerConfig)
	require.True(t, dialer.IsConnected())
	ctx := context.Background()

	sigs, err := client.Ping(ctx)
	require.NoError(t, err)
	require.Len(t, sigs, 1)

	list, sigs, err := client.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0x01", "0x02"}, list.Accounts)
	require.Len(t, sigs, 1)

	unlocked, _, err := client.UnlockAccount(ctx, rpc.UnlockAccountRequest{Address: "0x01", Password: "secret"})
	require.NoError(t, err)
	assert.True(t, unlocked.Unlocked)
	assert.Equal(t, "0x01", unlocked.Address)

	_, _, err = client.UnlockAccount(ctx, rpc.UnlockAccountRequest{Address: "0x01", Password: "wrong"})
	require.EqualError(t, err, "invalid password")

	_, _, err = client.Sign(ctx, rpc.SignRequest{Address: "0x01", Hash: "0x00"})
	require.EqualError(t, err, "unknown method: sign")
}

func TestClient_AccountCreatedEvent(t *testing.T) {
	t.Parallel()

	node, err := rpc.NewWebsocketNode(rpc.WebsocketNodeConfig{Signer: sign.NewMockSigner("node"), Logger: log.NewNoopLogger()})
	require.NoError(t, err)

	client, _, _ := startClient(t, node, rpc.DefaultWebsocketDialerConfig)

	events := make(chan rpc.AccountCreatedNotification, 1)
	client.HandleAccountCreatedEvent(func(_ context.Context, notif rpc.AccountCreatedNotification, resSig []sign.Signature) {
		assert.Len(t, resSig, 1)
		events <- notif
	})

	require.Eventually(t, func() bool { return node.ConnectionCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	params, err := rpc.NewParams(rpc.AccountCreatedNotification{Address: "0xabc"})
	require.NoError(t, err)
	node.Broadcast(rpc.AccountCreatedEvent.String(), params)

	select {
	case notif := <-events:
		assert.Equal(t, "0xabc", notif.Address)
	case <-time.After(5 * time.Second):
		t.Fatal("account_created event was not delivered")
	}
}

func TestWebsocketDialer_Lifecycle(t *testing.T) {
	t.Parallel()

	dialer := rpc.NewWebsocketDialer(rpc.DefaultWebsocketDialerConfig)
	assert.False(t, dialer.IsConnected())

	_, err := dialer.Call(context.Background(), nil)
	require.ErrorIs(t, err, rpc.ErrNilRequest)

	req := rpc.NewRequest(rpc.NewPayload(1, rpc.PingMethod.String(), nil))
	_, err = dialer.Call(context.Background(), &req)
	require.ErrorIs(t, err, rpc.ErrNotConnected)

	err = dialer.Dial(context.Background(), "ws://127.0.0.1:1/ws", nil)
	require.ErrorIs(t, err, rpc.ErrDialingWebsocket)

	node, err := rpc.NewWebsocketNode(rpc.WebsocketNodeConfig{Signer: sign.NewMockSigner("node"), Logger: log.NewNoopLogger()})
	require.NoError(t, err)
	server := httptest.NewServer(node)
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())
	closed := make(chan error, 1)
	cfg := rpc.DefaultWebsocketDialerConfig
	cfg.PingInterval = 20 * time.Millisecond
	dialer = rpc.NewWebsocketDialer(cfg)
	require.NoError(t, dialer.Dial(ctx, url, func(err error) { closed <- err }))
	require.ErrorIs(t, dialer.Dial(ctx, url, nil), rpc.ErrAlreadyConnected)

	// A few ping rounds keep the connection alive.
	time.Sleep(100 * time.Millisecond)
	assert.True(t, dialer.IsConnected())

	cancel()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("closure handler was not called")
	}
	assert.False(t, dialer.IsConnected())
}
