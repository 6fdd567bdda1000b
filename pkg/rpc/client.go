package rpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/djeraseit/parity/pkg/log"
	"github.com/djeraseit/parity/pkg/sign"
)

// Client is a typed wrapper around a Dialer for the keyring node methods.
// Every call returns the node's response signatures next to the result so
// callers can check them with Response.GetSigners.
//
//	dialer := rpc.NewWebsocketDialer(rpc.DefaultWebsocketDialerConfig)
//	client := rpc.NewClient(dialer)
//	if err := client.Start(ctx, "ws://localhost:8000/ws", onClose); err != nil {
//		return err
//	}
//	if _, _, err := client.UnlockAccount(ctx, rpc.UnlockAccountRequest{Address: addr, Password: pw}); err != nil {
//		return err
//	}
type Client struct {
	dialer Dialer

	mu                  sync.RWMutex
	accountCreatedEvent AccountCreatedEventHandler
}

// AccountCreatedEventHandler receives account_created notifications.
type AccountCreatedEventHandler func(ctx context.Context, notif AccountCreatedNotification, resSig []sign.Signature)

func NewClient(dialer Dialer) *Client {
	return &Client{dialer: dialer}
}

// Start dials url and dispatches notifications in the background until ctx
// is cancelled or the connection closes.
func (c *Client) Start(ctx context.Context, url string, handleClosure func(err error)) error {
	parentCtx, cancel := context.WithCancel(ctx)
	childHandleClosure := func(err error) {
		cancel()
		if handleClosure != nil {
			handleClosure(err)
		}
	}

	if err := c.dialer.Dial(parentCtx, url, childHandleClosure); err != nil {
		cancel()
		return err
	}

	go c.listenEvents(parentCtx)

	return nil
}

func (c *Client) listenEvents(ctx context.Context) {
	logger := log.FromContext(ctx)
	eventCh := c.dialer.EventCh()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventCh:
			if event == nil {
				continue
			}

			switch event.Res.Method {
			case AccountCreatedEvent.String():
				c.handleAccountCreatedEvent(ctx, event)
			default:
				logger.Warn("unknown event received", "method", event.Res.Method)
			}
		}
	}
}

// HandleAccountCreatedEvent sets the account_created handler, replacing any
// previous one.
func (c *Client) HandleAccountCreatedEvent(handler AccountCreatedEventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.accountCreatedEvent = handler
}

func (c *Client) handleAccountCreatedEvent(ctx context.Context, event *Response) {
	logger := log.FromContext(ctx)

	c.mu.RLock()
	handler := c.accountCreatedEvent
	c.mu.RUnlock()
	if handler == nil {
		logger.Warn("no handler for event", "method", event.Res.Method)
		return
	}

	var notif AccountCreatedNotification
	if err := event.Res.Params.Translate(&notif); err != nil {
		logger.Error("failed to translate event", "error", err, "method", event.Res.Method)
		return
	}

	handler(ctx, notif, event.Sig)
}

func (c *Client) Ping(ctx context.Context) ([]sign.Signature, error) {
	res, err := c.call(ctx, PingMethod, nil)
	if err != nil {
		return nil, err
	}

	if res.Res.Method != PongMethod.String() {
		return res.Sig, fmt.Errorf("unexpected response method: %s", res.Res.Method)
	}
	return res.Sig, nil
}

func (c *Client) ListAccounts(ctx context.Context) (ListAccountsResponse, []sign.Signature, error) {
	var resParams ListAccountsResponse
	resSig, err := c.callAndTranslate(ctx, ListAccountsMethod, nil, &resParams)
	return resParams, resSig, err
}

func (c *Client) UnlockAccount(ctx context.Context, reqParams UnlockAccountRequest) (UnlockAccountResponse, []sign.Signature, error) {
	var resParams UnlockAccountResponse
	resSig, err := c.callAndTranslate(ctx, UnlockAccountMethod, reqParams, &resParams)
	return resParams, resSig, err
}

func (c *Client) NewAccount(ctx context.Context, reqParams NewAccountRequest) (NewAccountResponse, []sign.Signature, error) {
	var resParams NewAccountResponse
	resSig, err := c.callAndTranslate(ctx, NewAccountMethod, reqParams, &resParams)
	return resParams, resSig, err
}

func (c *Client) Sign(ctx context.Context, reqParams SignRequest) (SignResponse, []sign.Signature, error) {
	var resParams SignResponse
	resSig, err := c.callAndTranslate(ctx, SignMethod, reqParams, &resParams)
	return resParams, resSig, err
}

func (c *Client) GetAuditLog(ctx context.Context, reqParams GetAuditLogRequest) (GetAuditLogResponse, []sign.Signature, error) {
	var resParams GetAuditLogResponse
	resSig, err := c.callAndTranslate(ctx, GetAuditLogMethod, reqParams, &resParams)
	return resParams, resSig, err
}

func (c *Client) callAndTranslate(ctx context.Context, method Method, reqParams, resParams any) ([]sign.Signature, error) {
	res, err := c.call(ctx, method, reqParams)
	if err != nil {
		return nil, err
	}

	if res.Res.Method != method.String() {
		return res.Sig, fmt.Errorf("unexpected response method: %s", res.Res.Method)
	}
	if err := res.Res.Params.Translate(resParams); err != nil {
		return res.Sig, err
	}
	return res.Sig, nil
}

func (c *Client) call(ctx context.Context, method Method, reqParams any) (*Response, error) {
	payload, err := c.PreparePayload(method, reqParams)
	if err != nil {
		return nil, err
	}

	req := NewRequest(payload)
	res, err := c.dialer.Call(ctx, &req)
	if err != nil {
		return nil, err
	}

	if err := res.Error(); err != nil {
		return nil, err
	}
	return res, nil
}

// PreparePayload wraps reqParams in a payload with a fresh request ID.
func (c *Client) PreparePayload(method Method, reqParams any) (Payload, error) {
	params, err := NewParams(reqParams)
	if err != nil {
		return Payload{}, err
	}

	return NewPayload(uint64(uuid.New().ID()), method.String(), params), nil
}
