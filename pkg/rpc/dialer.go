package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/djeraseit/parity/pkg/log"
)

// Dialer is the client side of a node connection.
type Dialer interface {
	// Dial connects to url and returns once the connection is up. The
	// connection is served in the background until ctx is cancelled or it
	// fails; handleClosure is then called once with the first error seen.
	Dial(ctx context.Context, url string, handleClosure func(err error)) error
	IsConnected() bool
	// Call sends req and waits for the response with the same request ID.
	Call(ctx context.Context, req *Request) (*Response, error)
	// EventCh delivers responses that match no pending call, i.e. notifications.
	EventCh() <-chan *Response
}

type WebsocketDialerConfig struct {
	HandshakeTimeout time.Duration
	// PingInterval is how often a ping is sent. Zero disables pings.
	PingInterval time.Duration
	// PingRequestID is reserved for pings and must not be used by calls.
	PingRequestID uint64
	EventChanSize int
}

var DefaultWebsocketDialerConfig = WebsocketDialerConfig{
	HandshakeTimeout: 5 * time.Second,
	PingInterval:     5 * time.Second,
	PingRequestID:    100,
	EventChanSize:    100,
}

type dialSession struct {
	ctx    context.Context
	conn   *websocket.Conn
	logger log.Logger
}

// WebsocketDialer implements Dialer over a gorilla websocket connection.
// Calls are safe for concurrent use.
type WebsocketDialer struct {
	cfg WebsocketDialerConfig

	mu      sync.RWMutex // guards session, pending and eventCh
	session *dialSession
	pending map[uint64]chan *Response
	eventCh chan *Response

	writeMu sync.Mutex
}

var _ Dialer = (*WebsocketDialer)(nil)

func NewWebsocketDialer(cfg WebsocketDialerConfig) *WebsocketDialer {
	return &WebsocketDialer{
		cfg:     cfg,
		pending: make(map[uint64]chan *Response),
		eventCh: make(chan *Response, cfg.EventChanSize),
	}
}

func (d *WebsocketDialer) Dial(parentCtx context.Context, url string, handleClosure func(err error)) error {
	if d.IsConnected() {
		return ErrAlreadyConnected
	}

	wsDialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}
	conn, _, err := wsDialer.DialContext(parentCtx, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDialingWebsocket, err)
	}

	ctx, cancel := context.WithCancel(parentCtx)

	workers := 2
	if d.cfg.PingInterval > 0 {
		workers++
	}

	var (
		wg         sync.WaitGroup
		closeErr   error
		closeErrMu sync.Mutex
	)
	wg.Add(workers)
	workerDone := func(err error) {
		closeErrMu.Lock()
		if err != nil && closeErr == nil {
			closeErr = err
		}
		closeErrMu.Unlock()

		cancel()
		wg.Done()
	}

	d.mu.Lock()
	d.session = &dialSession{
		ctx:    ctx,
		conn:   conn,
		logger: log.FromContext(parentCtx).WithName("ws-dialer"),
	}
	d.eventCh = make(chan *Response, d.cfg.EventChanSize)
	d.mu.Unlock()

	go d.closeOnContextDone(ctx, conn, workerDone)
	go d.readMessages(ctx, conn, workerDone)
	if d.cfg.PingInterval > 0 {
		go d.pingPeriodically(ctx, workerDone)
	}

	go func() {
		wg.Wait()

		closeErrMu.Lock()
		defer closeErrMu.Unlock()
		if handleClosure != nil {
			handleClosure(closeErr)
		}
	}()

	return nil
}

func (d *WebsocketDialer) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.session != nil && d.session.ctx.Err() == nil
}

func (d *WebsocketDialer) closeOnContextDone(ctx context.Context, conn *websocket.Conn, done func(error)) {
	<-ctx.Done()

	err := conn.Close()

	// Waiting callers observe the closed sink and return ErrNoResponse.
	d.mu.Lock()
	for id, sink := range d.pending {
		close(sink)
		delete(d.pending, id)
	}
	d.mu.Unlock()

	done(err)
}

func (d *WebsocketDialer) readMessages(ctx context.Context, conn *websocket.Conn, done func(error)) {
	logger := d.logger()

	for {
		_, data, err := conn.ReadMessage()
		if ctx.Err() != nil {
			done(nil)
			return
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			logger.Error("websocket connection timeout", "error", err)
			done(fmt.Errorf("%w: %w", ErrConnectionTimeout, err))
			return
		} else if err != nil {
			logger.Error("websocket read error", "error", err)
			done(fmt.Errorf("%w: %w", ErrReadingMessage, err))
			return
		}

		var res Response
		if err := json.Unmarshal(data, &res); err != nil {
			logger.Warn("malformed message", "message", string(data), "error", err)
			continue
		}

		// Delivery holds the read lock so closeOnContextDone cannot close the
		// sink mid-send.
		d.mu.RLock()
		sink, ok := d.pending[res.Res.RequestID]
		if !ok {
			sink = d.eventCh
		}
		delivered := true
		select {
		case sink <- &res:
		default:
			delivered = false
		}
		d.mu.RUnlock()

		if !delivered {
			logger.Warn("response channel full, dropping message", "requestID", res.Res.RequestID, "method", res.Res.Method)
		}
	}
}

func (d *WebsocketDialer) Call(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	d.mu.Lock()
	if d.session == nil || d.session.ctx.Err() != nil {
		d.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := d.session.conn
	sessionCtx := d.session.ctx
	sink := make(chan *Response, 1)
	d.pending[req.Req.RequestID] = sink
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		if d.pending[req.Req.RequestID] == sink {
			delete(d.pending, req.Req.RequestID)
		}
		d.mu.Unlock()
	}()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMarshalingRequest, err)
	}

	d.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	d.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSendingRequest, err)
	}

	var res *Response
	select {
	case <-ctx.Done():
	case <-sessionCtx.Done():
	case res = <-sink:
	}

	if res == nil {
		return nil, fmt.Errorf("%w for request %d", ErrNoResponse, req.Req.RequestID)
	}
	return res, nil
}

func (d *WebsocketDialer) pingPeriodically(ctx context.Context, done func(error)) {
	logger := d.logger()

	ticker := time.NewTicker(d.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			done(nil)
			return
		case <-ticker.C:
			req := NewRequest(NewPayload(d.cfg.PingRequestID, PingMethod.String(), nil))
			res, err := d.Call(ctx, &req)
			if err != nil {
				if ctx.Err() != nil {
					done(nil)
					return
				}
				logger.Error("error sending ping", "error", err)
				done(fmt.Errorf("%w: %w", ErrSendingPing, err))
				return
			}
			if res.Res.Method != PongMethod.String() {
				logger.Warn("unexpected response to ping", "method", res.Res.Method)
			}
		}
	}
}

func (d *WebsocketDialer) EventCh() <-chan *Response {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.eventCh
}

func (d *WebsocketDialer) logger() log.Logger {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.session == nil {
		return log.NewNoopLogger()
	}
	return d.session.logger
}
