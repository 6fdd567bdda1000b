package rpc

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/djeraseit/parity/pkg/log"
)

var (
	defaultWsConnWriteTimeout      = 5 * time.Second
	defaultWsConnProcessBufferSize = 10
	defaultWsConnWriteBufferSize   = 10
)

// Connection is a bidirectional message stream with one client.
type Connection interface {
	ConnectionID() string
	// RawRequests yields incoming messages. The channel is closed when the
	// client goes away.
	RawRequests() <-chan []byte
	// WriteRawResponse queues message for sending. It returns false and
	// schedules the connection for closing if the queue stays full for the
	// write timeout.
	WriteRawResponse(message []byte) bool
	// Serve runs the connection until it closes, then calls handleClosure.
	Serve(parentCtx context.Context, handleClosure func(error))
}

// GorillaWsConnectionAdapter is the subset of *websocket.Conn used here.
type GorillaWsConnectionAdapter interface {
	ReadMessage() (messageType int, p []byte, err error)
	NextWriter(messageType int) (io.WriteCloser, error)
	Close() error
}

// WebsocketConnection runs three goroutines per client: a reader feeding
// processSink, a writer draining writeSink and a watcher for server-side
// close requests. The first one to exit stops the others.
type WebsocketConnection struct {
	ctx           context.Context
	connectionID  string
	websocketConn GorillaWsConnectionAdapter
	writeTimeout  time.Duration

	logger               log.Logger
	onMessageSentHandler func([]byte)
	writeSink            chan []byte
	processSink          chan []byte
	closeConnCh          chan struct{}

	mu sync.Mutex
}

type WebsocketConnectionConfig struct {
	ConnectionID  string
	WebsocketConn GorillaWsConnectionAdapter

	WriteTimeout         time.Duration
	WriteBufferSize      int
	ProcessBufferSize    int
	Logger               log.Logger
	OnMessageSentHandler func([]byte)
}

func NewWebsocketConnection(config WebsocketConnectionConfig) (*WebsocketConnection, error) {
	if config.ConnectionID == "" {
		return nil, fmt.Errorf("connection ID cannot be empty")
	}
	if config.WebsocketConn == nil {
		return nil, fmt.Errorf("websocket connection cannot be nil")
	}
	if config.Logger == nil {
		config.Logger = log.NewNoopLogger()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaultWsConnWriteTimeout
	}
	if config.WriteBufferSize <= 0 {
		config.WriteBufferSize = defaultWsConnWriteBufferSize
	}
	if config.ProcessBufferSize <= 0 {
		config.ProcessBufferSize = defaultWsConnProcessBufferSize
	}
	if config.OnMessageSentHandler == nil {
		config.OnMessageSentHandler = func([]byte) {}
	}

	return &WebsocketConnection{
		connectionID:  config.ConnectionID,
		websocketConn: config.WebsocketConn,
		writeTimeout:  config.WriteTimeout,

		logger:               config.Logger.WithKV("connectionID", config.ConnectionID),
		onMessageSentHandler: config.OnMessageSentHandler,
		writeSink:            make(chan []byte, config.WriteBufferSize),
		processSink:          make(chan []byte, config.ProcessBufferSize),
		closeConnCh:          make(chan struct{}, 1),
	}, nil
}

func (conn *WebsocketConnection) Serve(parentCtx context.Context, handleClosure func(error)) {
	conn.mu.Lock()
	if conn.ctx != nil {
		conn.mu.Unlock()
		handleClosure(nil) // already serving
		return
	}
	conn.ctx = parentCtx
	conn.mu.Unlock()

	childCtx, cancel := context.WithCancel(parentCtx)
	wg := &sync.WaitGroup{}
	wg.Add(3)

	var closureErr error
	var closureErrMu sync.Mutex
	childHandleClosure := func(err error) {
		closureErrMu.Lock()
		defer closureErrMu.Unlock()

		if err != nil && closureErr == nil {
			closureErr = err
		}

		cancel()
		wg.Done()
	}

	go conn.readMessages(childHandleClosure)
	go conn.writeMessages(childCtx, childHandleClosure)
	go conn.waitForConnClose(childCtx, childHandleClosure)

	go func() {
		wg.Wait()

		closureErrMu.Lock()
		defer closureErrMu.Unlock()

		handleClosure(closureErr)

		if err := conn.websocketConn.Close(); err != nil {
			conn.logger.Debug("error closing websocket connection", "error", err)
		}
	}()
}

func (conn *WebsocketConnection) ConnectionID() string {
	return conn.connectionID
}

func (conn *WebsocketConnection) RawRequests() <-chan []byte {
	return conn.processSink
}

func (conn *WebsocketConnection) WriteRawResponse(message []byte) bool {
	timer := time.NewTimer(conn.writeTimeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		conn.logger.Warn("write queue full, closing connection")
		select {
		case conn.closeConnCh <- struct{}{}:
		default:
		}
		return false
	case conn.writeSink <- message:
		return true
	}
}

func (conn *WebsocketConnection) readMessages(handleClosure func(error)) {
	defer close(conn.processSink)

	for {
		_, messageBytes, err := conn.websocketConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				conn.logger.Error("websocket connection closed with unexpected reason", "error", err)
				handleClosure(err)
			} else {
				handleClosure(nil)
			}
			return
		}

		if len(messageBytes) == 0 {
			conn.logger.Debug("received empty message, skipping")
			continue
		}
		conn.processSink <- messageBytes
	}
}

func (conn *WebsocketConnection) writeMessages(ctx context.Context, handleClosure func(error)) {
	defer handleClosure(nil)

	for {
		select {
		case <-ctx.Done():
			conn.logger.Debug("context done, stopping message writing")
			return
		case messageBytes := <-conn.writeSink:
			if len(messageBytes) == 0 {
				continue
			}

			w, err := conn.websocketConn.NextWriter(websocket.TextMessage)
			if err != nil {
				conn.logger.Error("error getting writer for response", "error", err)
				continue
			}

			if _, err := w.Write(messageBytes); err != nil {
				conn.logger.Error("error writing response", "error", err)
				w.Close()
				continue
			}

			if err := w.Close(); err != nil {
				conn.logger.Error("error closing writer for response", "error", err)
				continue
			}

			conn.onMessageSentHandler(messageBytes)
		}
	}
}

func (conn *WebsocketConnection) waitForConnClose(ctx context.Context, handleClosure func(error)) {
	defer handleClosure(nil)

	select {
	case <-ctx.Done():
		conn.logger.Debug("context done, stopping connection close wait")
	case <-conn.closeConnCh:
		conn.logger.Info("websocket connection closed by server")
	}
}
