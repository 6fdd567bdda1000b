package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/djeraseit/parity/pkg/log"
	"github.com/djeraseit/parity/pkg/sign"
)

const (
	defaultNodeErrorMessage = "an error occurred while processing the request"
	tracerName              = "github.com/djeraseit/parity/pkg/rpc"
)

const (
	nodeGroupHandlerPrefix = "group."
	nodeGroupRoot          = "root"
)

// Node routes RPC methods to handler chains.
type Node interface {
	Handle(method string, handler Handler)
	Use(middleware Handler)
	NewGroup(name string) HandlerGroup
	// Broadcast sends a signed notification to every connected client.
	Broadcast(method string, params Params)
}

// HandlerGroup is a set of methods sharing middleware. Groups nest; a
// request passes through the middleware of every enclosing group.
type HandlerGroup interface {
	Handle(method string, handler Handler)
	Use(middleware Handler)
	NewGroup(name string) HandlerGroup
}

var (
	_ Node         = &WebsocketNode{}
	_ http.Handler = &WebsocketNode{}

	_ HandlerGroup = &WebsocketHandlerGroup{}
)

// WebsocketNode serves the RPC protocol over websocket connections.
// Handlers must be registered before the node starts serving.
type WebsocketNode struct {
	upgrader     websocket.Upgrader
	cfg          WebsocketNodeConfig
	tracer       trace.Tracer
	groupId      string
	handlerChain map[string][]Handler
	routes       map[string][]string
	connHub      *ConnectionHub
}

type WebsocketNodeConfig struct {
	Signer sign.Signer
	Logger log.Logger
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider

	OnConnectHandler     func(connectionID string, send SendResponseFunc)
	OnDisconnectHandler  func(connectionID string)
	OnMessageSentHandler func([]byte)

	WsUpgraderReadBufferSize  int
	WsUpgraderWriteBufferSize int
	WsUpgraderCheckOrigin     func(r *http.Request) bool

	WsConnWriteTimeout      time.Duration
	WsConnWriteBufferSize   int
	WsConnProcessBufferSize int
}

func NewWebsocketNode(config WebsocketNodeConfig) (*WebsocketNode, error) {
	if config.Signer == nil {
		return nil, fmt.Errorf("signer cannot be nil")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	config.Logger = config.Logger.WithName("rpc-node")

	if config.TracerProvider == nil {
		config.TracerProvider = otel.GetTracerProvider()
	}
	if config.OnConnectHandler == nil {
		config.OnConnectHandler = func(string, SendResponseFunc) {}
	}
	if config.OnDisconnectHandler == nil {
		config.OnDisconnectHandler = func(string) {}
	}
	if config.OnMessageSentHandler == nil {
		config.OnMessageSentHandler = func([]byte) {}
	}
	if config.WsUpgraderReadBufferSize <= 0 {
		config.WsUpgraderReadBufferSize = 1024
	}
	if config.WsUpgraderWriteBufferSize <= 0 {
		config.WsUpgraderWriteBufferSize = 1024
	}
	if config.WsUpgraderCheckOrigin == nil {
		config.WsUpgraderCheckOrigin = func(r *http.Request) bool {
			return true
		}
	}

	node := &WebsocketNode{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.WsUpgraderReadBufferSize,
			WriteBufferSize: config.WsUpgraderWriteBufferSize,
			CheckOrigin:     config.WsUpgraderCheckOrigin,
		},
		cfg:          config,
		tracer:       config.TracerProvider.Tracer(tracerName),
		groupId:      nodeGroupHandlerPrefix + nodeGroupRoot,
		handlerChain: make(map[string][]Handler),
		routes:       make(map[string][]string),
		connHub:      NewConnectionHub(),
	}

	node.Handle(PingMethod.String(), node.handlePing)

	return node, nil
}

// ServeHTTP upgrades the request to a websocket and serves it until the
// client disconnects or the request context is cancelled.
func (wn *WebsocketNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConnection, err := wn.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wn.cfg.Logger.Error("failed to upgrade connection to websocket", "error", err)
		return
	}
	defer wsConnection.Close()

	connectionID := uuid.NewString()

	connection, err := NewWebsocketConnection(WebsocketConnectionConfig{
		ConnectionID:         connectionID,
		WebsocketConn:        wsConnection,
		WriteTimeout:         wn.cfg.WsConnWriteTimeout,
		WriteBufferSize:      wn.cfg.WsConnWriteBufferSize,
		ProcessBufferSize:    wn.cfg.WsConnProcessBufferSize,
		Logger:               wn.cfg.Logger,
		OnMessageSentHandler: wn.cfg.OnMessageSentHandler,
	})
	if err != nil {
		wn.cfg.Logger.Error("failed to create websocket connection", "error", err, "connectionID", connectionID)
		return
	}
	if err := wn.connHub.Add(connection); err != nil {
		wn.cfg.Logger.Error("failed to add connection to hub", "error", err, "connectionID", connectionID)
		return
	}

	wn.cfg.OnConnectHandler(connectionID, wn.getSendResponseFunc(connection))
	wn.cfg.Logger.Info("new websocket connection established", "connectionID", connectionID)

	defer func() {
		wn.connHub.Remove(connectionID)

		wn.cfg.OnDisconnectHandler(connectionID)
		wn.cfg.Logger.Info("connection closed", "connectionID", connectionID)
	}()

	parentCtx, cancel := context.WithCancel(r.Context())
	defer cancel()

	wg := &sync.WaitGroup{}
	wg.Add(2)
	childHandleClosure := func(_ error) {
		cancel()
		wg.Done()
	}

	go connection.Serve(parentCtx, childHandleClosure)
	go wn.processRequests(connection, parentCtx, childHandleClosure)

	wg.Wait()
}

// ConnectionCount returns the number of live connections.
func (wn *WebsocketNode) ConnectionCount() int {
	return wn.connHub.Count()
}

func (wn *WebsocketNode) processRequests(conn Connection, parentCtx context.Context, handleClosure func(error)) {
	defer handleClosure(nil)
	safeStorage := NewSafeStorage()

	for {
		var messageBytes []byte
		select {
		case <-parentCtx.Done():
			wn.cfg.Logger.Debug("context done, stopping message processing")
			return
		case messageBytes = <-conn.RawRequests():
			if len(messageBytes) == 0 {
				return // channel closed
			}
		}

		req := Request{}
		if err := json.Unmarshal(messageBytes, &req); err != nil {
			wn.cfg.Logger.Debug("invalid message format", "error", err, "connectionID", conn.ConnectionID())
			wn.sendErrorResponse(conn, req.Req.RequestID, "invalid message format")
			continue
		}

		routeHandlers, route := wn.resolveRoute(req.Req.Method)
		if len(routeHandlers) == 0 {
			wn.cfg.Logger.Debug("no handlers found for method", "method", req.Req.Method)
			wn.sendErrorResponse(conn, req.Req.RequestID, fmt.Sprintf("unknown method: %s", req.Req.Method))
			continue
		}

		wn.handleRequest(parentCtx, conn, safeStorage, req, routeHandlers, route)
	}
}

// resolveRoute concatenates the middleware of every group on the method's
// route followed by the method handler.
func (wn *WebsocketNode) resolveRoute(method string) ([]Handler, []string) {
	methodRoute, ok := wn.routes[method]
	if !ok || len(methodRoute) == 0 {
		return nil, nil
	}

	var routeHandlers []Handler
	for _, handlersId := range methodRoute {
		handlers, exists := wn.handlerChain[handlersId]
		if !exists || len(handlers) == 0 {
			if handlersId == method {
				wn.cfg.Logger.Error("no handlers found for id", "id", handlersId)
				return nil, nil
			}
			continue // group without middleware
		}
		routeHandlers = append(routeHandlers, handlers...)
	}
	return routeHandlers, methodRoute
}

func (wn *WebsocketNode) handleRequest(parentCtx context.Context, conn Connection, storage *SafeStorage, req Request, handlers []Handler, route []string) {
	spanCtx, span := wn.tracer.Start(parentCtx, "rpc."+req.Req.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.method", req.Req.Method),
			attribute.Int64("rpc.request_id", int64(req.Req.RequestID)),
			attribute.String("rpc.connection_id", conn.ConnectionID()),
		),
	)
	defer span.End()

	logger := wn.cfg.Logger.
		WithKV("requestID", req.Req.RequestID).
		WithKV("method", req.Req.Method).
		WithKV("connectionID", conn.ConnectionID())
	spanCtx = log.SetContextLogger(spanCtx, logger)

	log.FromContext(spanCtx).Debug("processing message", "route", route)

	ctx := &Context{
		Context:      spanCtx,
		ConnectionID: conn.ConnectionID(),
		Signer:       wn.cfg.Signer,
		Request:      req,
		handlers:     handlers,
		Storage:      storage,
	}
	ctx.Next()

	responseBytes, err := ctx.GetRawResponse()
	if err != nil {
		span.SetStatus(codes.Error, "failed to prepare response")
		wn.sendErrorResponse(conn, req.Req.RequestID, defaultNodeErrorMessage)
		log.FromContext(spanCtx).Error("failed to prepare response", "error", err)
		return
	}
	if ctx.Failed() {
		span.SetStatus(codes.Error, ctx.Response.Error().Error())
	}

	conn.WriteRawResponse(responseBytes)
}

func (wn *WebsocketNode) NewGroup(name string) HandlerGroup {
	return &WebsocketHandlerGroup{
		groupId:     nodeGroupHandlerPrefix + name,
		routePrefix: []string{wn.groupId},
		root:        wn,
	}
}

func (wn *WebsocketNode) Handle(method string, handler Handler) {
	wn.handle(method, handler)
	wn.routes[method] = []string{wn.groupId, method}
}

func (wn *WebsocketNode) handle(method string, handler Handler) {
	if method == "" {
		panic("websocket method cannot be empty")
	}
	if handler == nil {
		panic(fmt.Sprintf("websocket handler cannot be nil for method %s", method))
	}

	wn.handlerChain[method] = []Handler{handler}
}

func (wn *WebsocketNode) Use(middleware Handler) {
	wn.use(wn.groupId, middleware)
}

func (wn *WebsocketNode) use(groupId string, middleware Handler) {
	if middleware == nil {
		panic("websocket middleware handler cannot be nil")
	}

	wn.handlerChain[groupId] = append(wn.handlerChain[groupId], middleware)
}

func (wn *WebsocketNode) Broadcast(method string, params Params) {
	message, err := prepareRawNotification(wn.cfg.Signer, method, params)
	if err != nil {
		wn.cfg.Logger.Error("failed to prepare notification message", "error", err, "method", method)
		return
	}

	wn.connHub.Broadcast(message)
}

func (wn *WebsocketNode) getSendResponseFunc(conn Connection) SendResponseFunc {
	return func(method string, params Params) {
		responseBytes, err := prepareRawNotification(wn.cfg.Signer, method, params)
		if err != nil {
			wn.cfg.Logger.Error("failed to prepare notification message", "error", err, "method", method)
			return
		}

		conn.WriteRawResponse(responseBytes)
	}
}

func (wn *WebsocketNode) sendErrorResponse(conn Connection, requestID uint64, message string) {
	res := NewErrorResponse(requestID, message)
	responseBytes, err := prepareRawResponse(wn.cfg.Signer, res.Res)
	if err != nil {
		wn.cfg.Logger.Error("failed to prepare error response", "error", err)
		return
	}

	conn.WriteRawResponse(responseBytes)
}

func (wn *WebsocketNode) handlePing(ctx *Context) {
	ctx.Next()
	ctx.Succeed(PongMethod.String(), nil)
}

func prepareRawNotification(signer sign.Signer, method string, params Params) ([]byte, error) {
	payload := NewPayload(0, method, params)
	return prepareRawResponse(signer, payload)
}

type WebsocketHandlerGroup struct {
	groupId     string
	routePrefix []string
	root        *WebsocketNode
}

func (hg *WebsocketHandlerGroup) NewGroup(name string) HandlerGroup {
	prefix := make([]string, 0, len(hg.routePrefix)+1)
	prefix = append(prefix, hg.routePrefix...)
	return &WebsocketHandlerGroup{
		groupId:     fmt.Sprintf("%s.%s", hg.groupId, name),
		routePrefix: append(prefix, hg.groupId),
		root:        hg.root,
	}
}

func (hg *WebsocketHandlerGroup) Handle(method string, handler Handler) {
	route := make([]string, 0, len(hg.routePrefix)+2)
	route = append(route, hg.routePrefix...)
	hg.root.routes[method] = append(route, hg.groupId, method)
	hg.root.handle(method, handler)
}

func (hg *WebsocketHandlerGroup) Use(middleware Handler) {
	hg.root.use(hg.groupId, middleware)
}
