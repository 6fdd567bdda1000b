// Package rpc implements the signed websocket RPC protocol spoken by the
// keyring service.
//
// Every message is a JSON object whose payload is a compact array:
//
//	{"req": [request_id, method, params, ts], "sig": ["0x..."]}
//	{"res": [request_id, method, params, ts], "sig": ["0x..."]}
//
// Responses are signed by the node's signer over the Keccak256 hash of the
// encoded payload, so clients can verify which node answered them. Errors
// travel as a response with method "error" and params {"error": "message"}.
//
// Handlers are registered on a WebsocketNode per method and run as a chain:
//
//	node.Use(loggingMiddleware)
//	node.Handle("list_accounts", func(c *rpc.Context) {
//		c.Succeed("list_accounts", params)
//	})
//
// Groups let a subset of methods share extra middleware, e.g. rate limiting.
//
// On the other side, a WebsocketDialer correlates responses with calls by
// request ID and hands everything else to an event channel. Client wraps it
// with one typed method per RPC method plus notification handlers.
package rpc
