package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"

	"github.com/djeraseit/parity/pkg/account"
	"github.com/djeraseit/parity/pkg/log"
	"github.com/djeraseit/parity/pkg/rpc"
)

const (
	// maxUnlockFailuresPerConnection closes the unlock method for a
	// connection after this many rejected passwords.
	maxUnlockFailuresPerConnection = 10
	unlockFailuresStorageKey       = "unlock_failures"

	// With HideUnknownAccounts set, unknown accounts get the same answer as
	// rejected or locked ones.
	hiddenUnlockMessage = "invalid account or password"
	hiddenSignMessage   = "account is locked"
)

func getValidator() *validator.Validate {
	validate := validator.New()

	if err := validate.RegisterValidation("hash32", func(fl validator.FieldLevel) bool {
		b, err := hexutil.Decode(fl.Field().String())
		return err == nil && len(b) == common.HashLength
	}); err != nil {
		panic(fmt.Sprintf("failed to register hash32 validation: %v", err))
	}
	return validate
}

// RPCRouterConfig holds the router policies.
type RPCRouterConfig struct {
	HideUnknownAccounts bool
}

// RPCRouter exposes an account.Provider over RPC.
type RPCRouter struct {
	Node          rpc.Node
	Provider      account.Provider
	Config        RPCRouterConfig
	Metrics       *Metrics
	UnlockLimiter *UnlockLimiter
	// AuditLog is optional.
	AuditLog AuditRecorder

	validate *validator.Validate
	lg       log.Logger
	now      func() time.Time
}

// NewRPCRouter registers the account methods on node.
func NewRPCRouter(
	node rpc.Node,
	provider account.Provider,
	conf RPCRouterConfig,
	metrics *Metrics,
	limiter *UnlockLimiter,
	auditLog AuditRecorder,
	logger log.Logger,
) *RPCRouter {
	r := &RPCRouter{
		Node:          node,
		Provider:      provider,
		Config:        conf,
		Metrics:       metrics,
		UnlockLimiter: limiter,
		AuditLog:      auditLog,
		validate:      getValidator(),
		lg:            logger.WithName("rpc-router"),
		now:           time.Now,
	}

	node.Use(r.MetricsMiddleware)
	node.Handle(rpc.ListAccountsMethod.String(), r.HandleListAccounts)
	node.Handle(rpc.NewAccountMethod.String(), r.HandleNewAccount)
	node.Handle(rpc.SignMethod.String(), r.HandleSign)
	node.Handle(rpc.GetAuditLogMethod.String(), r.HandleGetAuditLog)

	unlockGroup := node.NewGroup("unlock")
	unlockGroup.Use(r.UnlockGuardMiddleware)
	unlockGroup.Handle(rpc.UnlockAccountMethod.String(), r.HandleUnlockAccount)

	r.refreshAccountsGauge()
	return r
}

// MetricsMiddleware counts every request by method and outcome.
func (r *RPCRouter) MetricsMiddleware(c *rpc.Context) {
	start := time.Now()
	c.Next()

	status := "success"
	if c.Failed() {
		status = "error"
	}
	r.Metrics.RPCRequests.WithLabelValues(c.Request.Req.Method, status).Inc()
	log.FromContext(c.Context).Debug("request handled", "status", status, "duration", time.Since(start))
}

// UnlockGuardMiddleware rate limits unlock attempts per address and stops
// serving unlock on a connection after repeated failures.
func (r *RPCRouter) UnlockGuardMiddleware(c *rpc.Context) {
	failures := unlockFailures(c.Storage)
	if failures >= maxUnlockFailuresPerConnection {
		r.Metrics.UnlockAttempts.WithLabelValues("blocked").Inc()
		c.Fail(rpc.Errorf("too many failed unlock attempts on this connection"), "")
		return
	}

	var target struct {
		Address string `json:"address"`
	}
	if err := c.Request.Req.Params.Translate(&target); err == nil && target.Address != "" {
		if !r.UnlockLimiter.Allow(target.Address, r.now()) {
			r.Metrics.UnlockAttempts.WithLabelValues("rate_limited").Inc()
			c.Fail(rpc.Errorf("too many unlock attempts, retry later"), "")
			return
		}
	}

	c.Next()

	if c.Failed() {
		c.Storage.Set(unlockFailuresStorageKey, failures+1)
	}
}

func unlockFailures(storage *rpc.SafeStorage) int {
	v, ok := storage.Get(unlockFailuresStorageKey)
	if !ok {
		return 0
	}
	n, _ := v.(int)
	return n
}

func (r *RPCRouter) HandleListAccounts(c *rpc.Context) {
	logger := log.FromContext(c.Context)

	addrs, err := r.Provider.Accounts()
	if err != nil {
		logger.Error("failed to list accounts", "error", err)
		c.Fail(err, "failed to list accounts")
		return
	}

	res := rpc.ListAccountsResponse{Accounts: make([]string, 0, len(addrs))}
	for _, addr := range addrs {
		res.Accounts = append(res.Accounts, addr.Hex())
	}
	r.succeed(c, rpc.ListAccountsMethod, res)
}

func (r *RPCRouter) HandleUnlockAccount(c *rpc.Context) {
	logger := log.FromContext(c.Context)

	var req rpc.UnlockAccountRequest
	if err := r.parseParams(c, &req); err != nil {
		r.Metrics.UnlockAttempts.WithLabelValues("invalid_request").Inc()
		c.Fail(err, "failed to parse parameters")
		return
	}
	addr := common.HexToAddress(req.Address)

	err := r.Provider.Unlock(addr, req.Password)
	switch {
	case err == nil:
		r.Metrics.UnlockAttempts.WithLabelValues("success").Inc()
		logger.Info("account unlocked", "address", addr.Hex())
		r.audit(c, addr, AuditActionUnlocked)
		r.succeed(c, rpc.UnlockAccountMethod, rpc.UnlockAccountResponse{Address: addr.Hex(), Unlocked: true})
	case errors.Is(err, account.ErrUnknownIdentifier):
		r.Metrics.UnlockAttempts.WithLabelValues("unknown_account").Inc()
		logger.Warn("unlock of unknown account", "address", addr.Hex())
		if r.Config.HideUnknownAccounts {
			c.Fail(rpc.Errorf(hiddenUnlockMessage), "")
			return
		}
		c.Fail(rpc.Errorf("unknown account: %s", addr.Hex()), "")
	case errors.Is(err, account.ErrInvalidPassword):
		r.Metrics.UnlockAttempts.WithLabelValues("invalid_password").Inc()
		logger.Warn("unlock rejected", "address", addr.Hex())
		r.audit(c, addr, AuditActionUnlockRejected)
		if r.Config.HideUnknownAccounts {
			c.Fail(rpc.Errorf(hiddenUnlockMessage), "")
			return
		}
		c.Fail(rpc.Errorf("invalid password"), "")
	default:
		r.Metrics.UnlockAttempts.WithLabelValues("error").Inc()
		logger.Error("failed to unlock account", "address", addr.Hex(), "error", err)
		c.Fail(err, "failed to unlock account")
	}
}

func (r *RPCRouter) HandleNewAccount(c *rpc.Context) {
	logger := log.FromContext(c.Context)

	var req rpc.NewAccountRequest
	if err := r.parseParams(c, &req); err != nil {
		c.Fail(err, "failed to parse parameters")
		return
	}

	addr, err := r.Provider.NewAccount(req.Password)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrNotSupported):
			c.Fail(rpc.Errorf("account creation is not supported"), "")
		case errors.Is(err, account.ErrEmptyPassword):
			c.Fail(rpc.Errorf("password cannot be empty"), "")
		case errors.Is(err, account.ErrPasswordTooLong):
			c.Fail(rpc.Errorf("password is longer than %d bytes", account.MaxPasswordLength), "")
		default:
			logger.Error("failed to create account", "error", err)
			c.Fail(err, "failed to create account")
		}
		return
	}

	logger.Info("account created", "address", addr.Hex())
	r.audit(c, addr, AuditActionCreated)
	r.refreshAccountsGauge()
	r.succeed(c, rpc.NewAccountMethod, rpc.NewAccountResponse{Address: addr.Hex()})

	notification, err := rpc.NewParams(rpc.AccountCreatedNotification{Address: addr.Hex()})
	if err != nil {
		logger.Error("failed to prepare account notification", "error", err)
		return
	}
	r.Node.Broadcast(rpc.AccountCreatedEvent.String(), notification)
}

func (r *RPCRouter) HandleSign(c *rpc.Context) {
	logger := log.FromContext(c.Context)

	var req rpc.SignRequest
	if err := r.parseParams(c, &req); err != nil {
		c.Fail(err, "failed to parse parameters")
		return
	}
	addr := common.HexToAddress(req.Address)
	hash := common.HexToHash(req.Hash)

	sig, err := r.Provider.Sign(addr, hash)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrUnknownIdentifier):
			if r.Config.HideUnknownAccounts {
				c.Fail(rpc.Errorf(hiddenSignMessage), "")
				return
			}
			c.Fail(rpc.Errorf("unknown account: %s", addr.Hex()), "")
		case errors.Is(err, account.ErrNotUnlocked):
			c.Fail(rpc.Errorf(hiddenSignMessage), "")
		case errors.Is(err, account.ErrNotSupported):
			c.Fail(rpc.Errorf("signing is not supported"), "")
		default:
			logger.Error("failed to sign", "address", addr.Hex(), "error", err)
			c.Fail(err, "failed to sign")
		}
		return
	}

	logger.Debug("hash signed", "address", addr.Hex())
	r.audit(c, addr, AuditActionSigned)
	r.succeed(c, rpc.SignMethod, rpc.SignResponse{Address: addr.Hex(), Signature: sig})
}

func (r *RPCRouter) HandleGetAuditLog(c *rpc.Context) {
	logger := log.FromContext(c.Context)

	if r.AuditLog == nil {
		c.Fail(rpc.Errorf("audit log is not available"), "")
		return
	}

	var req rpc.GetAuditLogRequest
	if err := r.parseParams(c, &req); err != nil {
		c.Fail(err, "failed to parse parameters")
		return
	}

	var address *string
	if req.Address != "" {
		hex := common.HexToAddress(req.Address).Hex()
		address = &hex
	}
	var action *AuditAction
	if req.Action != "" {
		a := AuditAction(req.Action)
		action = &a
	}
	options := &ListOptions{Offset: req.Offset, Limit: req.Limit}
	if req.Sort != "" {
		sort := SortType(req.Sort)
		options.Sort = &sort
	}

	logs, err := r.AuditLog.List(c.Context, address, action, options)
	if err != nil {
		logger.Error("failed to list audit log", "error", err)
		c.Fail(err, "failed to list audit log")
		return
	}

	res := rpc.GetAuditLogResponse{Entries: make([]rpc.AuditLogEntry, 0, len(logs))}
	for _, entry := range logs {
		res.Entries = append(res.Entries, rpc.AuditLogEntry{
			Address:      entry.Address,
			Action:       string(entry.Action),
			ConnectionID: entry.ConnectionID,
			CreatedAt:    entry.CreatedAt,
		})
	}
	r.succeed(c, rpc.GetAuditLogMethod, res)
}

// audit records an account event. A failure to record is logged and does
// not fail the request.
func (r *RPCRouter) audit(c *rpc.Context, addr account.Address, action AuditAction) {
	if r.AuditLog == nil {
		return
	}
	if err := r.AuditLog.Record(c.Context, addr.Hex(), action, c.ConnectionID); err != nil {
		log.FromContext(c.Context).Error("failed to record audit event", "action", action, "error", err)
	}
}

func (r *RPCRouter) parseParams(c *rpc.Context, v any) error {
	if err := c.Request.Req.Params.Translate(v); err != nil {
		return rpc.Errorf("invalid parameters: %v", err)
	}
	if err := r.validate.Struct(v); err != nil {
		return rpc.Errorf("invalid parameters: %s", validationMessage(err))
	}
	return nil
}

// validationMessage lists the failing fields without echoing their values.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "malformed request"
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(fields, ", ")
}

func (r *RPCRouter) succeed(c *rpc.Context, method rpc.Method, res any) {
	params, err := rpc.NewParams(res)
	if err != nil {
		log.FromContext(c.Context).Error("failed to encode response", "error", err)
		c.Fail(err, "failed to encode response")
		return
	}
	c.Succeed(method.String(), params)
}

func (r *RPCRouter) refreshAccountsGauge() {
	addrs, err := r.Provider.Accounts()
	if err != nil {
		r.lg.Warn("failed to count accounts", "error", err)
		return
	}
	r.Metrics.Accounts.Set(float64(len(addrs)))
}
