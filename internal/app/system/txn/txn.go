// Package txn runs multi-step writes inside a MongoDB transaction when the
// deployment supports one, and falls back to running them directly on a
// standalone server.
package txn

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Server error codes returned when transactions are unavailable.
const (
	codeIllegalOperation           = 20
	codeNoReplicationEnabled       = 51
	codeOperationNotSupportedInTxn = 263
)

// IsNotSupported reports whether err means the server cannot run
// multi-document transactions (standalone mongod, unsupported topology).
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case codeIllegalOperation, codeNoReplicationEnabled, codeOperationNotSupportedInTxn:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	has := func(s string) bool { return strings.Contains(msg, s) }

	switch {
	case has("illegal operation"):
		return true
	case has("transaction") && (has("replica set") || has("session")):
		return true
	case has("session") && has("not supported"):
		return true
	}
	return false
}

// Runner executes a function in a transaction. Once the server reports that
// transactions are unsupported the Runner stops trying and calls fn directly.
type Runner struct {
	client      *mongo.Client
	log         *zap.Logger
	unsupported atomic.Bool
}

// New returns a Runner for client. A nil client yields a Runner that always
// runs fn directly.
func New(client *mongo.Client, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{client: client, log: logger}
}

// Run calls fn inside a transaction when possible. fn may be invoked more
// than once: the driver retries transient transaction errors, and a first
// attempt rejected as unsupported is repeated without a transaction.
func (r *Runner) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.client == nil || r.unsupported.Load() {
		return fn(ctx)
	}

	sess, err := r.client.StartSession()
	if err != nil {
		if IsNotSupported(err) {
			r.disable(err)
			return fn(ctx)
		}
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		r.disable(err)
		return fn(ctx)
	}
	return err
}

// Transactional reports whether the Runner still attempts transactions.
func (r *Runner) Transactional() bool {
	return r != nil && r.client != nil && !r.unsupported.Load()
}

func (r *Runner) disable(err error) {
	if r.unsupported.CompareAndSwap(false, true) {
		r.log.Info("transactions not supported by this deployment; running writes without them",
			zap.Error(err))
	}
}

// InTransaction reports whether ctx belongs to a Runner transaction.
// Compensating writes are skipped there: an aborted transaction rolls back
// on its own.
func InTransaction(ctx context.Context) bool {
	return mongo.SessionFromContext(ctx) != nil
}
