package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"PMarket/tools/errs"
	"PMarket/tools/specialerror"
)

var errHandlersOnce sync.Once

// registerErrHandlers maps driver failures that reach a handler unwrapped.
func registerErrHandlers() {
	errHandlersOnce.Do(func() {
		_ = specialerror.AddErrHandler(func(err error) (errs.CodeError, bool) {
			switch {
			case errors.Is(err, mongo.ErrNoDocuments), errors.Is(err, redis.Nil):
				return errs.ErrRecordNotFound, true
			case errors.Is(err, context.DeadlineExceeded),
				errors.Is(err, mongo.ErrClientDisconnected),
				mongo.IsTimeout(err), mongo.IsNetworkError(err):
				return errs.ErrStoreUnavailable, true
			}
			return errs.CodeError{}, false
		})
	})
}
