// Package specialerror maps errors from drivers and libraries onto protocol codes.
package specialerror

import (
	"errors"
	"sync"

	"PMarket/tools/errs"
)

// Handler maps err to a CodeError; ok is false when it does not recognise err.
type Handler func(err error) (ce errs.CodeError, ok bool)

var (
	mu       sync.RWMutex
	handlers []Handler
)

func AddErrHandler(h Handler) error {
	if h == nil {
		return errs.New("nil handler")
	}
	mu.Lock()
	handlers = append(handlers, h)
	mu.Unlock()
	return nil
}

// Reset drops every registered handler.
func Reset() {
	mu.Lock()
	handlers = nil
	mu.Unlock()
}

// Classify returns the CodeError err carries, else the first handler's mapping.
func Classify(err error) (errs.CodeError, bool) {
	if err == nil {
		return errs.CodeError{}, false
	}
	var ce errs.CodeError
	if errors.As(err, &ce) {
		return ce, true
	}
	mu.RLock()
	hs := handlers
	mu.RUnlock()
	for _, h := range hs {
		if ce, ok := h(err); ok {
			return ce.WithDetail(err.Error()), true
		}
	}
	return errs.CodeError{}, false
}

// AsCode is errs.AsCode with the registered handlers consulted first.
func AsCode(err error) errs.CodeError {
	if ce, ok := Classify(err); ok {
		return ce
	}
	return errs.AsCode(err)
}
