package safe

import (
	"fmt"
	"reflect"

	"PMarket/logger"
	"PMarket/tools/errs"

	"go.uber.org/zap"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required dependencies during construction.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// SafeGo starts a new goroutine that recovers from panic,
// so that panics don't crash the entire program.
func SafeGo(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("[SafeGo] panic recovered", zap.Any("panic", r), zap.Stack("stack"))
			}
		}()
		f()
	}()
}

// Recover runs f and converts a panic into an error carrying the internal
// error code, reporting whether f panicked.
func Recover(f func() error) (err error, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.ErrPanic(r)
			panicked = true
		}
	}()
	return f(), false
}
