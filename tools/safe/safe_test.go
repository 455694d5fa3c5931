package safe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeGo(t *testing.T) {
	done := make(chan struct{})
	SafeGo(func() {
		defer close(done)
		panic("boom")
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not finish")
	}
}

func TestMustNotNil(t *testing.T) {
	var p *int
	assert.Panics(t, func() { MustNotNil(p, "p") })
	assert.Panics(t, func() { MustNotNil(nil, "nil") })
	assert.NotPanics(t, func() { MustNotNil(&struct{}{}, "ok") })
}

func TestRecover(t *testing.T) {
	err, panicked := Recover(func() error { panic("boom") })
	require.Error(t, err)
	assert.True(t, panicked)
	assert.Contains(t, err.Error(), "boom")

	err, panicked = Recover(func() error { return nil })
	assert.NoError(t, err)
	assert.False(t, panicked)
}
