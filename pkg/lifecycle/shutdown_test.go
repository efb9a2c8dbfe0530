package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type closer struct{ closed bool }

func (c *closer) Close() error {
	c.closed = true
	return nil
}

func TestShutdownRunsStepsInOrder(t *testing.T) {
	m := NewShutdownManager(ShutdownConfig{}, zaptest.NewLogger(t))

	var order []string
	m.Register("http", func(context.Context) error {
		order = append(order, "http")
		return nil
	})
	m.Register("runner", func(context.Context) error {
		order = append(order, "runner")
		return errors.New("drain timeout")
	})
	c := &closer{}
	m.RegisterCloser("tracker", c)

	err := m.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runner: drain timeout")
	assert.Equal(t, []string{"http", "runner"}, order)
	assert.True(t, c.closed)
	assert.False(t, m.IsHealthy())

	select {
	case <-m.Done():
	default:
		t.Fatal("Done not closed")
	}

	// Second call is a no-op.
	assert.NoError(t, m.Shutdown(context.Background()))
	assert.Len(t, order, 2)
}

func TestMiddlewareRejectsWhileDraining(t *testing.T) {
	m := NewShutdownManager(DefaultShutdownConfig(), nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	require.NoError(t, m.Shutdown(context.Background()))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
