package monitoring

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremon "github.com/resqmeals/gateway/core/monitoring"
)

func TestEmptyDSNIsNop(t *testing.T) {
	m, err := NewSentryMonitor(Config{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
}

func TestInvalidDSN(t *testing.T) {
	_, err := NewSentryMonitor(Config{DSN: "::not a dsn"})
	assert.Error(t, err)
}

func TestCaptureExceptionCarriesTags(t *testing.T) {
	var mu sync.Mutex
	var events []*sentry.Event
	m, err := newSentryMonitor(Config{DSN: "https://public@example.com/1", Environment: "test"},
		func(ev *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
			return nil
		})
	require.NoError(t, err)

	m.CaptureException(errors.New("no charities"), coremon.Tags("stage", "CHARITIES_FETCHED"))
	m.CaptureException(nil, nil)
	m.Flush(time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, "CHARITIES_FETCHED", events[0].Tags["stage"])
	assert.Equal(t, "test", events[0].Environment)
}
