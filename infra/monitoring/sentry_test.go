package monitoring

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yatrik/scheduler/config"
	coremon "github.com/yatrik/scheduler/core/monitoring"
)

func TestEmptyDSNDisablesReporting(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
}

func TestInvalidDSN(t *testing.T) {
	_, err := NewSentryMonitor(config.SentryConfig{DSN: "not a dsn"})
	assert.Error(t, err)
}

func TestDropCancellation(t *testing.T) {
	ev := &sentry.Event{}
	cancelled := fmt.Errorf("write trip: %w", context.Canceled)
	assert.Nil(t, dropCancellation(ev, &sentry.EventHint{OriginalException: cancelled}))
	assert.Same(t, ev, dropCancellation(ev, &sentry.EventHint{OriginalException: errors.New("boom")}))
	assert.Same(t, ev, dropCancellation(ev, nil))
}
