package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-replenish/internal/config"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(config.TelemetryConfig{TracingEnabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	ctx, span := StartSpan(context.Background(), "test")
	assert.NotNil(t, ctx)
	EndSpan(span, errors.New("boom"))
}
