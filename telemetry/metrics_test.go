package telemetry

import (
	"context"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	first := OAuthFlows
	Init()
	assert.Same(t, first, OAuthFlows)
	require.NotNil(t, SweepDuration)
}

func TestRecordHelpers(t *testing.T) {
	Init()

	before := promtest.ToFloat64(OAuthFlows.WithLabelValues("twitch", "linked"))
	RecordOAuthFlow("twitch", "linked")
	assert.Equal(t, before+1, promtest.ToFloat64(OAuthFlows.WithLabelValues("twitch", "linked")))

	before = promtest.ToFloat64(TokenValidations.WithLabelValues("discord", "invalid"))
	RecordTokenValidation("discord", "invalid")
	RecordTokenValidation("discord", "invalid")
	assert.Equal(t, before+2, promtest.ToFloat64(TokenValidations.WithLabelValues("discord", "invalid")))

	before = promtest.ToFloat64(StatesPurged)
	AddStatesPurged(0)
	AddStatesPurged(3)
	assert.Equal(t, before+3, promtest.ToFloat64(StatesPurged))

	ObserveSweep(2 * time.Second)
	RecordSweepSkipped()
	RecordTokenRefresh("twitch", "refreshed")
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", GetCorrelation(ctx))
	ctx = WithCorrelation(ctx, "abc-123")
	assert.Equal(t, "abc-123", GetCorrelation(ctx))
	assert.NotNil(t, LoggerWithCorr(ctx))
}
