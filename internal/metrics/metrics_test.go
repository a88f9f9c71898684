package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, schedulerCyclesTotal)
	require.NotNil(t, providerRequestsTotal)
	require.NotNil(t, httpRequestsTotal)
}

func TestObserveHelpers(t *testing.T) {
	Init()
	before := testutil.ToFloat64(schedulerCyclesTotal.WithLabelValues("skipped"))
	ObserveCycle("skipped")
	require.InDelta(t, before+1, testutil.ToFloat64(schedulerCyclesTotal.WithLabelValues("skipped")), 0.001)

	quotaBefore := testutil.ToFloat64(providerRequestsTotal.WithLabelValues("kakao", "quota"))
	ObserveProviderRequest("kakao", "quota")
	require.InDelta(t, quotaBefore+1, testutil.ToFloat64(providerRequestsTotal.WithLabelValues("kakao", "quota")), 0.001)

	gauge := testutil.ToFloat64(browserLeasesActive)
	IncActiveLeases()
	require.InDelta(t, gauge+1, testutil.ToFloat64(browserLeasesActive), 0.001)
	DecActiveLeases()
	require.InDelta(t, gauge, testutil.ToFloat64(browserLeasesActive), 0.001)

	ObserveStep("image", "ok", time.Second)
	ObserveFallbackAttempts("image", 2, true)
	ObserveLeaseWait(10 * time.Millisecond)
	ObserveBrowserLaunch()
	ObserveJob("done")
	ObserveContentStoreRequest("next_keyword", "ok")
}
