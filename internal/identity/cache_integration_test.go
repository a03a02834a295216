//go:build integration

package identity

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidtrack/pkg/testutil/containers"
)

func TestCachedResolverAgainstRedis(t *testing.T) {
	ctx := context.Background()
	rc := containers.GetManager().Redis(t)
	require.NoError(t, rc.FlushAll(ctx))

	lookup := &mapLookup{records: map[string]card{"R-0042": {Number: "R-0042"}}}
	cached := NewCachedLookup[card](lookup, rc.Client, time.Minute, "ration:", NewMetrics(prometheus.NewRegistry()), nil)
	resolver := NewResolver[card](cached, WithTarget("ration card"), WithPrefixes("R-"))

	rec, res, err := resolver.Resolve(ctx, "r0042")
	require.NoError(t, err)
	assert.Equal(t, "R-0042", rec.Number)
	assert.Equal(t, VariantPrefix, res.Variant)

	ttl, err := rc.Client.TTL(ctx, "ration:R-0042").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	calls := len(lookup.calls)
	_, _, err = resolver.Resolve(ctx, "R-0042")
	require.NoError(t, err)
	assert.Len(t, lookup.calls, calls, "second resolve is served from redis")

	require.NoError(t, cached.Invalidate(ctx, "R-0042"))
	exists, err := rc.Client.Exists(ctx, "ration:R-0042").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}
