package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserver(t *testing.T) {
	o := NewObserver()

	o.Hit("img")
	o.Hit("img")
	o.Miss("img")
	o.Miss("features")
	o.Observe("img", 0.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(o.CacheHits.WithLabelValues("img")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.CacheMisses.WithLabelValues("img")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.CacheMisses.WithLabelValues("features")))
	assert.Equal(t, 0.0, testutil.ToFloat64(o.CacheHits.WithLabelValues("features")))
}

func TestObserver_Gather(t *testing.T) {
	o := NewObserver()

	o.Hit("img")
	o.Hit("img")
	o.Miss("features")
	o.Observe("img", 0.5)
	o.Observe("img", 1.5)

	counts, err := o.Gather()
	assert.NoError(t, err)
	assert.Equal(t, 2.0, counts["galaxy_cache_hits_img"])
	assert.Equal(t, 1.0, counts["galaxy_cache_misses_features"])
	assert.Equal(t, 2.0, counts["galaxy_transform_duration_seconds_img"])

	o.Report()
}
