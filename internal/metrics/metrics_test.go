package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNew_RegistersWithGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObjectsDeleted.Inc()
	m.ZipJobFinished(3)
	m.ZipJobFinished(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ObjectsDeleted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ZipJobsFinished.WithLabelValues("3")))

	count, err := testutil.GatherAndCount(reg, "filecollector_zip_jobs_finished_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}
