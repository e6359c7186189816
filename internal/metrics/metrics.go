// Package metrics exposes Prometheus counters for deletion and archival decisions.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all collectors of the service.
type Metrics struct {
	ObjectsDeleted       prometheus.Counter
	ObjectsPreserved     prometheus.Counter
	DeleteConflicts      prometheus.Counter
	DeleteFailures       prometheus.Counter
	ArchiveJobsSubmitted prometheus.Counter
	ZipJobsFinished      *prometheus.CounterVec // filecollector_zip_jobs_finished_total{code}
	BehaviorsDropped     prometheus.Counter
}

// New registers the collectors with registry.
// If nil, uses the default Prometheus registry.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		ObjectsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "filecollector_objects_deleted_total",
			Help: "Physical objects removed because no record referenced them anymore",
		}),
		ObjectsPreserved: factory.NewCounter(prometheus.CounterOpts{
			Name: "filecollector_objects_preserved_total",
			Help: "Physical objects kept because other records still reference them",
		}),
		DeleteConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "filecollector_delete_conflicts_total",
			Help: "Deletions rejected because the same content was being deleted concurrently",
		}),
		DeleteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "filecollector_delete_failures_total",
			Help: "Keys the storage service refused to delete in a batch",
		}),
		ArchiveJobsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "filecollector_archive_jobs_submitted_total",
			Help: "Compression jobs submitted for batch downloads",
		}),
		ZipJobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "filecollector_zip_jobs_finished_total",
			Help: "Compression jobs finished by terminal code",
		}, []string{"code"}),
		BehaviorsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "filecollector_behaviors_dropped_total",
			Help: "Behavior events dropped because the buffer was full",
		}),
	}
}

// ZipJobFinished counts a terminal job code.
func (m *Metrics) ZipJobFinished(code int) {
	m.ZipJobsFinished.WithLabelValues(strconv.Itoa(code)).Inc()
}
