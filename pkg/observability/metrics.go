package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Site lifecycle metrics
	SiteOperationsTotal   *prometheus.CounterVec
	SiteOperationDuration *prometheus.HistogramVec

	// Membership metrics
	MembershipChangesTotal    *prometheus.CounterVec
	RoleResolutionsTotal      prometheus.Counter
	RoleResolutionDuration    prometheus.Histogram
	LastManagerRejectionsTotal prometheus.Counter

	// Name cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Permission cleaner metrics
	CleanerNodesVisitedTotal   prometheus.Counter
	CleanerEntriesRemovedTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		SiteOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitekit_site_operations_total",
				Help: "Total number of site lifecycle operations",
			},
			[]string{"operation", "status"},
		),
		SiteOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitekit_site_operation_duration_seconds",
				Help:    "Site operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		MembershipChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitekit_membership_changes_total",
				Help: "Total number of membership mutations",
			},
			[]string{"operation", "status"},
		),
		RoleResolutionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sitekit_role_resolutions_total",
				Help: "Total number of effective-role resolutions",
			},
		),
		RoleResolutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sitekit_role_resolution_duration_seconds",
				Help:    "Effective-role resolution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		LastManagerRejectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sitekit_last_manager_rejections_total",
				Help: "Total number of mutations rejected by the last-manager guard",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sitekit_name_cache_hits_total",
				Help: "Total number of site name cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sitekit_name_cache_misses_total",
				Help: "Total number of site name cache misses",
			},
		),
		CleanerNodesVisitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sitekit_cleaner_nodes_visited_total",
				Help: "Total number of nodes visited by the permission cleaner",
			},
		),
		CleanerEntriesRemovedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sitekit_cleaner_entries_removed_total",
				Help: "Total number of stale permission entries removed by the cleaner",
			},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.SiteOperationsTotal,
			m.SiteOperationDuration,
			m.MembershipChangesTotal,
			m.RoleResolutionsTotal,
			m.RoleResolutionDuration,
			m.LastManagerRejectionsTotal,
			m.CacheHitsTotal,
			m.CacheMissesTotal,
			m.CleanerNodesVisitedTotal,
			m.CleanerEntriesRemovedTotal,
		)
	}

	return m
}

// NewNopMetrics creates unregistered metrics. The default for library
// consumers that do not configure a registry.
func NewNopMetrics() *Metrics {
	return NewMetrics(nil)
}
