// Package metrics wires the core's counters and histograms into
// prometheus-compatible namespaces via docker/go-metrics, the same way the
// teacher registry exposes storage/middleware metrics.
package metrics

import "github.com/docker/go-metrics"

const (
	// NamespacePrefix is the namespace of every metric this module exports.
	NamespacePrefix = "convergence"
)

var (
	// StoreNamespace covers object store put and get counts.
	StoreNamespace = metrics.NewNamespace(NamespacePrefix, "objstore", nil)

	// CoalesceNamespace covers the coalescer's invocation count and
	// duration histogram.
	CoalesceNamespace = metrics.NewNamespace(NamespacePrefix, "coalesce", nil)

	// AuthorityNamespace covers promote and release call counts.
	AuthorityNamespace = metrics.NewNamespace(NamespacePrefix, "authority", nil)

	// RetentionNamespace covers GC sweep counts and objects deleted by kind.
	RetentionNamespace = metrics.NewNamespace(NamespacePrefix, "retention", nil)
)

func init() {
	metrics.Register(StoreNamespace)
	metrics.Register(CoalesceNamespace)
	metrics.Register(AuthorityNamespace)
	metrics.Register(RetentionNamespace)
}

var (
	// ObjectsPut counts successful Store.Put calls by kind.
	ObjectsPut = StoreNamespace.NewLabeledCounter("objects_put", "Number of objects written to the store", "kind")

	// ObjectsGet counts successful Store.Get calls by kind.
	ObjectsGet = StoreNamespace.NewLabeledCounter("objects_get", "Number of objects read from the store", "kind")

	// CoalesceInvocations counts Coalesce calls.
	CoalesceInvocations = CoalesceNamespace.NewCounter("invocations", "Number of coalesce operations run")

	// CoalesceDuration buckets wall-clock time spent in a coalesce call.
	CoalesceDuration = CoalesceNamespace.NewTimer("duration_seconds", "Time spent merging publication manifests")

	// PromotionsTotal counts successful promote() calls by target gate.
	PromotionsTotal = AuthorityNamespace.NewLabeledCounter("promotions_total", "Number of bundles promoted", "gate")

	// ReleasesTotal counts successful release() calls by channel.
	ReleasesTotal = AuthorityNamespace.NewLabeledCounter("releases_total", "Number of releases created", "channel")

	// GCSweeps counts completed retention sweeps.
	GCSweeps = RetentionNamespace.NewCounter("sweeps_total", "Number of GC mark-and-sweep passes run")

	// GCObjectsDeleted counts objects removed by the sweep phase, by kind.
	GCObjectsDeleted = RetentionNamespace.NewLabeledCounter("objects_deleted_total", "Number of objects deleted by GC", "kind")
)
