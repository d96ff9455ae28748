// SPDX-License-Identifier: AGPL-3.0-only

package manager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics mirrors the teacher's per-constructor promauto.With(reg)
// pattern (see pkg/compactor.newSyncerMetrics).
type metrics struct {
	currentVersionId     prometheus.Gauge
	maxCommittedEpoch    prometheus.Gauge
	safeEpoch            prometheus.Gauge
	checkpointVersionId  prometheus.Gauge
	pinnedVersions       prometheus.Gauge
	pinnedSnapshots      prometheus.Gauge
	tasksAssigned        prometheus.Counter
	tasksSucceeded       prometheus.Counter
	tasksCanceled        *prometheus.CounterVec
	heartbeatExpirations prometheus.Counter
	commitEpochTotal     prometheus.Counter
	commitEpochFailed    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		currentVersionId: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "hummock_manager_current_version_id",
			Help: "Id of the current HummockVersion.",
		}),
		maxCommittedEpoch: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "hummock_manager_max_committed_epoch",
			Help: "Highest epoch committed into the current version.",
		}),
		safeEpoch: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "hummock_manager_safe_epoch",
			Help: "Lowest epoch guaranteed retained across all groups.",
		}),
		checkpointVersionId: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "hummock_manager_checkpoint_version_id",
			Help: "Id of the oldest materialized (checkpointed) version.",
		}),
		pinnedVersions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "hummock_manager_pinned_versions",
			Help: "Number of distinct contexts currently pinning a version.",
		}),
		pinnedSnapshots: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "hummock_manager_pinned_snapshots",
			Help: "Number of distinct contexts currently pinning a snapshot.",
		}),
		tasksAssigned: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hummock_manager_compaction_tasks_assigned_total",
			Help: "Total number of compaction tasks assigned to a compactor.",
		}),
		tasksSucceeded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hummock_manager_compaction_tasks_succeeded_total",
			Help: "Total number of compaction tasks reported successful.",
		}),
		tasksCanceled: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "hummock_manager_compaction_tasks_canceled_total",
			Help: "Total number of compaction tasks canceled, by reason.",
		}, []string{"reason"}),
		heartbeatExpirations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hummock_manager_heartbeat_expirations_total",
			Help: "Total number of compaction task assignments expired by the heartbeat checker.",
		}),
		commitEpochTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hummock_manager_commit_epoch_total",
			Help: "Total number of commit_epoch calls.",
		}),
		commitEpochFailed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hummock_manager_commit_epoch_failed_total",
			Help: "Total number of commit_epoch calls that failed.",
		}),
	}
}
