package session

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshScanLive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "parley",
		Subsystem: "session",
		Name:      "refresh_scan_live_records",
		Help:      "Live (non-revoked, non-expired) refresh records seen by the last FindMatching scan.",
	})

	refreshScanComparisons = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "session",
		Name:      "refresh_scan_comparisons_total",
		Help:      "Total bcrypt comparisons performed during refresh-secret lookups.",
	})
)

// refreshScanWarnAbove is the live-set size past which FindMatching's
// linear bcrypt scan becomes a latency problem worth an operator's
// attention. Warnings are throttled to one per minute.
const refreshScanWarnAbove = 500

var lastScanWarn atomic.Int64

func observeRefreshScan(liveRecords, compared int) {
	refreshScanLive.Set(float64(liveRecords))
	refreshScanComparisons.Add(float64(compared))

	if liveRecords <= refreshScanWarnAbove {
		return
	}
	now := time.Now().Unix()
	last := lastScanWarn.Load()
	if now-last < 60 || !lastScanWarn.CompareAndSwap(last, now) {
		return
	}
	slog.Warn("session.refresh_scan.large", "live_records", liveRecords, "threshold", refreshScanWarnAbove)
}
