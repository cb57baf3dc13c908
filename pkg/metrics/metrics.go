// Package metrics holds the Prometheus instruments of the balancer. All
// collectors are registered with the default registry, so serving
// promhttp.Handler() is enough to expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balancer_polls_total",
			Help: "Polling passes by outcome (online, offline, disabled, error).",
		}, []string{"result"})

	PollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "balancer_poll_duration_seconds",
			Help:    "Duration of one server polling pass.",
			Buckets: prometheus.DefBuckets,
		})

	ServersOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "balancer_servers_online",
			Help: "Servers that answered the last refresh cycle.",
		})

	MeetingsForceEnded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "balancer_meetings_force_ended_total",
			Help: "Meetings ended because their server became unavailable.",
		})

	MeetingsEnded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "balancer_meetings_ended_total",
			Help: "Meetings ended because they vanished from their server's live list.",
		})

	AttendanceSessionsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "balancer_attendance_sessions_opened_total",
			Help: "Attendance sessions opened by reconciliation.",
		})

	AttendanceSessionsClosed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "balancer_attendance_sessions_closed_total",
			Help: "Attendance sessions closed by reconciliation.",
		})

	StatsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balancer_stats_recorded_total",
			Help: "Statistics rows appended by category.",
		}, []string{"category"})

	RowsPurged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balancer_rows_purged_total",
			Help: "Rows removed by the retention sweep by category.",
		}, []string{"category"})
)

func init() {
	prometheus.MustRegister(
		PollsTotal,
		PollDuration,
		ServersOnline,
		MeetingsForceEnded,
		MeetingsEnded,
		AttendanceSessionsOpened,
		AttendanceSessionsClosed,
		StatsRecorded,
		RowsPurged,
	)
}
