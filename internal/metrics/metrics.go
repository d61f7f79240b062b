// Package metrics exposes Prometheus metrics for the lead pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the pipeline components report to.
type Recorder interface {
	RecordMessage()
	RecordLeadCaptured()
	RecordChallenge(provider string, ok bool)
	RecordVerdict(outcome string)
	RecordOracleLatency(d time.Duration)
	RecordSheetSync(ok bool)
	RecordPersistenceFailure(op string)
	SetActiveSessions(n int)
	SetPendingVerifications(n int)
}

// Verdict outcomes.
const (
	OutcomeVerified = "verified"
	OutcomeBounced  = "bounced"
	OutcomeDegraded = "degraded"
)

type Collector struct {
	messages     prometheus.Counter
	leads        prometheus.Counter
	challenges   *prometheus.CounterVec
	verdicts     *prometheus.CounterVec
	oracleTime   prometheus.Histogram
	sheetSync    *prometheus.CounterVec
	persistFail  *prometheus.CounterVec
	sessions     prometheus.Gauge
	pendingCheck prometheus.Gauge
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadcheck_messages_total",
			Help: "Inbound messages routed to a session",
		}),
		leads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadcheck_leads_captured_total",
			Help: "Lead records appended as Pending",
		}),
		challenges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadcheck_challenges_total",
			Help: "Challenge emails by provider and result",
		}, []string{"provider", "result"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadcheck_verdicts_total",
			Help: "Verification outcomes (verified, bounced, degraded)",
		}, []string{"outcome"}),
		oracleTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadcheck_oracle_duration_seconds",
			Help:    "Time spent checking the mailbox for bounces",
			Buckets: prometheus.DefBuckets,
		}),
		sheetSync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadcheck_sheet_sync_total",
			Help: "Remote sheet pushes by result",
		}, []string{"result"}),
		persistFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadcheck_persistence_failures_total",
			Help: "Local store failures by operation",
		}, []string{"op"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "leadcheck_active_sessions",
			Help: "Conversations currently held in memory",
		}),
		pendingCheck: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "leadcheck_pending_verifications",
			Help: "Scheduled bounce checks not yet finished",
		}),
	}

	reg.MustRegister(
		c.messages,
		c.leads,
		c.challenges,
		c.verdicts,
		c.oracleTime,
		c.sheetSync,
		c.persistFail,
		c.sessions,
		c.pendingCheck,
	)

	return c
}

func (c *Collector) RecordMessage() { c.messages.Inc() }

func (c *Collector) RecordLeadCaptured() { c.leads.Inc() }

func (c *Collector) RecordChallenge(provider string, ok bool) {
	c.challenges.WithLabelValues(provider, result(ok)).Inc()
}

func (c *Collector) RecordVerdict(outcome string) { c.verdicts.WithLabelValues(outcome).Inc() }

func (c *Collector) RecordOracleLatency(d time.Duration) { c.oracleTime.Observe(d.Seconds()) }

func (c *Collector) RecordSheetSync(ok bool) { c.sheetSync.WithLabelValues(result(ok)).Inc() }

func (c *Collector) RecordPersistenceFailure(op string) { c.persistFail.WithLabelValues(op).Inc() }

func (c *Collector) SetActiveSessions(n int) { c.sessions.Set(float64(n)) }

func (c *Collector) SetPendingVerifications(n int) { c.pendingCheck.Set(float64(n)) }

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordMessage() {}
func (Nop) RecordLeadCaptured() {}
func (Nop) RecordChallenge(string, bool) {}
func (Nop) RecordVerdict(string) {}
func (Nop) RecordOracleLatency(time.Duration) {}
func (Nop) RecordSheetSync(bool) {}
func (Nop) RecordPersistenceFailure(string) {}
func (Nop) SetActiveSessions(int) {}
func (Nop) SetPendingVerifications(int) {}

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
