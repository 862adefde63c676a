// Package metrics exposes intent lifecycle counters on a private registry.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"near-intents/pkg/intent"
)

// Registry holds the collectors. A nil *Registry is valid and records nothing.
type Registry struct {
	registry         *prometheus.Registry
	quotesTotal      *prometheus.CounterVec
	submissionsTotal *prometheus.CounterVec
	settlementsTotal *prometheus.CounterVec
	statusPollsTotal *prometheus.CounterVec
	activeTrackers   prometheus.Gauge
}

func New() *Registry {
	quotes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "near_intents_quotes_total",
		Help: "Quotes received by the background quoter",
	}, []string{"result"})

	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "near_intents_submissions_total",
		Help: "Submission attempts by outcome",
	}, []string{"result"})

	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "near_intents_settlements_total",
		Help: "Trackers that reached a final or error state",
	}, []string{"outcome"})

	polls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "near_intents_status_polls_total",
		Help: "Status polls issued by settlement trackers",
	}, []string{"result"})

	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "near_intents_active_trackers",
		Help: "Settlement trackers currently running",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(quotes, submissions, settlements, polls, active)

	return &Registry{
		registry:         r,
		quotesTotal:      quotes,
		submissionsTotal: submissions,
		settlementsTotal: settlements,
		statusPollsTotal: polls,
		activeTrackers:   active,
	}
}

func (m *Registry) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ObserveQuote counts a quote by "ok" or its error code.
func (m *Registry) ObserveQuote(res intent.QuoteResult) {
	if m == nil {
		return
	}
	m.quotesTotal.WithLabelValues(resultLabel(res.IsOk(), res.Error())).Inc()
}

// ObserveSubmission counts a finished submit attempt. A nil err is "ok".
func (m *Registry) ObserveSubmission(err error) {
	if m == nil {
		return
	}
	if err == nil {
		m.submissionsTotal.WithLabelValues("ok").Inc()
		return
	}
	m.submissionsTotal.WithLabelValues(string(intent.CodeOf(err))).Inc()
}

func (m *Registry) ObserveSettlement(outcome string) {
	if m == nil {
		return
	}
	m.settlementsTotal.WithLabelValues(outcome).Inc()
}

func (m *Registry) ObserveStatusPoll(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.statusPollsTotal.WithLabelValues("error").Inc()
		return
	}
	m.statusPollsTotal.WithLabelValues("ok").Inc()
}

func (m *Registry) TrackerStarted() {
	if m == nil {
		return
	}
	m.activeTrackers.Inc()
}

func (m *Registry) TrackerStopped() {
	if m == nil {
		return
	}
	m.activeTrackers.Dec()
}

func resultLabel(ok bool, err *intent.Error) string {
	if ok {
		return "ok"
	}
	if err != nil {
		return string(err.Code())
	}
	return "none"
}
