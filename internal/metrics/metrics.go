package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mcwarden"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serverStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "starts_total",
			Help:      "Number of successful server process launches.",
		},
	)
	serverStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "stops_total",
			Help:      "Number of server stops by outcome (closed_nicely, terminated_forcefully).",
		}, []string{"outcome"},
	)
	serverMemory = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "memory_rss_bytes",
			Help:      "Resident memory of the server process at the last sample.",
		},
	)
	probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Status probes by calling loop and result (reachable, unreachable).",
		}, []string{"loop", "result"},
	)
	playersOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "players_online",
			Help:      "Active sessions reported by the last successful probe.",
		},
	)
	serviceActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_active",
			Help:      "1 when the server is believed to be answering probes.",
		},
	)
	watchdogAlerts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchdog_alerts_total",
			Help:      "Number of watchdog alerts raised.",
		},
	)
	idleShutdowns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idle_shutdowns_total",
			Help:      "Number of automatic shutdowns caused by an empty server.",
		},
	)
	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Chat commands handled by verb and result.",
		}, []string{"verb", "result"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serverStarts, serverStops, serverMemory, probes, playersOnline, serviceActive, watchdogAlerts, idleShutdowns, commands}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart() {
	if regOK.Load() {
		serverStarts.Inc()
	}
}

func IncStop(outcome string) {
	if regOK.Load() {
		serverStops.WithLabelValues(outcome).Inc()
	}
}

func SetServerMemory(rss uint64) {
	if regOK.Load() {
		serverMemory.Set(float64(rss))
	}
}

func ObserveProbe(loop string, reachable bool, players int) {
	if !regOK.Load() {
		return
	}
	result := "unreachable"
	if reachable {
		result = "reachable"
		playersOnline.Set(float64(players))
	}
	probes.WithLabelValues(loop, result).Inc()
}

func SetServiceActive(active bool) {
	if regOK.Load() {
		v := 0.0
		if active {
			v = 1
		}
		serviceActive.Set(v)
	}
}

func IncWatchdogAlert() {
	if regOK.Load() {
		watchdogAlerts.Inc()
	}
}

func IncIdleShutdown() {
	if regOK.Load() {
		idleShutdowns.Inc()
	}
}

func IncCommand(verb, result string) {
	if regOK.Load() {
		commands.WithLabelValues(verb, result).Inc()
	}
}
