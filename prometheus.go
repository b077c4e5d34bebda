package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
)

// PipelineMetrics holds the Prometheus instrumentation for the
// decoding pipeline.
type PipelineMetrics struct {
	FramesTotal    *prometheus.CounterVec
	DecodedTotal   *prometheus.CounterVec
	ParseErrors    prometheus.Counter
	DroppedFrames  prometheus.Counter
	DecodeDuration prometheus.Histogram
	CPUPercent     prometheus.Gauge
	MemoryRSS      prometheus.Gauge
}

// NewPipelineMetrics registers all metrics with the default registry.
func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{
		FramesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sdgateway_frames_total",
			Help: "Framed lines received from the device, by message type",
		}, []string{"type"}),
		DecodedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sdgateway_decoded_messages_total",
			Help: "Decoded messages emitted, by protocol id",
		}, []string{"protocol"}),
		ParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sdgateway_parse_errors_total",
			Help: "Lines dropped due to framing or field errors",
		}),
		DroppedFrames: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sdgateway_undecoded_frames_total",
			Help: "Well-formed frames no protocol matched",
		}),
		DecodeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sdgateway_decode_duration_seconds",
			Help:    "Time spent decoding one frame",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		CPUPercent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sdgateway_process_cpu_percent",
			Help: "Process CPU usage percent",
		}),
		MemoryRSS: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sdgateway_process_memory_rss_bytes",
			Help: "Process resident memory",
		}),
	}
}

// StartResourceCollector samples process CPU/memory every 15 seconds.
func (m *PipelineMetrics) StartResourceCollector(ctx context.Context) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Printf("Metrics: resource collector unavailable: %v", err)
		return
	}
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if cpu, err := proc.CPUPercent(); err == nil {
					m.CPUPercent.Set(cpu)
				}
				if mem, err := proc.MemoryInfo(); err == nil {
					m.MemoryRSS.Set(float64(mem.RSS))
				}
			}
		}
	}()
}

// StartMetricsServer serves /metrics on the configured listener.
func StartMetricsServer(ctx context.Context, config *PrometheusConfig) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: config.Listen, Handler: mux}
	go func() {
		<-ctx.Done()
		server.Close()
	}()
	go func() {
		log.Printf("Metrics: listening on %s/metrics", config.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics ERROR: %v", err)
		}
	}()
}
