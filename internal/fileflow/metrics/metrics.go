// Package metrics exports fileflow ingestion metrics to Prometheus.
package metrics

import (
	"fmt"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
)

// Observer records ingestion metrics. A nil Observer is a no-op, so
// components can run with metrics disabled.
type Observer struct {
	operationDuration *promclient.HistogramVec
	operationErrors   *promclient.CounterVec
	uploadedBytes     promclient.Counter
	pipelineFallbacks promclient.Counter
	sweepRemoved      promclient.Counter
}

// NewObserver registers the ingest/pipeline/sweep metrics.
func NewObserver(namespace string, reg promclient.Registerer) (*Observer, error) {
	if namespace == "" {
		namespace = "fileflow"
	}
	if reg == nil {
		reg = promclient.DefaultRegisterer
	}

	observer := &Observer{
		operationDuration: promclient.NewHistogramVec(promclient.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency for ingestion operations.",
			Buckets:   promclient.DefBuckets,
		}, []string{"operation"}),
		operationErrors: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Count of failed ingestion operations.",
		}, []string{"operation"}),
		uploadedBytes: promclient.NewCounter(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Cumulative payload size successfully uploaded to storage.",
		}),
		pipelineFallbacks: promclient.NewCounter(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_fallbacks_total",
			Help:      "Uploads stored unprocessed after a pipeline failure.",
		}),
		sweepRemoved: promclient.NewCounter(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_removed_files_total",
			Help:      "Expired temporary files removed by the background sweep.",
		}),
	}

	if err := registerHistogramVec(reg, &observer.operationDuration); err != nil {
		return nil, err
	}
	if err := registerCounterVec(reg, &observer.operationErrors); err != nil {
		return nil, err
	}
	for _, counter := range []*promclient.Counter{&observer.uploadedBytes, &observer.pipelineFallbacks, &observer.sweepRemoved} {
		if err := registerCounter(reg, counter); err != nil {
			return nil, err
		}
	}
	return observer, nil
}

func registerHistogramVec(reg promclient.Registerer, vec **promclient.HistogramVec) error {
	if err := reg.Register(*vec); err != nil {
		if are, ok := err.(promclient.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*promclient.HistogramVec); ok {
				*vec = existing
				return nil
			}
		}
		return fmt.Errorf("register histogram: %w", err)
	}
	return nil
}

func registerCounterVec(reg promclient.Registerer, vec **promclient.CounterVec) error {
	if err := reg.Register(*vec); err != nil {
		if are, ok := err.(promclient.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*promclient.CounterVec); ok {
				*vec = existing
				return nil
			}
		}
		return fmt.Errorf("register counter vec: %w", err)
	}
	return nil
}

func registerCounter(reg promclient.Registerer, counter *promclient.Counter) error {
	if err := reg.Register(*counter); err != nil {
		if are, ok := err.(promclient.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(promclient.Counter); ok {
				*counter = existing
				return nil
			}
		}
		return fmt.Errorf("register counter: %w", err)
	}
	return nil
}

// RecordIngest tracks one end-to-end ingest.
func (o *Observer) RecordIngest(duration time.Duration, sizeBytes int64, err error) {
	if o == nil {
		return
	}
	o.operationDuration.WithLabelValues("ingest").Observe(duration.Seconds())
	if err != nil {
		o.operationErrors.WithLabelValues("ingest").Inc()
		return
	}
	o.uploadedBytes.Add(float64(sizeBytes))
}

// RecordPipelineFallback counts an upload stored unprocessed.
func (o *Observer) RecordPipelineFallback() {
	if o == nil {
		return
	}
	o.pipelineFallbacks.Inc()
}

// RecordSweep counts files removed by an expiry sweep.
func (o *Observer) RecordSweep(removed int) {
	if o == nil || removed <= 0 {
		return
	}
	o.sweepRemoved.Add(float64(removed))
}
