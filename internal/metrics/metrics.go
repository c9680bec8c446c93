package metrics

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelglobal "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const meterName = "etraxis"

// InitMeterProvider installs a global MeterProvider backed by a Prometheus
// exporter and returns the handler serving /metrics.
func InitMeterProvider(ctx context.Context, serviceName string) (http.Handler, error) {
	if serviceName == "" {
		serviceName = "etraxis"
	}
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otelglobal.SetMeterProvider(provider)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}), nil
}

func Meter() metric.Meter {
	return otelglobal.Meter(meterName)
}

var (
	AttrAction  = attribute.Key("action")
	AttrOutcome = attribute.Key("outcome")
	AttrOp      = attribute.Key("operation")
)

type instruments struct {
	decisions metric.Int64Counter
	mutations metric.Int64Counter
}

var (
	initOnce sync.Once
	counters atomic.Pointer[instruments]
)

// Init creates the instruments. Safe to call repeatedly; call after
// InitMeterProvider.
func Init(ctx context.Context) error {
	var err error
	initOnce.Do(func() {
		m := Meter()
		var inst instruments
		inst.decisions, err = m.Int64Counter("etraxis_decisions_total", metric.WithDescription("Gate evaluations by action and outcome"))
		if err != nil {
			return
		}
		inst.mutations, err = m.Int64Counter("etraxis_mutations_total", metric.WithDescription("Committed or rejected schema and issue mutations"))
		if err != nil {
			return
		}
		counters.Store(&inst)
	})
	return err
}

// RecordDecision counts one gate evaluation.
func RecordDecision(ctx context.Context, action string, granted bool) {
	inst := counters.Load()
	if inst == nil {
		return
	}
	outcome := "denied"
	if granted {
		outcome = "granted"
	}
	inst.decisions.Add(ctx, 1, metric.WithAttributes(AttrAction.String(action), AttrOutcome.String(outcome)))
}

// RecordMutation counts one mutation attempt. A nil err counts as committed.
func RecordMutation(ctx context.Context, op string, err error) {
	inst := counters.Load()
	if inst == nil {
		return
	}
	outcome := "committed"
	if err != nil {
		outcome = "failed"
	}
	inst.mutations.Add(ctx, 1, metric.WithAttributes(AttrOp.String(op), AttrOutcome.String(outcome)))
}

var (
	setupOnce    sync.Once
	setupHandler http.Handler
	setupErr     error
)

// Setup runs InitMeterProvider and Init once per process and returns the
// shared /metrics handler.
func Setup(ctx context.Context) (http.Handler, error) {
	setupOnce.Do(func() {
		setupHandler, setupErr = InitMeterProvider(ctx, "etraxis")
		if setupErr != nil {
			return
		}
		setupErr = Init(ctx)
	})
	return setupHandler, setupErr
}
