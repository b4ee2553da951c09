package telemetry

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// InitTracer installs a global tracer provider exporting spans to stdout and
// returns its shutdown function.
func InitTracer(serviceName string) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New()
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	slog.Info("OpenTelemetry initialized", "service", serviceName)
	return tp.Shutdown, nil
}

// NewHTTPClient returns an *http.Client whose transport records a client span
// per outbound request under the given operation name. timeout caps the whole
// exchange including the body read.
func NewHTTPClient(operation string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: traced(operation, http.DefaultTransport),
	}
}

// NewStreamingHTTPClient is NewHTTPClient for long-lived response streams.
// There is no total deadline: timeout bounds dialing, the TLS handshake and
// the wait for response headers only. Idle gaps in the body are the caller's
// to bound.
func NewStreamingHTTPClient(operation string, timeout time.Duration) *http.Client {
	return &http.Client{Transport: traced(operation, streamingTransport(timeout))}
}

func streamingTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
	}
}

func traced(operation string, base http.RoundTripper) http.RoundTripper {
	return otelhttp.NewTransport(base,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return operation + " " + r.Method
		}),
	)
}
