// Observability middleware and HTTP server for metrics and profiling
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nainya/drafter/internal/logger"
	"github.com/nainya/drafter/internal/metrics"
)

// RequestIDHeader carries the request id in gRPC metadata
const RequestIDHeader = "x-request-id"

type requestIDKey struct{}

// RequestID returns the id assigned by UnaryInterceptor, if any
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// UnaryInterceptor assigns a request id, joins the caller's trace, and
// records metrics and a log line for every call.
func UnaryInterceptor(m *metrics.Metrics, log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		done := m.TrackInFlight()
		defer done()

		md, _ := metadata.FromIncomingContext(ctx)
		ctx = otel.GetTextMapPropagator().Extract(ctx, metadataCarrier(md))

		requestID := ""
		if ids := md.Get(RequestIDHeader); len(ids) > 0 && ids[0] != "" {
			requestID = ids[0]
		} else {
			requestID = uuid.NewString()
		}
		ctx = context.WithValue(ctx, requestIDKey{}, requestID)
		grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, requestID))

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		m.RecordRPCRequest(info.FullMethod, status.Code(err).String(), duration)
		log.LogRPCRequest(info.FullMethod, requestID, duration, err)

		return resp, err
	}
}

// metadataCarrier adapts gRPC metadata to a propagation.TextMapCarrier
type metadataCarrier metadata.MD

func (c metadataCarrier) Get(key string) string {
	if v := metadata.MD(c).Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c metadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// ObservabilityServer provides HTTP endpoints for metrics and profiling
type ObservabilityServer struct {
	server *http.Server
	log    *logger.Logger
}

// NewObservabilityServer creates a new HTTP server for observability. ready
// is polled by /ready; a nil ready always reports ready.
func NewObservabilityServer(port int, gatherer prometheus.Gatherer, ready func() error, log *logger.Logger) *ObservabilityServer {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      NewObservabilityHandler(gatherer, ready),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &ObservabilityServer{
		server: server,
		log:    log,
	}
}

// NewObservabilityHandler builds the /metrics, /health, /ready and pprof mux
func NewObservabilityHandler(gatherer prometheus.Gatherer, ready func() error) http.Handler {
	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"drafter"}`))
	})

	// Readiness check endpoint
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ready != nil {
			if err := ready(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, `{"status":"not_ready","error":%q}`, err.Error())
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	// pprof endpoints for profiling
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return mux
}

// Start starts the observability HTTP server
func (o *ObservabilityServer) Start() error {
	lis, err := net.Listen("tcp", o.server.Addr)
	if err != nil {
		return fmt.Errorf("observability server listen: %w", err)
	}
	return o.Serve(lis)
}

// Serve accepts connections on lis until Shutdown
func (o *ObservabilityServer) Serve(lis net.Listener) error {
	addr := lis.Addr().String()
	o.log.Info("Starting observability server").
		Str("metrics", fmt.Sprintf("http://%s/metrics", addr)).
		Str("health", fmt.Sprintf("http://%s/health", addr)).
		Str("pprof", fmt.Sprintf("http://%s/debug/pprof/", addr)).
		Send()

	if err := o.server.Serve(lis); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("observability server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the observability server
func (o *ObservabilityServer) Shutdown(ctx context.Context) error {
	o.log.Info("Shutting down observability server").Send()
	return o.server.Shutdown(ctx)
}
