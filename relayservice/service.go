// Package relayservice assembles the FCM relay: an authenticated HTTP API
// and a Pub/Sub ingestion pipeline in front of one FCM client.
package relayservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-fcm-relay/internal/api"
	"github.com/tinywideclouds/go-fcm-relay/internal/metrics"
	"github.com/tinywideclouds/go-fcm-relay/internal/pipeline"
	"github.com/tinywideclouds/go-fcm-relay/pkg/dispatch"
	"github.com/tinywideclouds/go-fcm-relay/relayservice/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[dispatch.Request]
	logger          *slog.Logger
}

// New assembles the service. Metrics are registered on a private registry
// served at /metrics.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	sender dispatch.Sender,
	topics dispatch.TopicManager,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Metrics
	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry)

	// 3. Pipeline
	processor := pipeline.NewProcessor(sender, recorder, logger.With("component", "Processor"))
	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.RequestTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. API
	relayAPI := api.NewRelayAPI(sender, topics, recorder, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}

	handle("POST /api/v1/messages:send", relayAPI.Send)
	handle("POST /api/v1/messages:sendEach", relayAPI.SendEach)
	handle("POST /api/v1/messages:sendMulticast", relayAPI.SendMulticast)
	handle("POST /api/v1/topics/{topicAction}", relayAPI.ManageTopic)

	// CORS preflight for the API namespace
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
