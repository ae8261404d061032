// cmd/server/serve.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/SyedDaiam9101/headpose-service/internal/config"
	"github.com/SyedDaiam9101/headpose-service/internal/handler"
	"github.com/SyedDaiam9101/headpose-service/internal/inference"
	"github.com/SyedDaiam9101/headpose-service/internal/logger"
	"github.com/SyedDaiam9101/headpose-service/internal/metrics"
	"github.com/SyedDaiam9101/headpose-service/internal/middleware"
	"github.com/SyedDaiam9101/headpose-service/internal/model"
	"github.com/SyedDaiam9101/headpose-service/internal/output"
	"github.com/SyedDaiam9101/headpose-service/internal/pipeline"
)

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: cfg.LogOutput})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting", "service", serviceName,
		"port", cfg.Port, "http_port", cfg.HTTPPort,
		"headpose_model", cfg.HeadPoseModel, "face_model", cfg.FaceModel,
		"redis", cfg.Redis, "otel", cfg.OTELEnabled, "mock", cfg.UseMockInference)

	// Initialize OpenTelemetry tracer
	var tracerShutdown func(context.Context) error
	if cfg.OTELEnabled {
		tracerShutdown, err = initTracer(cfg.OTELEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracer", "error", err)
		} else {
			log.Info("tracing enabled", "endpoint", cfg.OTELEndpoint)
		}
	}

	engine, headPose, face, err := loadModels(cfg, log)
	if err != nil {
		return err
	}
	defer engine.Close()

	sinks := output.Multi{output.NewLogSink(log)}
	var store handler.LatestStore

	// Redis is optional; results still reach the caller without it
	if cfg.Redis != "" {
		redisSink, err := output.NewRedisSink(ctx, output.RedisOptions{
			Addr:    cfg.Redis,
			Channel: cfg.RedisChannel,
			TTL:     cfg.ResultTTL,
		})
		if err != nil {
			log.Warn("redis unavailable, continuing without result publishing", "addr", cfg.Redis, "error", err)
		} else {
			defer redisSink.Close()
			sinks = append(sinks, redisSink)
			store = redisSink
			log.Info("redis connected", "addr", cfg.Redis, "channel", cfg.RedisChannel)
		}
	}

	pipe, err := pipeline.New(engine, pipeline.Config{
		HeadPose:   headPose,
		Face:       face,
		MaxBatch:   cfg.MaxBatch,
		Confidence: cfg.Confidence,
		Sink:       sinks,
		Log:        log,
	})
	if err != nil {
		return err
	}
	h := handler.New(pipe, store, log)

	healthServer := health.NewServer()
	httpServer := startHTTPServer(cfg.HTTPPort, h.Router(healthServer), log)

	interceptors := []grpc.UnaryServerInterceptor{
		middleware.UnaryRequestIDInterceptor(),
		middleware.UnaryMetricsInterceptor(),
		middleware.UnaryLoggingInterceptor(log),
	}
	opts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(interceptors...)}
	if cfg.OTELEnabled {
		opts = append(opts, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	}

	grpcServer := grpc.NewServer(opts...)
	handler.RegisterHeadPoseEstimatorServer(grpcServer, h)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	addr := fmt.Sprintf(":%d", cfg.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	healthServer.SetServingStatus(handler.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	metrics.SetHealthy()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sigCtx.Done()
		log.Info("shutting down gracefully")

		healthServer.SetServingStatus(handler.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		metrics.SetUnhealthy()

		// Give load balancers time to see the unhealthy status
		time.Sleep(5 * time.Second)

		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}
		if tracerShutdown != nil {
			tracerShutdown(shutdownCtx)
		}
	}()

	log.Info("grpc server listening", "addr", addr)
	if err := grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	<-done

	log.Info("server shutdown complete")
	return nil
}

// loadModels builds the engine and the model handles it will run
func loadModels(cfg *config.Config, log *logger.Logger) (inference.Engine, *model.Model, *model.Model, error) {
	opts := model.Options{Path: cfg.HeadPoseModel, MaxBatch: cfg.MaxBatch, RequireFile: !cfg.UseMockInference}

	if cfg.UseMockInference {
		log.Info("using mock inference engine")
		headPose, err := model.LoadHeadPose(model.Options{MaxBatch: cfg.MaxBatch})
		if err != nil {
			return nil, nil, nil, err
		}
		// the mock has no face model; callers pass regions
		return inference.NewMock(), headPose, nil, nil
	}

	engine, err := inference.NewONNX(inference.ONNXOptions{
		SharedLibraryPath: cfg.ONNXLibrary,
		IntraOpThreads:    cfg.Threads,
	}, log)
	if err != nil {
		return nil, nil, nil, err
	}

	headPose, err := model.LoadHeadPose(opts)
	if err != nil {
		engine.Close()
		return nil, nil, nil, err
	}
	if err := engine.Load(headPose); err != nil {
		engine.Close()
		return nil, nil, nil, err
	}

	var face *model.Model
	if cfg.FaceModel != "" {
		face, err = model.LoadFaceDetection(model.Options{Path: cfg.FaceModel, RequireFile: true})
		if err == nil {
			err = engine.Load(face)
		}
		if err != nil {
			engine.Close()
			return nil, nil, nil, fmt.Errorf("face %w", err)
		}
	}

	log.Info("models loaded", "head_pose", headPose.Name, "face_detection", face != nil)
	return engine, headPose, face, nil
}

func startHTTPServer(port int, h http.Handler, log *logger.Logger) *http.Server {
	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
		}
	}()

	return server
}
