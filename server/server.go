package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"gorm.io/gorm"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/customeros/ticketstack/api"
	"github.com/customeros/ticketstack/config"
	"github.com/customeros/ticketstack/internal/cron"
	"github.com/customeros/ticketstack/internal/logger"
	"github.com/customeros/ticketstack/internal/metrics"
	"github.com/customeros/ticketstack/internal/repository"
	"github.com/customeros/ticketstack/internal/tracing"
	"github.com/customeros/ticketstack/services"
	"github.com/customeros/ticketstack/services/storage"
)

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	repositories *repository.Repositories
	metrics      *metrics.Metrics
	cron         *cron.CronManager
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, db *gorm.DB) (*Server, error) {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		log.Fatalf("Could not initialize jaeger tracer: %s", err.Error())
	}
	opentracing.SetGlobalTracer(tracer)

	repos := repository.InitRepositories(db)
	m := metrics.NewMetrics()

	svcs, err := services.InitServices(cfg, appLogger, repos, m)
	if err != nil {
		return nil, err
	}

	var sweeper cron.TempSweeper
	if fs, ok := svcs.Storage.(*storage.FilesystemStore); ok {
		sweeper = fs
	}
	cronManager := cron.NewCronManager(*cfg.Cron, cfg.AppConfig.PodName, appLogger, kubernetesClient(appLogger), sweeper, svcs.Monitor)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		config:       cfg,
		log:          appLogger,
		router:       router,
		services:     svcs,
		repositories: repos,
		metrics:      m,
		cron:         cronManager,
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:              ":" + cfg.AppConfig.APIPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// kubernetesClient returns nil outside a cluster; crons then run locally.
func kubernetesClient(log logger.Logger) kubernetes.Interface {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		log.Infof("Not running in kubernetes: %v", err)
		return nil
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		log.Warnf("Could not create kubernetes client: %v", err)
		return nil
	}
	return client
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		ext.Error.Set(span, true)

		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		s.log.Errorf("Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api.RegisterRoutes(s.router, s.services.Monitor, s.metrics, s.config.AppConfig.APIKey)

	if err := s.cron.Start(s.config.AppConfig.Namespace); err != nil {
		return err
	}

	monitorDone := make(chan struct{})
	go s.wrapGoroutine("monitor", func() {
		defer close(monitorDone)
		s.log.Infof("Starting mailbox monitor on %s", s.services.Supervisor.Mailbox())
		err := s.services.Monitor.RunWithRespawn(ctx, s.config.WorkerConfig.RespawnDelay)
		if err != nil && ctx.Err() == nil {
			s.log.Errorf("Mailbox monitor stopped: %v", err)
		}
	})

	go s.wrapGoroutine("http_server", func() {
		s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("HTTP server error: %v", err)
		}
	})
	s.log.Info("Ticketstack worker is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown(cancel, monitorDone)
}

func (s *Server) waitForShutdown(cancel context.CancelFunc, monitorDone <-chan struct{}) error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	s.log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("HTTP server shutdown error: %v", err)
	}

	s.cron.Stop()

	// cancelling aborts the message in flight; its transaction rolls back and
	// it stays unseen for the next run
	cancel()
	select {
	case <-monitorDone:
		s.log.Info("Mailbox monitor stopped")
	case <-time.After(10 * time.Second):
		s.log.Warn("Mailbox monitor stop timed out, forcing exit")
	}

	if err := s.services.Close(); err != nil {
		s.log.Errorf("Closing services: %v", err)
	}
	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}
	return nil
}
