package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tools-cx-app/gpu-governor/cmd/app"
	"github.com/Tools-cx-app/gpu-governor/internal/api/v1/handler"
	"github.com/Tools-cx-app/gpu-governor/internal/common"
	governorservice "github.com/Tools-cx-app/gpu-governor/internal/features/governor/service"
	hwservice "github.com/Tools-cx-app/gpu-governor/internal/features/hardware/service"
	oppservice "github.com/Tools-cx-app/gpu-governor/internal/features/opp/service"
	profileservice "github.com/Tools-cx-app/gpu-governor/internal/features/profile/service"
	samplerservice "github.com/Tools-cx-app/gpu-governor/internal/features/sampler/service"
)

// Run starts the application
func Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		log.Printf("signal received: %v, shutting down", sig)
		cancel()
	}()

	// 1. Load configuration
	cfg, err := app.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// 2. Create the logger
	logger, levelVar := common.NewLogger(common.LoggerConfig{
		Level:  common.LogLevel(cfg.App.LogLevel),
		Output: os.Stdout,
	})
	logger = logger.With("component", cfg.App.Component)

	// 3. Open the device and wait for its control files
	device := hwservice.NewDevice(hwservice.Paths{
		UtilizationSources: cfg.Hardware.UtilizationSources,
		FreqPaths:          cfg.Hardware.FreqPaths,
		FreqSetPath:        cfg.Hardware.FreqSetPath,
		VoltSetPath:        cfg.Hardware.VoltSetPath,
		ThermalZonePath:    cfg.Hardware.ThermalZonePath,
	}, cfg.Hardware.IOTimeout, logger)

	if err := device.Probe(ctx, cfg.Hardware.ProbeBudget); err != nil {
		log.Fatalf("device probe failed: %v", err)
	}

	// 4. Load the frequency table
	table, err := oppservice.Load(cfg.Governor.OPPTablePath)
	if err != nil {
		log.Fatalf("failed to load frequency table: %v", err)
	}
	logger.Info("frequency table loaded",
		"path", cfg.Governor.OPPTablePath,
		"entries", table.Len(),
		"min_khz", table.MinFreq(),
		"max_khz", table.MaxFreq(),
	)

	// 5. Policy store; falls back to a safe default when the file is bad
	store := profileservice.NewStore(cfg.Governor.PolicyPath, table.Len(), logger)

	// 6. Metrics
	metrics := governorservice.NewMetricsCollector()
	metrics.Register()

	// 7. Wire the governor
	sampler := samplerservice.NewSampler(device, cfg.Governor.WindowCapacity)
	engine := governorservice.NewEngine(table.Len(), logger)
	actuator := governorservice.NewActuator(device, table, logger)

	loop := governorservice.NewLoop(
		governorservice.LoopOptions{
			TickInterval:    cfg.Governor.TickInterval,
			ConfigPollTicks: cfg.Governor.ConfigPollTicks,
		},
		sampler, engine, actuator, store, table, metrics, levelVar, logger,
	)

	// 8. Put the GPU at the known starting point before the loop takes over
	initial := table.At(store.Active().MinIndex)
	if err := device.Apply(ctx, initial); err != nil {
		logger.Warn("initial operating point not applied",
			"freq_khz", initial.FreqKHz,
			"error", err,
		)
	}

	// 9. Status HTTP server for the configuration UI
	httpServer := newHTTPServer(cfg, loop, store)
	go func() {
		logger.Info("status server listening", "address", cfg.Server.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server failed", "error", err)
			cancel()
		}
	}()

	// 10. Run the control loop until a signal arrives
	if err := loop.Run(ctx); err != nil {
		logger.Error("control loop error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("status server shutdown incomplete", "error", err)
	}

	logger.Info("shutdown complete")
}

// newHTTPServer builds the gin router with the status endpoints
func newHTTPServer(cfg *app.Config, loop *governorservice.Loop, store *profileservice.Store) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	handler.NewHealthHandler().SetupRoutes(router)
	handler.NewStatusHandler(loop, store).SetupRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: router,
	}
}
