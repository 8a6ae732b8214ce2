package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"camgate/internal/core/domain"
	"camgate/internal/core/ports"
	"camgate/internal/core/services"
	httphandlers "camgate/internal/handlers/http"
	"camgate/internal/infrastructure/hardware"
	"camgate/internal/infrastructure/media"
	"camgate/internal/infrastructure/middleware"
	"camgate/internal/infrastructure/monitoring"
	"camgate/internal/infrastructure/recording"
	"camgate/internal/infrastructure/shell"
	signalinfra "camgate/internal/infrastructure/signal"
	webrtcinfra "camgate/internal/infrastructure/webrtc"
	"camgate/pkg/auth"
	"camgate/pkg/config"
	"camgate/pkg/logger"
	"camgate/pkg/portpool"
	"camgate/pkg/tracing"

	"github.com/gin-gonic/gin"
)

func main() {
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/camgate/config.yaml",
		"config.yaml",
	}
	if path := os.Getenv("CAMGATE_CONFIG"); path != "" {
		configPaths = []string{path}
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "camgate",
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := monitoring.NewPrometheusCollector()

	// Shared media pipeline. It must be up before any viewer can join.
	graph := media.NewGraph(log)
	ingest := media.IngestPorts(cfg.Media.IngestBase)
	if err := graph.Start(ingest); err != nil {
		log.Fatalw("failed to start media graph", "error", err)
	}
	for element := range ingest {
		if err := graph.AddProbe(element, "src", func(info ports.ProbeInfo) {
			collector.AddBranchBytes(info.Element, info.Bytes)
		}); err != nil {
			log.Warnw("byte probe not attached", "element", element, "error", err)
		}
	}

	var reserved []portpool.Range
	for _, r := range cfg.ReservedRanges() {
		reserved = append(reserved, portpool.Range{From: r[0], To: r[1]})
	}
	pool, err := portpool.New(cfg.Stream.PortBase, cfg.Stream.PortCount, reserved...)
	if err != nil {
		log.Fatalw("invalid stream port range", "error", err)
	}

	controller := services.NewBranchController(graph, pool, log)

	engine, err := webrtcinfra.NewEngine(webrtcinfra.EngineConfig{
		STUNServer:   cfg.WebRTC.STUNServer,
		TURNServer:   cfg.WebRTC.TURNServer,
		TURNUser:     cfg.WebRTC.TURNUser,
		TURNPassword: cfg.WebRTC.TURNPassword,
	}, log)
	if err != nil {
		log.Fatalw("failed to initialize negotiation engine", "error", err)
	}

	var recorder *recording.EventRecorder
	var recPort ports.Recorder
	var sink ports.EventSink
	if cfg.Recording.Enabled {
		recorder, err = recording.New(recording.Config{
			Directory: cfg.Recording.Directory,
			PreRoll:   cfg.Recording.PreRoll,
			PostRoll:  cfg.Recording.PostRoll,
		}, log)
		if err != nil {
			log.Fatalw("failed to initialize event recorder", "error", err)
		}
		recPort = recorder
		sink = recorder
	}

	var onOverheat monitoring.OverheatFunc
	if recorder != nil {
		onOverheat = recorder.OnOverheat
	}
	thermal := monitoring.NewThermalMonitor(monitoring.ThermalConfig{
		CPUZone:     cfg.Monitoring.ThermalZone,
		GPUZone:     cfg.Monitoring.GPUThermalZone,
		CPUWarnTemp: cfg.Monitoring.CPUWarnTemp,
		GPUWarnTemp: cfg.Monitoring.GPUWarnTemp,
		Interval:    cfg.Monitoring.SampleInterval,
	}, collector, onOverheat, log)

	sampler := monitoring.NewHealthSampler(monitoring.HealthSamplerConfig{
		RGBSnapshotPath:     cfg.Monitoring.RGBSnapshot,
		ThermalSnapshotPath: cfg.Monitoring.ThermalSnap,
		RecordingDir:        cfg.Recording.Directory,
	}, thermal, recPort, collector, log)

	var ptz ports.PTZController
	if cfg.Hardware.SerialDevice != "" {
		head, err := hardware.NewSerialPTZ(cfg.Hardware.SerialDevice, cfg.Hardware.BaudRate, log)
		if err != nil {
			log.Warnw("PTZ head unavailable", "device", cfg.Hardware.SerialDevice, "error", err)
		} else {
			defer head.Close()
			ptz = head
		}
	}
	var runner ports.CommandRunner
	if len(cfg.Hardware.Commands) > 0 {
		runner = shell.NewRunner(cfg.Hardware.Commands, log)
	}
	dispatcher := services.NewCommandDispatcher(ptz, recPort, runner, log)

	issuer := auth.NewTokenIssuer(cfg.Signal.AuthSecret, cfg.Signal.TokenTTL)
	register := func() domain.Registration {
		token, err := issuer.Issue(cfg.Camera.ID, cfg.Camera.FirmwareVersion)
		if err != nil {
			log.Warnw("token signing failed, registering unauthenticated", "error", err)
		}
		return domain.Registration{
			CameraID:        cfg.Camera.ID,
			FirmwareVersion: cfg.Camera.FirmwareVersion,
			AIVersion:       cfg.Camera.AIVersion,
			Token:           token,
		}
	}

	var reporter *services.StatusReporter
	client := signalinfra.NewClient(signalinfra.ClientOptions{
		URL:            cfg.Signal.URL,
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		ReconnectDelay: cfg.Signal.ReconnectDelay,
		ReconnectMax:   cfg.Signal.ReconnectMax,
	}, register, func(ctx context.Context) {
		// Servers expect a health snapshot right after registration.
		reporter.Publish(ctx)
	}, log)

	manager := services.NewManager(engine, controller, client, sink, collector, log)
	manager.StartReaper(ctx, cfg.Stream.SweepInterval, cfg.Stream.IdleTimeout)

	reporter = services.NewStatusReporter(client, sampler, cfg.Monitoring.StatusInterval, log)

	router := signalinfra.NewRouter(manager, dispatcher, log)
	client.BindRouter(router)

	go thermal.Run(ctx)
	go reporter.Run(ctx)
	go func() {
		ticker := time.NewTicker(cfg.Monitoring.SampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collector.SetPortUsage(pool.InUse(), pool.Free())
			}
		}
	}()
	go client.Run(ctx)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())
	ginRouter.Use(middleware.RateLimit(cfg.Monitoring.HTTPRateLimit, cfg.Monitoring.HTTPBurst))
	if cfg.Tracing.Enabled {
		ginRouter.Use(middleware.Tracing())
	}
	httphandlers.NewStatusHandler(manager, graph, pool).SetupRoutes(ginRouter)

	srv := &http.Server{
		Addr:         cfg.Monitoring.HTTPAddress,
		Handler:      ginRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("diagnostics endpoint listening", "address", cfg.Monitoring.HTTPAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("diagnostics server failed", "error", err)
		}
	}()

	log.Infow("camera gateway started",
		"camera_id", cfg.Camera.ID,
		"signal_url", cfg.Signal.URL,
		"port_base", cfg.Stream.PortBase,
		"port_count", cfg.Stream.PortCount,
	)

	<-ctx.Done()
	log.Infow("shutting down")

	// Sessions first so detach flushes run while the graph is still up.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	manager.RemoveAll(shutdownCtx)
	client.Close()
	srv.Shutdown(shutdownCtx)
	if recorder != nil {
		recorder.Flush()
	}
	graph.Stop()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warnw("tracer shutdown failed", "error", err)
	}

	log.Infow("camera gateway stopped")
}
