package overwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/Orlik-B/NVR-surveillance/internal/ai"
	"github.com/Orlik-B/NVR-surveillance/internal/camera"
	"github.com/Orlik-B/NVR-surveillance/internal/config"
	"github.com/Orlik-B/NVR-surveillance/internal/health"
	"github.com/Orlik-B/NVR-surveillance/internal/logger"
	"github.com/Orlik-B/NVR-surveillance/internal/notify"
	"github.com/Orlik-B/NVR-surveillance/internal/orchestrator"
	"github.com/Orlik-B/NVR-surveillance/internal/service"
	"github.com/Orlik-B/NVR-surveillance/internal/state"
	"github.com/Orlik-B/NVR-surveillance/internal/storage"
	"github.com/Orlik-B/NVR-surveillance/internal/video"
	"github.com/Orlik-B/NVR-surveillance/internal/web"
)

// app is every long-lived component of one overwatch process
type app struct {
	cfg       *config.Config
	logger    *logger.Logger
	services  *service.Manager
	state     *state.Manager
	recorder  *state.Recorder
	orch      *orchestrator.Orchestrator
	web       *web.Server
	health    *health.Manager
	retention *storage.RetentionPolicy
	prober    *camera.Prober
}

// appDeps lets tests replace the collaborators that reach the network
type appDeps struct {
	dialer   video.Dialer
	detector ai.Detector
	sink     notify.Sink
}

func newApp(cfg *config.Config, log *logger.Logger, deps appDeps) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   log,
		services: service.NewManager(log),
		prober:   camera.NewProber(cfg.Stream.ProbeTimeout, log),
	}

	stateMgr, err := state.NewManager(cfg.Storage.DBPath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	a.state = stateMgr

	disk := storage.NewDiskMonitor(cfg.Storage.FramesDir, cfg.Storage.MaxDiskUsagePercent, log)
	frames, err := storage.NewFrameStore(storage.FrameStoreConfig{
		Dir:     cfg.Storage.FramesDir,
		Quality: cfg.Storage.JPEGQuality,
		Disk:    disk,
	}, log)
	if err != nil {
		stateMgr.Close()
		return nil, fmt.Errorf("failed to create frame store: %w", err)
	}
	a.retention = storage.NewRetentionPolicy(cfg.Storage.FramesDir, cfg.Storage.RetentionDays, log)

	detectorClient := ai.NewClient(ai.ClientConfig{
		ServiceURL:          cfg.Model.ServiceURL,
		Timeout:             cfg.Model.Timeout,
		ConfidenceThreshold: cfg.Model.Confidence,
		EnabledClasses:      cfg.Model.DetectionClasses,
		ImageSize:           cfg.Model.ImgSize,
		JPEGQuality:         cfg.Storage.JPEGQuality,
	}, log)

	if deps.dialer == nil {
		ffmpegPath := resolveFFmpeg(context.Background(), cfg.Stream.FFmpegPath, log)
		deps.dialer = video.NewFFmpegDialer(ffmpegPath, cfg.Stream.ReadTimeout, log)
	}
	if deps.detector == nil {
		deps.detector = detectorClient
	}
	if deps.sink == nil {
		deps.sink = newSink(cfg, log)
	}

	orch, err := orchestrator.New(cfg, orchestrator.Deps{
		Dialer:   deps.dialer,
		Detector: deps.detector,
		Notifier: notify.NewLeveled(deps.sink, cfg.Parameters.RuntimeVerboseLevel),
		Frames:   frames,
		EventBus: a.services.GetEventBus(),
	}, log)
	if err != nil {
		stateMgr.Close()
		return nil, err
	}
	a.orch = orch

	a.recorder = state.NewRecorder(stateMgr, log)

	a.health = health.NewManager(log, a.services)
	sources := make([]health.StatsSource, 0, len(orch.Cameras()))
	for _, cam := range orch.Cameras() {
		sources = append(sources, cam.Source)
	}
	a.health.RegisterChecker(health.NewCameraChecker(sources...))
	a.health.RegisterChecker(health.NewDetectorChecker(detectorClient, cfg.Model.ServiceURL))
	a.health.RegisterChecker(health.NewDatabaseChecker(stateMgr))
	a.health.RegisterChecker(health.NewStorageChecker(cfg.Storage.FramesDir, disk))

	a.web = web.NewServer(&cfg.Web, log)
	a.web.SetVersion(buildInfo.Version)
	a.web.SetDependencies(orch, a.health, stateMgr)

	// The recorder starts first so it sees overwatch.started and stops last
	// so it persists overwatch.finished.
	a.services.Register(a.recorder)
	a.services.Register(a.orch)
	a.services.Register(a.web)

	return a, nil
}

func newSink(cfg *config.Config, log *logger.Logger) notify.Sink {
	if !cfg.Telegram.Enabled {
		log.Info("Telegram disabled, notifications are only logged")
		return notify.NewLogSink(log)
	}
	return notify.NewTelegram(notify.TelegramConfig{
		Token:   cfg.Telegram.Token,
		ChatID:  cfg.Telegram.ChatID,
		Enabled: true,
		APIURL:  cfg.Telegram.APIURL,
	})
}

// resolveFFmpeg finds the ffmpeg binary and logs its version. When nothing
// is found the configured path is kept and every dial reports the error.
func resolveFFmpeg(ctx context.Context, configured string, log *logger.Logger) string {
	path, err := video.LookupFFmpeg(configured)
	if err != nil {
		log.Warn("FFmpeg not found, camera streams cannot be opened", "ffmpeg_path", configured, "error", err)
		return configured
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	version, err := video.FFmpegVersion(ctx, path)
	if err != nil {
		log.Warn("Failed to read ffmpeg version", "ffmpeg_path", path, "error", err)
		return path
	}
	log.Info("Using ffmpeg", "ffmpeg_path", path, "version", version)
	return path
}

// probeCameras checks every stream once. Failures are logged, never fatal.
func (a *app) probeCameras(ctx context.Context) int {
	failed := 0
	for _, cam := range a.cfg.Cameras {
		if _, err := a.prober.Probe(ctx, cam.Name, a.cfg.StreamURL(cam)); err != nil {
			failed++
			a.logger.Warn("Camera stream probe failed",
				"camera", cam.Name,
				"url", camera.RedactURL(a.cfg.StreamURL(cam)),
				"error", err,
			)
		}
	}
	return failed
}

// enforceRetention removes detection frames and history rows older than
// retention_days. Zero keeps everything.
func (a *app) enforceRetention(ctx context.Context) {
	removed, err := a.retention.Enforce(ctx)
	if err != nil {
		a.logger.Warn("Failed to enforce frame retention", "error", err)
	} else if removed > 0 {
		a.logger.Info("Removed expired detection frames", "count", removed)
	}

	if a.cfg.Storage.RetentionDays <= 0 {
		return
	}
	maxAge := time.Duration(a.cfg.Storage.RetentionDays) * 24 * time.Hour
	if _, err := a.state.CleanupOldAlerts(ctx, maxAge); err != nil {
		a.logger.Warn("Failed to remove old alert history", "error", err)
	}
}

func (a *app) Close() error {
	return a.state.Close()
}
