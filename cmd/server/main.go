package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hperssn/haptics/internal/audio"
	"github.com/hperssn/haptics/internal/config"
	"github.com/hperssn/haptics/internal/debuglog"
	"github.com/hperssn/haptics/internal/haptic"
	"github.com/hperssn/haptics/internal/runner"
	"github.com/hperssn/haptics/internal/storage"
)

func main() {
	configPath := flag.String("config", "haptics.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ring := debuglog.NewRing(zapcore.InfoLevel, debuglog.DefaultSize)
	logger, err := newLogger(cfg.Log, ring)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	actuator, closeActuator, err := openActuator(cfg.Haptics, logger)
	if err != nil {
		logger.Fatal("failed to open haptic actuator", zap.Error(err))
	}
	defer closeActuator()

	opts := []runner.Option{runner.WithLogger(logger)}

	sound, err := audio.NewAccompaniment(audio.Options{
		AssetPath: cfg.Sound.AssetPath,
		ToneHz:    cfg.Sound.ToneHz,
		Smoothing: cfg.Sound.Smoothing,
	}, logger)
	if err != nil {
		logger.Warn("audio accompaniment unavailable", zap.Error(err))
		opts = append(opts, runner.WithSound(nil, false))
	} else {
		defer sound.Close()
		opts = append(opts, runner.WithSound(sound, cfg.Sound.Enabled))
	}

	history, err := openHistory(cfg.Database)
	if err != nil {
		logger.Fatal("failed to open playback history", zap.Error(err))
	}
	if history != nil {
		defer history.Close()
		opts = append(opts, runner.WithRecorder(storage.NewRecorder(history, logger)))
	}

	files, err := storage.NewFileStore(cfg.PatternDir)
	if err != nil {
		logger.Fatal("failed to open pattern directory", zap.Error(err))
	}

	sched := runner.NewScheduler(actuator, opts...)
	manager := runner.NewManager(sched, nil)
	defer manager.Close()
	defer sched.Cancel()

	srv := &server{
		manager: manager,
		files:   files,
		history: history,
		ring:    ring,
		logger:  logger,
	}

	logger.Info("listening",
		zap.String("addr", cfg.Listen),
		zap.String("patterns", files.Dir()),
		zap.String("haptics", cfg.Haptics.Backend),
		zap.String("database", cfg.Database.Driver),
	)
	if err := http.ListenAndServe(cfg.Listen, srv.routes()); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
}

// newLogger builds the process logger and tees it into the debug ring.
func newLogger(cfg config.Log, ring *debuglog.Ring) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, ring)
	})), nil
}

func openActuator(cfg config.Haptics, logger *zap.Logger) (haptic.Actuator, func(), error) {
	switch cfg.Backend {
	case "serial":
		s, err := haptic.OpenSerial(cfg.Port, cfg.BaudRate, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("failed to close serial actuator", zap.Error(err))
			}
		}, nil
	default:
		return haptic.NewNoop(logger), func() {}, nil
	}
}

// openHistory returns a nil repository when history is disabled.
func openHistory(cfg config.Database) (storage.Repository, error) {
	switch cfg.Driver {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		repo, err := storage.NewSQLiteRepository(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "postgres":
		repo, err := storage.NewPostgresRepository(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, nil
	}
}
