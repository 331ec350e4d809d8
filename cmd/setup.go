package cmd

import (
	"context"
	"fmt"

	"github.com/facepass/facepass/internal/attendance"
	"github.com/facepass/facepass/internal/config"
	"github.com/facepass/facepass/internal/database"
	"github.com/facepass/facepass/internal/database/mariadb"
	"github.com/facepass/facepass/internal/database/mock"
	"github.com/facepass/facepass/internal/database/postgres"
	"github.com/facepass/facepass/internal/detect"
	"github.com/facepass/facepass/internal/engine"
	"github.com/facepass/facepass/internal/gallery"
)

// openStore connects to the configured database driver. The memory driver
// needs no external service and loses everything on exit.
func openStore(cfg *config.Config) (database.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return postgres.Open(&cfg.Database)
	case "mariadb":
		return mariadb.Open(cfg.Database.URL)
	case "memory":
		return mock.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// newLocator builds the configured detection backend.
func newLocator(cfg *config.Config) (detect.Locator, error) {
	switch cfg.Detector.Backend {
	case "cascade":
		return detect.NewCascadeLocator(cfg.Detector.CascadePath)
	case "onnx":
		return detect.NewONNXLocator(cfg.Detector.ModelPath, cfg.Detector.LibraryPath)
	default:
		return nil, fmt.Errorf("unknown detector backend %q", cfg.Detector.Backend)
	}
}

// buildEngine assembles the full pipeline: store, locator, gallery loaded
// from active enrollments, attendance tracker.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine.Engine, database.Store, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	locator, err := newLocator(cfg)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("create locator: %w", err)
	}

	g := gallery.New(cfg.Thresholds.Match, cfg.Thresholds.Duplicate)
	if err := g.Load(ctx, engine.GalleryLoader{Store: store}); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("load gallery: %w", err)
	}

	tracker := attendance.NewTracker(engine.AttendanceStore{Store: store}, cfg.Thresholds.Cooldown())
	return engine.New(locator, g, tracker, store, cfg.Thresholds), store, nil
}
