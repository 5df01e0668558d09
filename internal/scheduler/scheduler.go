// Package scheduler runs periodic maintenance jobs against the product catalog.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crucial707/hci-inventory/internal/metrics"
	"github.com/crucial707/hci-inventory/internal/repo"
	"github.com/crucial707/hci-inventory/internal/storage"
	"github.com/robfig/cron/v3"
)

// DefaultGrace keeps freshly uploaded images that no product row references yet.
const DefaultGrace = time.Hour

// Sweeper deletes stored images that no product references any more.
type Sweeper struct {
	Products *repo.ProductRepo
	Images   storage.ImageStore
	// Grace is the minimum age of an unreferenced image before it is removed.
	Grace time.Duration

	now func() time.Time
}

func NewSweeper(products *repo.ProductRepo, images storage.ImageStore, grace time.Duration) *Sweeper {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Sweeper{Products: products, Images: images, Grace: grace, now: time.Now}
}

// Sweep runs one pass and returns the number of images removed. An image that vanishes
// mid-pass is not an error.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	refs, err := s.Products.ImageRefs(ctx)
	if err != nil {
		return 0, fmt.Errorf("load image refs: %w", err)
	}
	objs, err := s.Images.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list images: %w", err)
	}

	cutoff := s.now().Add(-s.Grace)
	removed := 0
	for _, o := range objs {
		if _, used := refs[storage.Ref(o.Name)]; used {
			continue
		}
		if o.ModTime.After(cutoff) {
			continue
		}
		err := s.Images.Delete(ctx, o.Name)
		if errors.Is(err, storage.ErrImageNotFound) {
			continue
		}
		if err != nil {
			slog.Warn("sweeper: delete image", "image", o.Name, "err", err)
			continue
		}
		removed++
	}
	metrics.AddImagesSwept(removed)
	return removed, nil
}

// Start schedules Sweep on expr (standard cron syntax or descriptors such as "@daily")
// and returns the running cron. Stop it on shutdown.
func (s *Sweeper) Start(expr string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(expr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		n, err := s.Sweep(ctx)
		if err != nil {
			slog.Error("sweeper: run failed", "err", err)
			return
		}
		slog.Info("sweeper: run complete", "removed", n)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", expr, err)
	}
	c.Start()
	slog.Info("sweeper: scheduled", "cron", expr, "grace", s.Grace.String())
	return c, nil
}
