package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"moneta/internal/amqp"
	"moneta/internal/log"
	"moneta/internal/sheets"
	"moneta/internal/storage"
)

// Journal is the page-view store the worker writes to.
type Journal interface {
	RecordPageView(ctx context.Context, pv storage.PageView) (bool, error)
	ListUnmirrored(ctx context.Context, limit int) ([]storage.PageView, error)
	MarkMirrored(ctx context.Context, ids []int64) error
}

// Consumer delivers page-view messages until ctx is done.
type Consumer interface {
	ConsumePageViews(ctx context.Context, handler amqp.Handler) error
}

// TrackingWorker persists page views consumed from the broker and mirrors
// the journal to a spreadsheet when one is configured.
type TrackingWorker struct {
	journal   Journal
	mirror    sheets.PageViewAppender
	batchSize int
	logger    *log.Logger
}

// NewTrackingWorker builds a worker. mirror may be nil.
func NewTrackingWorker(journal Journal, mirror sheets.PageViewAppender, batchSize int, logger *log.Logger) *TrackingWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &TrackingWorker{
		journal:   journal,
		mirror:    mirror,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandlePageView journals one consumed message. Redeliveries are ignored.
func (w *TrackingWorker) HandlePageView(ctx context.Context, msg *amqp.PageViewMessage) error {
	inserted, err := w.journal.RecordPageView(ctx, storage.PageView{
		MessageID:  msg.ID,
		Identifier: msg.Identifier,
		Path:       msg.Path(),
		OccurredAt: msg.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("record page view: %w", err)
	}
	if inserted {
		w.logger.DebugContext(ctx, "Page view recorded", log.FieldPageID, msg.Identifier)
	}
	return nil
}

// MirrorPending copies unmirrored page views to the mirror in batches and
// returns how many rows were copied. Without a mirror it does nothing.
func (w *TrackingWorker) MirrorPending(ctx context.Context) (int, error) {
	if w.mirror == nil {
		return 0, nil
	}
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		views, err := w.journal.ListUnmirrored(ctx, w.batchSize)
		if err != nil {
			return total, fmt.Errorf("list unmirrored: %w", err)
		}
		if len(views) == 0 {
			return total, nil
		}

		rows := make([]sheets.PageView, len(views))
		ids := make([]int64, len(views))
		for i, v := range views {
			rows[i] = sheets.PageView{
				MessageID:  v.MessageID,
				Identifier: v.Identifier,
				Path:       v.Path,
				OccurredAt: v.OccurredAt,
			}
			ids[i] = v.ID
		}

		ref, err := w.mirror.AppendPageViews(ctx, rows)
		if err != nil {
			return total, fmt.Errorf("append page views: %w", err)
		}
		if err := w.journal.MarkMirrored(ctx, ids); err != nil {
			// rows are in the sheet; a retry would duplicate them
			w.logger.ErrorContext(ctx, "Failed to mark page views mirrored", log.FieldError, err, "range", ref)
			return total, err
		}
		total += len(views)
		w.logger.InfoContext(ctx, "Mirrored page views", "count", len(views), "range", ref)

		if len(views) < w.batchSize {
			return total, nil
		}
	}
}

// Run consumes page views and periodically mirrors the journal until ctx is
// done. It returns nil on a clean shutdown.
func (w *TrackingWorker) Run(ctx context.Context, consumer Consumer, mirrorEvery time.Duration) error {
	if n, err := w.MirrorPending(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Startup mirror failed", log.FieldError, err)
	} else if n > 0 {
		w.logger.InfoContext(ctx, "Startup mirror completed", "count", n)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return consumer.ConsumePageViews(gctx, w.HandlePageView)
	})

	if w.mirror != nil && mirrorEvery > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(mirrorEvery)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-ticker.C:
					if _, err := w.MirrorPending(gctx); err != nil && gctx.Err() == nil {
						w.logger.ErrorContext(gctx, "Periodic mirror failed", log.FieldError, err)
					}
				}
			}
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
