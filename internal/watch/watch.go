package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	pipelinedomain "github.com/smallbiznis/retaillens/internal/pipeline/domain"
	"go.uber.org/zap"
)

const defaultDebounce = 2 * time.Second

// Runner executes one full pipeline run.
type Runner interface {
	Run(ctx context.Context, req pipelinedomain.CleanRequest) (pipelinedomain.Report, error)
}

type Stats struct {
	Events    int
	Runs      int
	Failures  int
	LastRunAt time.Time
}

// Watcher re-runs the pipeline when the raw input file changes. Runs happen on
// the event loop goroutine, so two runs never overlap.
type Watcher struct {
	runner   Runner
	req      pipelinedomain.CleanRequest
	target   string
	debounce time.Duration
	log      *zap.Logger

	mu    sync.Mutex
	stats Stats
}

func New(runner Runner, req pipelinedomain.CleanRequest, debounce time.Duration, log *zap.Logger) (*Watcher, error) {
	if runner == nil {
		return nil, errors.New("watch: runner is required")
	}
	target, err := filepath.Abs(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %s: %w", req.InputPath, err)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		runner:   runner,
		req:      req,
		target:   target,
		debounce: debounce,
		log:      log.Named("watch"),
	}, nil
}

// Run blocks until ctx is done. The parent directory is watched so editors
// and tools that replace the file with a rename still trigger a run.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.target), err)
	}
	w.log.Info("watching input", zap.String("path", w.target), zap.Duration("debounce", w.debounce))

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watch stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.mu.Lock()
			w.stats.Events++
			w.mu.Unlock()

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-pending:
			pending = nil
			w.runOnce(ctx)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return name == w.target
}

func (w *Watcher) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := w.runner.Run(ctx, w.req)

	w.mu.Lock()
	w.stats.Runs++
	w.stats.LastRunAt = time.Now()
	if err != nil {
		w.stats.Failures++
	}
	w.mu.Unlock()

	if err != nil {
		w.log.Error("pipeline run failed", zap.String("stage", pipelinedomain.Stage(err)), zap.Error(err))
		return
	}
	w.log.Info("pipeline run finished",
		zap.String("run_id", report.RunID),
		zap.Duration("duration", report.Duration),
	)
}

func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
