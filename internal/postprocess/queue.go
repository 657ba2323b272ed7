package postprocess

import (
	"context"
	"errors"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/livecap/internal/logging"
	"github.com/Iron-Ham/livecap/internal/segment"
	"github.com/Iron-Ham/livecap/internal/util"
)

// Queue runs remuxes in the background so the recording loop never waits
// for one. Submit is fire-and-forget; Wait drains outstanding work on
// shutdown.
type Queue struct {
	remuxer *Remuxer
	logger  *logging.Logger
	ctx     context.Context

	mu       sync.Mutex
	onResult func(Result, error)

	wg conc.WaitGroup
}

// NewQueue creates a Queue. ctx bounds every remux it runs.
func NewQueue(ctx context.Context, remuxer *Remuxer, logger *logging.Logger) *Queue {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Queue{remuxer: remuxer, logger: logger, ctx: ctx}
}

// OnResult registers a callback invoked after every remux attempt.
func (q *Queue) OnResult(fn func(Result, error)) {
	q.mu.Lock()
	q.onResult = fn
	q.mu.Unlock()
}

// Submit schedules seg for remuxing and returns immediately.
func (q *Queue) Submit(seg segment.Segment) {
	q.wg.Go(func() {
		res, err := q.remuxer.Remux(q.ctx, seg)
		log := q.logger.WithSubject(seg.Subject).WithSegment(seg.Index)
		switch {
		case errors.Is(err, ErrEmptyInput):
			log.Warn("segment output empty or missing", "path", seg.PartPath)
		case err != nil:
			log.Error("remux failed", "path", seg.PartPath, "error", err.Error())
		default:
			log.Info("segment finalized",
				"path", res.Path,
				"size", util.FormatSizeMB(res.SizeMB),
				"duration", res.Duration.String(),
				"source_kept", res.SourceKept)
		}

		q.mu.Lock()
		fn := q.onResult
		q.mu.Unlock()
		if fn != nil {
			fn(res, err)
		}
	})
}

// Wait blocks until every submitted remux has finished. A panic in a remux
// is logged instead of crashing the recorder.
func (q *Queue) Wait() {
	if r := q.wg.WaitAndRecover(); r != nil {
		q.logger.Error("remux panicked", "panic", r.String())
	}
}
