package job

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"

	"stem420/internal/lifecycle"
	"stem420/internal/models"
	"stem420/internal/pool"
	"stem420/internal/storage"
)

// PipelineFunc processes one request end to end.
type PipelineFunc func(ctx context.Context, req Request) error

// Dispatcher is the seam between job submission and the pipeline.
//
// In the default detached mode, Handle records the job as started, launches
// the pipeline on its own goroutine and returns an acknowledgment
// immediately. Nothing bounds the number of concurrent pipelines in this
// mode; deployments that need admission control must rate-limit upstream,
// or run with Sync set, where Handle blocks for the full pipeline and the
// worker pool's bounded queue applies.
type Dispatcher struct {
	tracker  *lifecycle.Tracker
	runs     *storage.RunRepository // optional
	pipeline PipelineFunc
	sync     bool
}

// NewDispatcher creates a dispatcher. runs may be nil, in which case no
// run records are kept.
func NewDispatcher(tracker *lifecycle.Tracker, runs *storage.RunRepository, pipeline PipelineFunc, sync bool) *Dispatcher {
	return &Dispatcher{
		tracker:  tracker,
		runs:     runs,
		pipeline: pipeline,
		sync:     sync,
	}
}

// Handle is the worker pool's unit-of-work handler. It records the job as
// started and either runs the pipeline inline (sync) or detaches it.
func (d *Dispatcher) Handle(req Request) (Response, error) {
	runID := d.recordQueued(req)
	d.tracker.MarkStarted()
	if d.sync {
		return Response{}, d.execute(req, runID)
	}
	go d.execute(req, runID)
	return Response{}, nil
}

// execute runs the pipeline and finalizes the job: the outcome is logged,
// the run record is updated, and the finished counter is incremented no
// matter how the pipeline ended.
func (d *Dispatcher) execute(req Request, runID string) (err error) {
	ctx := context.Background()
	d.recordStarted(runID)
	d.tracker.Log("process.start " + req.SourceLocator)

	defer func() {
		d.tracker.MarkFinished()
		if err == nil {
			d.tracker.Log("process.success " + req.SourceLocator)
			d.recordCompleted(runID)
			return
		}
		d.tracker.Log(fmt.Sprintf("process.error %s: %v", req.SourceLocator, err))
		d.recordFailed(runID, err)
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v\n%s", r, debug.Stack())
		}
	}()

	return d.pipeline(ctx, req)
}

func (d *Dispatcher) recordQueued(req Request) string {
	if d.runs == nil {
		return ""
	}
	run := &models.Run{Source: req.SourceLocator, Destination: req.DestinationLocator}
	if err := d.runs.Create(context.Background(), run); err != nil {
		log.Printf("job: create run record: %v", err)
		return ""
	}
	return run.ID
}

func (d *Dispatcher) recordStarted(runID string) {
	if d.runs == nil || runID == "" {
		return
	}
	if err := d.runs.Start(context.Background(), runID); err != nil {
		log.Printf("job: mark run %s running: %v", runID, err)
	}
}

func (d *Dispatcher) recordCompleted(runID string) {
	if d.runs == nil || runID == "" {
		return
	}
	if err := d.runs.Complete(context.Background(), runID); err != nil {
		log.Printf("job: mark run %s completed: %v", runID, err)
	}
}

func (d *Dispatcher) recordFailed(runID string, runErr error) {
	if d.runs == nil || runID == "" {
		return
	}
	if err := d.runs.Fail(context.Background(), runID, runErr.Error()); err != nil {
		log.Printf("job: mark run %s failed: %v", runID, err)
	}
}

// Manager is the worker pool specialized to job requests.
type Manager = pool.Manager[Request, Response]

// NewManager builds the worker pool whose handler is the dispatcher.
func NewManager(d *Dispatcher, numWorkers int) (*Manager, error) {
	return pool.New(func() (func(Request) (Response, error), error) {
		return d.Handle, nil
	}, numWorkers)
}
