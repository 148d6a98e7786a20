package session

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/ollaforge/forgecli/api"
)

// Backend is the slice of the REST client the reconciler needs. api.Client
// satisfies it; tests substitute fakes.
type Backend interface {
	TrainingStatus(ctx context.Context, slug string) (*api.TrainingStatusResponse, error)
	StartTraining(ctx context.Context, slug string, req api.StartTrainingRequest) (*api.StartTrainingResponse, error)
	CancelTraining(ctx context.Context, slug string) error
}

// Progress is the reconciled step/device view of the running job.
type Progress struct {
	Percent     float64
	CurrentStep int
	TotalSteps  int
	Device      api.DeviceType
	ErrorCode   string
}

// State is the consistent outward view of one project's training session.
// Presentation code reads State snapshots and calls Start/Cancel/ClearError;
// it never mutates fields directly.
type State struct {
	Status       api.TrainingStatus
	JobID        string
	CanStart     bool
	IsStarting   bool
	Connected    bool
	Progress     Progress
	Tasks        []api.TrainingTask
	FileStatuses []api.DataFileStatus
	LastError    string
}

// FileStatus looks up the ingest state of a data file by name.
func (s State) FileStatus(filename string) (api.DataFileStatus, bool) {
	for _, fs := range s.FileStatuses {
		if fs.Filename == filename {
			return fs, true
		}
	}
	return api.DataFileStatus{}, false
}

// Reconciler owns the canonical session state for one project and applies
// updates from the one-shot snapshot fetch and the live channel. A
// generation counter guards against results from a superseded lifetime
// (project switch or teardown) mutating current state.
type Reconciler struct {
	backend Backend
	slug    string

	mu    sync.Mutex
	gen   int
	state State

	onChange      func(State)
	ensureChannel func()
}

// NewReconciler creates a reconciler for one project slug.
func NewReconciler(backend Backend, slug string) *Reconciler {
	return &Reconciler{
		backend: backend,
		slug:    slug,
		state:   State{Status: api.StatusIdle, CanStart: true},
	}
}

// SetOnChange registers the state observer. Called after every mutation with
// a copy of the new state, outside the reconciler lock.
func (r *Reconciler) SetOnChange(fn func(State)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// SetEnsureChannel registers the hook used after a successful start to make
// sure the live channel is open.
func (r *Reconciler) SetEnsureChannel(fn func()) {
	r.mu.Lock()
	r.ensureChannel = fn
	r.mu.Unlock()
}

// State returns a snapshot of the current session state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reconciler) snapshotLocked() State {
	st := r.state
	st.Tasks = append([]api.TrainingTask(nil), r.state.Tasks...)
	st.FileStatuses = append([]api.DataFileStatus(nil), r.state.FileStatuses...)
	return st
}

func (r *Reconciler) notify(st State, fn func(State)) {
	if fn != nil {
		fn(st)
	}
}

// Invalidate bumps the generation so that in-flight snapshot fetches and
// stale channel events can no longer apply. Called on teardown and project
// switch.
func (r *Reconciler) Invalidate() {
	r.mu.Lock()
	r.gen++
	r.mu.Unlock()
}

// Generation returns the current generation marker.
func (r *Reconciler) Generation() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// LoadSnapshot fetches the authoritative status snapshot and replaces the
// session state with it. A fetch failure is silent: the backend may simply
// have no status yet, and the live channel is attempted regardless. The
// result is discarded when the generation moved on while the request was in
// flight.
func (r *Reconciler) LoadSnapshot(ctx context.Context) {
	r.mu.Lock()
	gen := r.gen
	slug := r.slug
	r.mu.Unlock()

	resp, err := r.backend.TrainingStatus(ctx, slug)
	if err != nil {
		log.Printf("snapshot fetch for %s failed: %v", slug, err)
		return
	}

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return
	}
	r.state.Status = resp.Status
	r.state.JobID = resp.JobID
	r.state.CanStart = resp.CanStart
	r.state.Tasks = append([]api.TrainingTask(nil), resp.Progress.Tasks...)
	r.state.FileStatuses = append([]api.DataFileStatus(nil), resp.Progress.FileStatuses...)
	r.state.Progress = Progress{
		Percent:     resp.Progress.Progress,
		CurrentStep: resp.Progress.CurrentStep,
		TotalSteps:  resp.Progress.TotalSteps,
		Device:      resp.Progress.Device,
		ErrorCode:   resp.Progress.ErrorCode,
	}
	if resp.Progress.ErrorCode != "" {
		r.state.LastError = resp.Progress.ErrorCode
	}
	st := r.snapshotLocked()
	fn := r.onChange
	r.mu.Unlock()

	r.notify(st, fn)
}

// ApplyEvent consumes one decoded push message. Unknown kinds are ignored
// for forward compatibility.
func (r *Reconciler) ApplyEvent(ev Event) {
	r.mu.Lock()
	switch ev.Type {
	case EventStatus, EventProgress:
		r.state.Status = ev.Status
		r.state.JobID = ev.JobID
		r.state.CanStart = ev.CanStart
		if ev.Tasks != nil {
			r.state.Tasks = append([]api.TrainingTask(nil), ev.Tasks...)
		}
		if ev.FileStatuses != nil {
			r.state.FileStatuses = append([]api.DataFileStatus(nil), ev.FileStatuses...)
		}
		r.state.Progress = Progress{
			Percent:     ev.Progress,
			CurrentStep: ev.CurrentStep,
			TotalSteps:  ev.TotalSteps,
			Device:      ev.Device,
			ErrorCode:   ev.ErrorCode,
		}

	case EventDone:
		status := ev.Status
		if status == "" {
			status = api.StatusCompleted
		}
		r.state.Status = status
		r.state.CanStart = true
		if ev.Tasks != nil {
			r.state.Tasks = append([]api.TrainingTask(nil), ev.Tasks...)
		}
		if ev.FileStatuses != nil {
			r.state.FileStatuses = append([]api.DataFileStatus(nil), ev.FileStatuses...)
		}
		if status == api.StatusFailed && ev.ErrorCode != "" {
			r.state.LastError = ev.ErrorCode
		}

	case EventError:
		// Transport-level failure reported by the channel itself; the job
		// status is not affected.
		r.state.LastError = ev.Message

	default:
		r.mu.Unlock()
		return
	}
	st := r.snapshotLocked()
	fn := r.onChange
	r.mu.Unlock()

	r.notify(st, fn)
}

// Start launches a new training job. Before the request is issued the last
// error and task list are cleared and the starting flag raised, so the UI
// can disable the start control during the round trip. On failure the
// backend error code (or a fallback) lands in LastError and CanStart keeps
// its previous value.
func (r *Reconciler) Start(ctx context.Context, req api.StartTrainingRequest) error {
	r.mu.Lock()
	r.state.LastError = ""
	r.state.Tasks = nil
	r.state.IsStarting = true
	st := r.snapshotLocked()
	fn := r.onChange
	slug := r.slug
	r.mu.Unlock()
	r.notify(st, fn)

	resp, err := r.backend.StartTraining(ctx, slug, req)

	r.mu.Lock()
	r.state.IsStarting = false
	if err != nil {
		r.state.LastError = api.Code(err)
		st = r.snapshotLocked()
		fn = r.onChange
		r.mu.Unlock()
		r.notify(st, fn)
		return err
	}
	r.state.JobID = resp.JobID
	r.state.Status = resp.Status
	r.state.CanStart = false
	st = r.snapshotLocked()
	fn = r.onChange
	ensure := r.ensureChannel
	r.mu.Unlock()

	r.notify(st, fn)
	if ensure != nil {
		ensure()
	}
	return nil
}

// Cancel asks the backend to stop the running job. The authoritative status
// transition arrives over the live channel, so no local status change
// happens here. Cancelling when no job runs is an expected condition and is
// not surfaced as an error.
func (r *Reconciler) Cancel(ctx context.Context) error {
	r.mu.Lock()
	slug := r.slug
	r.mu.Unlock()

	err := r.backend.CancelTraining(ctx, slug)
	if err == nil {
		return nil
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode == api.ErrCodeTrainingNotRunning {
		log.Printf("cancel for %s: no job running", slug)
		return nil
	}

	r.mu.Lock()
	r.state.LastError = api.Code(err)
	st := r.snapshotLocked()
	fn := r.onChange
	r.mu.Unlock()
	r.notify(st, fn)
	return err
}

// ClearError clears LastError without touching any other field.
func (r *Reconciler) ClearError() {
	r.mu.Lock()
	r.state.LastError = ""
	st := r.snapshotLocked()
	fn := r.onChange
	r.mu.Unlock()
	r.notify(st, fn)
}

// SetConnected records channel liveness for diagnostics.
func (r *Reconciler) SetConnected(connected bool) {
	r.mu.Lock()
	if r.state.Connected == connected {
		r.mu.Unlock()
		return
	}
	r.state.Connected = connected
	st := r.snapshotLocked()
	fn := r.onChange
	r.mu.Unlock()
	r.notify(st, fn)
}
