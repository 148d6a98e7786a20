package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ollaforge/forgecli/api"
)

type fakeBackend struct {
	mu sync.Mutex

	statusFn func(ctx context.Context, slug string) (*api.TrainingStatusResponse, error)
	startFn  func(ctx context.Context, slug string, req api.StartTrainingRequest) (*api.StartTrainingResponse, error)
	cancelFn func(ctx context.Context, slug string) error

	startCalls  int
	cancelCalls int
}

func (f *fakeBackend) TrainingStatus(ctx context.Context, slug string) (*api.TrainingStatusResponse, error) {
	if f.statusFn != nil {
		return f.statusFn(ctx, slug)
	}
	return &api.TrainingStatusResponse{Status: api.StatusIdle, CanStart: true}, nil
}

func (f *fakeBackend) StartTraining(ctx context.Context, slug string, req api.StartTrainingRequest) (*api.StartTrainingResponse, error) {
	f.mu.Lock()
	f.startCalls++
	f.mu.Unlock()
	if f.startFn != nil {
		return f.startFn(ctx, slug, req)
	}
	return &api.StartTrainingResponse{JobID: "job-1", Status: api.StatusStarting}, nil
}

func (f *fakeBackend) CancelTraining(ctx context.Context, slug string) error {
	f.mu.Lock()
	f.cancelCalls++
	f.mu.Unlock()
	if f.cancelFn != nil {
		return f.cancelFn(ctx, slug)
	}
	return nil
}

func TestReconcilerInitialState(t *testing.T) {
	r := NewReconciler(&fakeBackend{}, "demo")

	st := r.State()
	if st.Status != api.StatusIdle {
		t.Fatalf("Status = %v, want %v", st.Status, api.StatusIdle)
	}
	if !st.CanStart {
		t.Fatal("expected CanStart on a fresh session")
	}
}

func TestReconcilerLoadSnapshotReplacesState(t *testing.T) {
	backend := &fakeBackend{
		statusFn: func(ctx context.Context, slug string) (*api.TrainingStatusResponse, error) {
			return &api.TrainingStatusResponse{
				JobID:    "job-7",
				Status:   api.StatusTraining,
				CanStart: false,
				Progress: api.TrainingProgress{
					Progress:    42.5,
					CurrentStep: 85,
					TotalSteps:  200,
					Device:      api.DeviceCUDA,
					Tasks: []api.TrainingTask{
						{TaskID: "train", Status: api.TaskInProgress, Progress: 42},
					},
				},
			}, nil
		},
	}
	r := NewReconciler(backend, "demo")

	r.LoadSnapshot(context.Background())

	st := r.State()
	if st.Status != api.StatusTraining {
		t.Fatalf("Status = %v, want %v", st.Status, api.StatusTraining)
	}
	if st.JobID != "job-7" {
		t.Fatalf("JobID = %q, want job-7", st.JobID)
	}
	if st.CanStart {
		t.Fatal("expected CanStart to be false while training")
	}
	if st.Progress.Percent != 42.5 || st.Progress.CurrentStep != 85 || st.Progress.TotalSteps != 200 {
		t.Fatalf("Progress = %+v", st.Progress)
	}
	if len(st.Tasks) != 1 || st.Tasks[0].TaskID != "train" {
		t.Fatalf("Tasks = %+v", st.Tasks)
	}
}

func TestReconcilerStaleSnapshotIsDiscarded(t *testing.T) {
	fetching := make(chan struct{})
	release := make(chan struct{})
	backend := &fakeBackend{
		statusFn: func(ctx context.Context, slug string) (*api.TrainingStatusResponse, error) {
			close(fetching)
			<-release
			return &api.TrainingStatusResponse{
				JobID:  "stale-job",
				Status: api.StatusTraining,
			}, nil
		},
	}
	r := NewReconciler(backend, "demo")

	done := make(chan struct{})
	go func() {
		r.LoadSnapshot(context.Background())
		close(done)
	}()

	<-fetching
	r.Invalidate()
	close(release)
	<-done

	st := r.State()
	if st.JobID == "stale-job" {
		t.Fatal("stale snapshot was applied after Invalidate")
	}
	if st.Status != api.StatusIdle {
		t.Fatalf("Status = %v, want idle", st.Status)
	}
}

func TestReconcilerSnapshotFailureIsSilent(t *testing.T) {
	backend := &fakeBackend{
		statusFn: func(ctx context.Context, slug string) (*api.TrainingStatusResponse, error) {
			return nil, errors.New("connection refused")
		},
	}
	r := NewReconciler(backend, "demo")

	r.LoadSnapshot(context.Background())

	st := r.State()
	if st.LastError != "" {
		t.Fatalf("LastError = %q, want empty after snapshot failure", st.LastError)
	}
	if st.Status != api.StatusIdle {
		t.Fatalf("Status = %v, want idle", st.Status)
	}
}

func TestReconcilerApplyEventReplacesTaskListWholesale(t *testing.T) {
	r := NewReconciler(&fakeBackend{}, "demo")

	r.ApplyEvent(Event{
		Type:   EventProgress,
		JobID:  "job-1",
		Status: api.StatusTraining,
		Tasks: []api.TrainingTask{
			{TaskID: "detect_device", Status: api.TaskCompleted, Progress: 100},
			{TaskID: "import_libraries", Status: api.TaskInProgress, Progress: 10},
		},
	})
	r.ApplyEvent(Event{
		Type:   EventProgress,
		JobID:  "job-1",
		Status: api.StatusTraining,
		Tasks: []api.TrainingTask{
			{TaskID: "train", Status: api.TaskInProgress, Progress: 55},
		},
	})

	st := r.State()
	if len(st.Tasks) != 1 {
		t.Fatalf("len(Tasks) = %d, want 1 (list must be replaced, not merged)", len(st.Tasks))
	}
	if st.Tasks[0].TaskID != "train" {
		t.Fatalf("Tasks[0].TaskID = %q, want train", st.Tasks[0].TaskID)
	}
}

func TestReconcilerApplyEventKeepsTasksWhenAbsent(t *testing.T) {
	r := NewReconciler(&fakeBackend{}, "demo")

	r.ApplyEvent(Event{
		Type:   EventProgress,
		Status: api.StatusTraining,
		Tasks:  []api.TrainingTask{{TaskID: "train", Status: api.TaskInProgress}},
	})
	r.ApplyEvent(Event{
		Type:        EventProgress,
		Status:      api.StatusTraining,
		Progress:    12,
		CurrentStep: 24,
		TotalSteps:  200,
	})

	st := r.State()
	if len(st.Tasks) != 1 {
		t.Fatalf("len(Tasks) = %d, want 1 (absent task list must not clear state)", len(st.Tasks))
	}
	if st.Progress.CurrentStep != 24 {
		t.Fatalf("CurrentStep = %d, want 24", st.Progress.CurrentStep)
	}
}

func TestReconcilerDoneEventForcesCanStart(t *testing.T) {
	r := NewReconciler(&fakeBackend{}, "demo")

	r.ApplyEvent(Event{Type: EventStatus, Status: api.StatusTraining, CanStart: false})
	r.ApplyEvent(Event{Type: EventDone, Status: api.StatusFailed, ErrorCode: api.ErrCodeTrainingFailed})

	st := r.State()
	if st.Status != api.StatusFailed {
		t.Fatalf("Status = %v, want failed", st.Status)
	}
	if !st.CanStart {
		t.Fatal("done event must re-enable starting even on failure")
	}
	if st.LastError != api.ErrCodeTrainingFailed {
		t.Fatalf("LastError = %q, want %q", st.LastError, api.ErrCodeTrainingFailed)
	}
}

func TestReconcilerDoneEventDefaultsToCompleted(t *testing.T) {
	r := NewReconciler(&fakeBackend{}, "demo")

	r.ApplyEvent(Event{Type: EventDone})

	st := r.State()
	if st.Status != api.StatusCompleted {
		t.Fatalf("Status = %v, want completed", st.Status)
	}
	if !st.CanStart {
		t.Fatal("expected CanStart after completion")
	}
}

func TestReconcilerUnknownEventKindIsIgnored(t *testing.T) {
	r := NewReconciler(&fakeBackend{}, "demo")

	var notified int
	r.SetOnChange(func(State) { notified++ })

	r.ApplyEvent(Event{Type: "heartbeat"})

	if notified != 0 {
		t.Fatalf("onChange fired %d times for an unknown event kind", notified)
	}
	st := r.State()
	if st.Status != api.StatusIdle {
		t.Fatalf("Status = %v, want idle", st.Status)
	}
}

func TestReconcilerStartOptimisticallyResets(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	backend := &fakeBackend{
		startFn: func(ctx context.Context, slug string, req api.StartTrainingRequest) (*api.StartTrainingResponse, error) {
			close(started)
			<-release
			return &api.StartTrainingResponse{JobID: "job-9", Status: api.StatusStarting}, nil
		},
	}
	r := NewReconciler(backend, "demo")
	r.ApplyEvent(Event{Type: EventDone, Status: api.StatusFailed, ErrorCode: api.ErrCodeTrainingFailed})
	r.ApplyEvent(Event{Type: EventStatus, Status: api.StatusFailed, CanStart: true,
		Tasks: []api.TrainingTask{{TaskID: "train", Status: api.TaskFailed}}})

	done := make(chan error, 1)
	go func() {
		done <- r.Start(context.Background(), api.StartTrainingRequest{ModelName: "llama3.2:3b"})
	}()

	<-started
	st := r.State()
	if st.LastError != "" {
		t.Fatalf("LastError = %q, want cleared before the request settles", st.LastError)
	}
	if len(st.Tasks) != 0 {
		t.Fatalf("len(Tasks) = %d, want 0 before the request settles", len(st.Tasks))
	}
	if !st.IsStarting {
		t.Fatal("expected IsStarting while the request is in flight")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	st = r.State()
	if st.IsStarting {
		t.Fatal("IsStarting still set after the request settled")
	}
	if st.JobID != "job-9" || st.Status != api.StatusStarting {
		t.Fatalf("state after start = %+v", st)
	}
	if st.CanStart {
		t.Fatal("expected CanStart to be false after a successful start")
	}
}

func TestReconcilerStartFailureUsesBackendCode(t *testing.T) {
	backend := &fakeBackend{
		startFn: func(ctx context.Context, slug string, req api.StartTrainingRequest) (*api.StartTrainingResponse, error) {
			return nil, &api.APIError{StatusCode: 409, ErrorCode: api.ErrCodeTrainingAlreadyRunning}
		},
	}
	r := NewReconciler(backend, "demo")

	if err := r.Start(context.Background(), api.StartTrainingRequest{ModelName: "m"}); err == nil {
		t.Fatal("expected Start to return the backend error")
	}

	st := r.State()
	if st.LastError != api.ErrCodeTrainingAlreadyRunning {
		t.Fatalf("LastError = %q, want %q", st.LastError, api.ErrCodeTrainingAlreadyRunning)
	}
	if st.IsStarting {
		t.Fatal("IsStarting still set after a failed start")
	}
	if !st.CanStart {
		t.Fatal("CanStart must keep its previous value on a failed start")
	}
}

func TestReconcilerStartFailureFallsBackToMessage(t *testing.T) {
	backend := &fakeBackend{
		startFn: func(ctx context.Context, slug string, req api.StartTrainingRequest) (*api.StartTrainingResponse, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}
	r := NewReconciler(backend, "demo")

	_ = r.Start(context.Background(), api.StartTrainingRequest{ModelName: "m"})

	st := r.State()
	if st.LastError != "dial tcp: connection refused" {
		t.Fatalf("LastError = %q, want the transport message", st.LastError)
	}
}

func TestReconcilerStartEnsuresChannel(t *testing.T) {
	r := NewReconciler(&fakeBackend{}, "demo")

	ensured := 0
	r.SetEnsureChannel(func() { ensured++ })

	if err := r.Start(context.Background(), api.StartTrainingRequest{ModelName: "m"}); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if ensured != 1 {
		t.Fatalf("ensureChannel called %d times, want 1", ensured)
	}
}

func TestReconcilerCancelNotRunningIsSoft(t *testing.T) {
	backend := &fakeBackend{
		cancelFn: func(ctx context.Context, slug string) error {
			return &api.APIError{StatusCode: 409, ErrorCode: api.ErrCodeTrainingNotRunning}
		},
	}
	r := NewReconciler(backend, "demo")

	if err := r.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel returned error for a not-running job: %v", err)
	}
	st := r.State()
	if st.LastError != "" {
		t.Fatalf("LastError = %q, want empty for the not-running case", st.LastError)
	}
}

func TestReconcilerCancelOtherErrorsSurface(t *testing.T) {
	backend := &fakeBackend{
		cancelFn: func(ctx context.Context, slug string) error {
			return &api.APIError{StatusCode: 500, ErrorCode: api.ErrCodeTrainingFailed}
		},
	}
	r := NewReconciler(backend, "demo")

	if err := r.Cancel(context.Background()); err == nil {
		t.Fatal("expected Cancel to return the backend error")
	}
	st := r.State()
	if st.LastError != api.ErrCodeTrainingFailed {
		t.Fatalf("LastError = %q, want %q", st.LastError, api.ErrCodeTrainingFailed)
	}
}

func TestReconcilerClearError(t *testing.T) {
	r := NewReconciler(&fakeBackend{}, "demo")
	r.ApplyEvent(Event{Type: EventError, Message: "channel gone"})

	if st := r.State(); st.LastError != "channel gone" {
		t.Fatalf("LastError = %q, want channel gone", st.LastError)
	}

	r.ClearError()
	if st := r.State(); st.LastError != "" {
		t.Fatalf("LastError = %q, want empty after ClearError", st.LastError)
	}
}

func TestReconcilerStateSnapshotIsDetached(t *testing.T) {
	r := NewReconciler(&fakeBackend{}, "demo")
	r.ApplyEvent(Event{
		Type:   EventStatus,
		Status: api.StatusTraining,
		Tasks:  []api.TrainingTask{{TaskID: "train", Status: api.TaskInProgress}},
	})

	st := r.State()
	st.Tasks[0].Status = api.TaskFailed

	if got := r.State().Tasks[0].Status; got != api.TaskInProgress {
		t.Fatalf("mutating a snapshot leaked into reconciler state: %v", got)
	}
}

func TestReconcilerOnChangeReceivesEveryMutation(t *testing.T) {
	r := NewReconciler(&fakeBackend{}, "demo")

	var mu sync.Mutex
	var seen []api.TrainingStatus
	r.SetOnChange(func(st State) {
		mu.Lock()
		seen = append(seen, st.Status)
		mu.Unlock()
	})

	r.ApplyEvent(Event{Type: EventStatus, Status: api.StatusStarting})
	r.ApplyEvent(Event{Type: EventStatus, Status: api.StatusTraining})
	r.ApplyEvent(Event{Type: EventDone, Status: api.StatusCompleted})

	mu.Lock()
	defer mu.Unlock()
	want := []api.TrainingStatus{api.StatusStarting, api.StatusTraining, api.StatusCompleted}
	if len(seen) != len(want) {
		t.Fatalf("onChange fired %d times, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen[%d] = %v, want %v", i, seen[i], want[i])
		}
	}
}
