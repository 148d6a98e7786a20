package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ollaforge/forgecli/api"
)

func newSessionTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/projects/demo/train/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.TrainingStatusResponse{
			JobID:    "job-1",
			Status:   api.StatusTraining,
			CanStart: false,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSessionOpenLoadsSnapshotThenConnects(t *testing.T) {
	srv := newSessionTestServer(t)
	client := api.NewClient(srv.URL)
	dialer := newFakeDialer()

	var mu sync.Mutex
	var statuses []api.TrainingStatus
	sess := New(client, "demo",
		[]ChannelOption{WithDialer(dialer.dial), WithChannelLogger(discardLog)},
		WithOnChange(func(st State) {
			mu.Lock()
			statuses = append(statuses, st.Status)
			mu.Unlock()
		}),
	)
	defer sess.Close()

	sess.Open(context.Background())
	dialer.waitConn(t)
	waitFor(t, "channel connection", sess.IsConnected)

	st := sess.State()
	if st.Status != api.StatusTraining || st.JobID != "job-1" {
		t.Fatalf("state = %+v", st)
	}
	if !st.Connected {
		t.Fatal("expected Connected after the channel opened")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) == 0 || statuses[0] != api.StatusTraining {
		t.Fatalf("first observed status = %v, want the snapshot applied before connect", statuses)
	}
}

func TestSessionRoutesLogEventsAwayFromState(t *testing.T) {
	srv := newSessionTestServer(t)
	client := api.NewClient(srv.URL)
	dialer := newFakeDialer()

	var mu sync.Mutex
	var logs []LogEntry
	sess := New(client, "demo",
		[]ChannelOption{WithDialer(dialer.dial), WithChannelLogger(discardLog)},
		WithOnLog(func(entry LogEntry) {
			mu.Lock()
			logs = append(logs, entry)
			mu.Unlock()
		}),
	)
	defer sess.Close()

	sess.Open(context.Background())
	conn := dialer.waitConn(t)
	waitFor(t, "channel connection", sess.IsConnected)

	before := sess.State()

	conn.push(`{"type":"log","timestamp":"12:00:01","message":"epoch 1/3 loss=0.42"}`)

	waitFor(t, "log delivery", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(logs) == 1
	})

	mu.Lock()
	if logs[0].Message != "epoch 1/3 loss=0.42" || logs[0].Timestamp != "12:00:01" {
		t.Fatalf("logs[0] = %+v", logs[0])
	}
	mu.Unlock()

	after := sess.State()
	if after.Status != before.Status || after.JobID != before.JobID || after.LastError != before.LastError {
		t.Fatalf("log event mutated state: before=%+v after=%+v", before, after)
	}
}

func TestSessionCloseSilencesEverything(t *testing.T) {
	srv := newSessionTestServer(t)
	client := api.NewClient(srv.URL)
	dialer := newFakeDialer()

	var mu sync.Mutex
	notifications := 0
	sess := New(client, "demo",
		[]ChannelOption{WithDialer(dialer.dial), WithReconnectDelay(10 * time.Millisecond), WithChannelLogger(discardLog)},
		WithOnChange(func(State) {
			mu.Lock()
			notifications++
			mu.Unlock()
		}),
	)

	sess.Open(context.Background())
	conn := dialer.waitConn(t)
	waitFor(t, "channel connection", sess.IsConnected)

	sess.Close()

	mu.Lock()
	settled := notifications
	mu.Unlock()

	// Events from the superseded connection and the reconnect machinery
	// must both be dead now.
	conn.push(`{"type":"progress","status":"training"}`)
	time.Sleep(60 * time.Millisecond)

	if got := dialer.dialCount(); got != 1 {
		t.Fatalf("dial count = %d, want 1 after Close", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if notifications > settled+1 {
		// One liveness notification for the close itself is fine.
		t.Fatalf("notifications kept arriving after Close: %d -> %d", settled, notifications)
	}
}
