// Package session keeps a race-free local view of one project's training
// job in sync with the backend. It merges a one-shot status snapshot with
// the push events of the live channel, reconnects after transient
// disconnects, and guarantees that nothing from a superseded lifetime
// (a previous project, a closed connection, a stale fetch) can mutate
// current state.
package session

import (
	"context"

	"github.com/ollaforge/forgecli/api"
)

// LogEntry is a diagnostic line pushed by the backend over the live channel.
// Log events feed diagnostics only and never touch session state.
type LogEntry struct {
	Timestamp string
	Message   string
}

// Session binds a Reconciler and a ChannelManager for one project.
type Session struct {
	slug  string
	rec   *Reconciler
	ch    *ChannelManager
	onLog func(LogEntry)
}

// Option configures a Session.
type Option func(*Session)

// WithOnChange registers the state observer.
func WithOnChange(fn func(State)) Option {
	return func(s *Session) { s.rec.SetOnChange(fn) }
}

// WithOnLog registers the consumer for backend log lines.
func WithOnLog(fn func(LogEntry)) Option {
	return func(s *Session) { s.onLog = fn }
}

// New creates a session for one project. The channel is not opened until
// Open is called.
func New(client *api.Client, slug string, chOpts []ChannelOption, opts ...Option) *Session {
	s := &Session{
		slug: slug,
		rec:  NewReconciler(client, slug),
	}
	urlFn := func() (string, error) {
		return client.WebSocketURL(slug)
	}
	s.ch = NewChannelManager(urlFn, s.route, s.rec.SetConnected, chOpts...)
	s.rec.SetEnsureChannel(s.ch.Connect)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) route(ev Event) {
	if ev.Type == EventLog {
		if s.onLog != nil {
			s.onLog(LogEntry{Timestamp: ev.Timestamp, Message: ev.Message})
		}
		return
	}
	s.rec.ApplyEvent(ev)
}

// Open fetches the initial snapshot and then opens the live channel. The
// snapshot fetch settles first, but its failure never blocks the connection
// attempt.
func (s *Session) Open(ctx context.Context) {
	s.rec.LoadSnapshot(ctx)
	s.ch.Connect()
}

// Close tears the session down: reconnection is disabled, any pending timer
// cleared, the connection closed, and in-flight snapshot results
// invalidated. Safe to call more than once.
func (s *Session) Close() {
	s.rec.Invalidate()
	s.ch.Disconnect(true)
}

// Slug returns the project identifier this session is bound to.
func (s *Session) Slug() string { return s.slug }

// State returns a snapshot of the reconciled session state.
func (s *Session) State() State { return s.rec.State() }

// Start launches a new training job. See Reconciler.Start.
func (s *Session) Start(ctx context.Context, req api.StartTrainingRequest) error {
	return s.rec.Start(ctx, req)
}

// Cancel requests cancellation of the running job. See Reconciler.Cancel.
func (s *Session) Cancel(ctx context.Context) error {
	return s.rec.Cancel(ctx)
}

// ClearError clears the last surfaced error.
func (s *Session) ClearError() { s.rec.ClearError() }

// IsConnected reports live-channel connectivity.
func (s *Session) IsConnected() bool { return s.ch.IsConnected() }
