package analyzer

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"iganalyzer/internal/worker"
	errs "iganalyzer/pkg/errors"
	"iganalyzer/pkg/instagram"
	"iganalyzer/pkg/logger"
	"iganalyzer/pkg/session"
)

// Result is the outcome of an Analyze call
type Result struct {
	SessionID string
	Username  string
	Status    session.Status
	// Cached is set when a completed session was reused; Session then
	// carries its data.
	Cached  bool
	Session *session.Session
	Message string
}

// Messages returned to clients
const (
	MessageStarted    = "Analysis started in background. Please wait..."
	MessageInProgress = "Analysis already in progress"
	MessageCached     = "Using cached session data"
)

// ErrInvalidURL is returned for URLs that do not name a profile
var ErrInvalidURL = errs.New(errs.ErrorTypeParsing, http.StatusBadRequest, "Invalid Instagram URL")

// Service is the entry point shared by the HTTP API and the CLI. It makes
// sure at most one job runs per session.
type Service struct {
	sessions *session.Store
	runner   *Runner
	pool     Submitter
	logger   logger.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewService creates a Service that queues jobs on pool
func NewService(sessions *session.Store, runner *Runner, pool Submitter, log logger.Logger) *Service {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Service{
		sessions: sessions,
		runner:   runner,
		pool:     pool,
		logger:   log,
		inflight: make(map[string]struct{}),
	}
}

// Analyze resolves the session for rawURL and starts a background job when
// the session has no data yet. existingID may be empty.
func (s *Service) Analyze(ctx context.Context, rawURL, existingID string) (*Result, error) {
	username, ok := instagram.ExtractUsername(rawURL)
	if !ok {
		return nil, ErrInvalidURL
	}

	id := s.sessions.CreateOrGet(username, existingID)
	sess, ok := s.sessions.Get(id, session.Renew)
	if !ok {
		return nil, fmt.Errorf("failed to create session for %s", username)
	}

	switch sess.Status {
	case session.StatusCompleted:
		s.logger.InfoWithFields("Returning cached session data", map[string]interface{}{
			"session_id": id,
			"username":   username,
		})
		return &Result{SessionID: id, Username: username, Status: sess.Status, Cached: true, Session: sess, Message: MessageCached}, nil
	case session.StatusProcessing:
		return &Result{SessionID: id, Username: username, Status: sess.Status, Message: MessageInProgress}, nil
	case session.StatusFailed:
		// a failed session is replaced, not retried in place
		s.sessions.Cleanup(id)
		id = s.sessions.CreateOrGet(username, "")
	}

	started, err := s.start(id, username)
	if err != nil {
		return nil, err
	}
	msg := MessageStarted
	if !started {
		msg = MessageInProgress
	}
	return &Result{SessionID: id, Username: username, Status: session.StatusProcessing, Message: msg}, nil
}

// start queues a job for id unless one is already queued or running
func (s *Service) start(id, username string) (bool, error) {
	s.mu.Lock()
	if _, running := s.inflight[id]; running {
		s.mu.Unlock()
		return false, nil
	}
	s.inflight[id] = struct{}{}
	s.mu.Unlock()

	err := s.pool.Submit(worker.Task{
		Name: "analyze:" + id,
		Run: func(ctx context.Context) {
			defer s.finish(id)
			s.runner.Run(ctx, id, username, s.runner.PostLimit())
		},
	})
	if err != nil {
		s.finish(id)
		s.logger.WithError(err).WarnWithFields("Failed to queue analysis job", map[string]interface{}{
			"session_id": id,
		})
		s.runner.fail(id, "Server is busy, please try again shortly")
		return false, errs.Wrap(errs.ErrorTypeUnknown, err, "Server is busy, please try again shortly")
	}
	return true, nil
}

func (s *Service) finish(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// InFlight reports whether a job for id is queued or running
func (s *Service) InFlight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[id]
	return ok
}

// AnalyzeAndWait runs a job in the calling goroutine and returns the final
// session. Used by the CLI.
func (s *Service) AnalyzeAndWait(ctx context.Context, rawURL string, limit int) (*session.Session, error) {
	username, ok := instagram.ExtractUsername(rawURL)
	if !ok {
		return nil, ErrInvalidURL
	}
	id := s.sessions.CreateOrGet(username, "")

	s.mu.Lock()
	s.inflight[id] = struct{}{}
	s.mu.Unlock()
	defer s.finish(id)

	s.runner.Run(ctx, id, username, limit)

	sess, ok := s.sessions.Get(id, session.Peek)
	if !ok {
		return nil, fmt.Errorf("session %s disappeared", id)
	}
	return sess, nil
}

// RecoverInterrupted fails sessions that were loaded in a non-terminal
// state but have no job, which happens after a restart. Returns how many
// were marked.
func (s *Service) RecoverInterrupted() int {
	marked := 0
	for _, sess := range s.sessions.List() {
		if sess.Status.Terminal() || s.InFlight(sess.ID) {
			continue
		}
		ok := s.sessions.Update(sess.ID, func(u *session.Session) {
			u.Status = session.StatusFailed
			u.Error = "Analysis interrupted by restart"
		})
		if ok {
			marked++
		}
	}
	if marked > 0 {
		s.logger.InfoWithFields("Marked interrupted sessions as failed", map[string]interface{}{
			"count": marked,
		})
	}
	return marked
}
