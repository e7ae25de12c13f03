package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"emsi-preparator/internal/domain"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	msgGenerateFailed = "Failed to generate quiz. Please try again."
	msgSubmitFailed   = "Failed to submit quiz for grading. Please discard it and start a new one."
	msgStoreFailed    = "Error storing quiz. Please try again."
	msgStored         = "Quiz stored successfully!"
)

// View is what the UI shell renders for a session.
type View struct {
	Status         domain.Status         `json:"status"`
	Pending        bool                  `json:"pending"`
	Topic          string                `json:"topic,omitempty"`
	Difficulty     domain.Difficulty     `json:"difficulty,omitempty"`
	Question       *domain.Question      `json:"question,omitempty"`
	QuestionNumber int                   `json:"questionNumber,omitempty"`
	TotalQuestions int                   `json:"totalQuestions,omitempty"`
	Progress       float64               `json:"progress"`
	Result         *domain.GradingResult `json:"result,omitempty"`
	Score          *int                  `json:"score,omitempty"`
	Error          string                `json:"error,omitempty"`
	Notice         string                `json:"notice,omitempty"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

// Session drives one quiz attempt at a time for one user. Every
// state-changing call is rejected with domain.ErrOperationPending while a
// remote call of the same session is outstanding.
type Session struct {
	id       string
	api      QuizAPI
	identity *IdentityProvider
	archive  AttemptArchiver
	history  HistoryRepository
	log      logrus.FieldLogger
	now      func() time.Time

	mu          sync.Mutex
	state       State
	pending     string
	lastErr     error
	errMsg      string
	notice      string
	subscribers map[chan View]struct{}
}

// SessionOption configures optional collaborators.
type SessionOption func(*Session)

// WithArchive keeps a local copy of every stored attempt.
func WithArchive(archive AttemptArchiver) SessionOption {
	return func(s *Session) { s.archive = archive }
}

// WithHistory invalidates the user's cached history after a store.
func WithHistory(history HistoryRepository) SessionOption {
	return func(s *Session) { s.history = history }
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

func NewSession(api QuizAPI, identity *IdentityProvider, log logrus.FieldLogger, opts ...SessionOption) *Session {
	id := uuid.NewString()
	s := &Session{
		id:          id,
		api:         api,
		identity:    identity,
		log:         log.WithField("quiz_session", id),
		now:         time.Now,
		state:       Configuring{},
		subscribers: make(map[chan View]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID identifies the session in logs and to websocket clients.
func (s *Session) ID() string { return s.id }

// State returns the current state value.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error of the last failed operation, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Generate requests a new quiz and starts the attempt.
func (s *Session) Generate(ctx context.Context, cfg domain.QuizConfiguration) error {
	s.mu.Lock()
	if err := s.checkIdleLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.state.(Configuring); !ok {
		err := s.invalidLocked("generate")
		s.mu.Unlock()
		return err
	}
	if err := cfg.Validate(); err != nil {
		s.failLocked(err, "")
		s.broadcastLocked()
		s.mu.Unlock()
		return err
	}
	user, ok := s.identity.Current()
	if !ok {
		s.failLocked(domain.ErrNoIdentity, "")
		s.broadcastLocked()
		s.mu.Unlock()
		return domain.ErrNoIdentity
	}
	s.beginLocked("generate")
	s.mu.Unlock()

	questions, err := s.api.GenerateQuiz(ctx, cfg)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = ""
	if err == nil {
		var next State
		next, err = Configuring{}.start(user.ID, cfg, questions)
		if err == nil {
			s.state = next
			s.log.WithFields(logrus.Fields{"topic": cfg.Topic, "questions": len(questions)}).Info("quiz generated")
			s.broadcastLocked()
			return nil
		}
	}
	err = fmt.Errorf("failed to generate quiz: %w", err)
	s.log.WithError(err).Warn("generate failed")
	s.failLocked(err, msgGenerateFailed)
	s.broadcastLocked()
	return err
}

// Answer records key for the current question. Answering the last question
// submits the attempt for grading and returns once grading has completed.
func (s *Session) Answer(ctx context.Context, key string) error {
	return s.answer(ctx, "", key)
}

// AnswerQuestion is Answer for clients that name the question they answered.
// It fails with domain.ErrStaleAnswer when that question is no longer current.
func (s *Session) AnswerQuestion(ctx context.Context, questionID domain.ID, key string) error {
	return s.answer(ctx, questionID, key)
}

func (s *Session) answer(ctx context.Context, questionID domain.ID, key string) error {
	s.mu.Lock()
	if err := s.checkIdleLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	current, ok := s.state.(InProgress)
	if !ok {
		err := s.invalidLocked("answer")
		s.mu.Unlock()
		return err
	}
	if questionID != "" && current.Current().ID != questionID {
		err := fmt.Errorf("answer for %s while %s is current: %w", questionID, current.Current().ID, domain.ErrStaleAnswer)
		s.mu.Unlock()
		return err
	}
	next, err := current.answer(key)
	if err != nil {
		s.failLocked(err, "")
		s.broadcastLocked()
		s.mu.Unlock()
		return err
	}
	s.state = next
	s.clearLocked()
	awaiting, done := next.(AwaitingGrading)
	if !done {
		s.broadcastLocked()
		s.mu.Unlock()
		return nil
	}
	s.beginLocked("submit")
	s.mu.Unlock()

	// Grading advances server-side statistics, so the call is not abandoned
	// when the caller goes away; the transport timeout still applies.
	result, err := s.api.SubmitForGrading(context.WithoutCancel(ctx), awaiting.UserID, awaiting.submission())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = ""
	if err != nil {
		err = fmt.Errorf("failed to submit quiz: %w", err)
		s.log.WithError(err).Warn("grading failed")
		s.state = awaiting.fail(err)
		s.failLocked(err, msgSubmitFailed)
		s.broadcastLocked()
		return err
	}
	graded := awaiting.grade(result)
	s.state = graded
	s.log.WithField("score", result.ScorePercentage).Info("quiz graded")
	s.broadcastLocked()
	return nil
}

// Persist stores the graded attempt for history. It may be called again
// after a failure or a success; each call sends the same records.
func (s *Session) Persist(ctx context.Context) (domain.Acknowledgment, error) {
	s.mu.Lock()
	if err := s.checkIdleLocked(); err != nil {
		s.mu.Unlock()
		return domain.Acknowledgment{}, err
	}
	graded, ok := s.state.(Graded)
	if !ok {
		s.mu.Unlock()
		return domain.Acknowledgment{}, fmt.Errorf("persist in %s: %w", s.state.Status(), domain.ErrNotGraded)
	}
	req := graded.storeRequest()
	s.beginLocked("persist")
	s.mu.Unlock()

	ack, err := s.api.StoreAttempt(ctx, req)

	s.mu.Lock()
	s.pending = ""
	if err != nil {
		err = fmt.Errorf("failed to store quiz: %w", err)
		s.log.WithError(err).Warn("store failed")
		s.failLocked(err, msgStoreFailed)
		s.broadcastLocked()
		s.mu.Unlock()
		return domain.Acknowledgment{}, err
	}
	if ack.Message == "" {
		ack.Message = msgStored
	}
	s.clearLocked()
	s.notice = ack.Message
	s.broadcastLocked()
	s.mu.Unlock()

	s.afterStore(ctx, graded, req)
	return ack, nil
}

// Discard drops the current attempt and returns to Configuring.
func (s *Session) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIdleLocked(); err != nil {
		return err
	}
	if _, ok := s.state.(AwaitingGrading); ok {
		return s.invalidLocked("discard")
	}
	s.state = Configuring{}
	s.clearLocked()
	s.broadcastLocked()
	return nil
}

// DismissError clears the displayed error message.
func (s *Session) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = ""
	s.notice = ""
	s.broadcastLocked()
}

// Snapshot returns the current view.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Subscribe returns a channel receiving a view after every change, starting
// with the current one. The caller must invoke cancel to avoid leaks.
func (s *Session) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- s.viewLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) afterStore(ctx context.Context, graded Graded, req domain.StoreRequest) {
	if s.history != nil {
		if err := s.history.Invalidate(ctx, req.UserID); err != nil {
			s.log.WithError(err).Warn("invalidate history cache")
		}
	}
	if s.archive == nil {
		return
	}
	err := s.archive.Archive(ctx, domain.ArchivedAttempt{
		ID:         domain.ID(uuid.NewString()),
		UserID:     req.UserID,
		Topic:      req.Topic,
		Difficulty: graded.Config.Difficulty,
		Score:      graded.Result.ScorePercentage,
		CreatedAt:  s.now(),
		Records:    req.Records,
	})
	if err != nil {
		s.log.WithError(err).Warn("archive attempt")
	}
}

func (s *Session) checkIdleLocked() error {
	if s.pending != "" {
		return fmt.Errorf("%s outstanding: %w", s.pending, domain.ErrOperationPending)
	}
	return nil
}

func (s *Session) invalidLocked(op string) error {
	return fmt.Errorf("%s in %s: %w", op, s.state.Status(), domain.ErrInvalidTransition)
}

func (s *Session) beginLocked(op string) {
	s.pending = op
	s.clearLocked()
	s.broadcastLocked()
}

func (s *Session) failLocked(err error, fallback string) {
	s.lastErr = err
	s.errMsg = domain.MessageOr(err, fallback)
	if s.errMsg == "" {
		s.errMsg = err.Error()
	}
	s.notice = ""
}

func (s *Session) clearLocked() {
	s.lastErr = nil
	s.errMsg = ""
	s.notice = ""
}

func (s *Session) broadcastLocked() {
	v := s.viewLocked()
	for ch := range s.subscribers {
		select {
		case ch <- v:
		default:
			// drop the oldest view so a slow reader still sees the latest one
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

func (s *Session) viewLocked() View {
	v := View{
		Status:    s.state.Status(),
		Pending:   s.pending != "",
		Error:     s.errMsg,
		Notice:    s.notice,
		UpdatedAt: s.now(),
	}
	switch st := s.state.(type) {
	case InProgress:
		q := st.Current()
		v.Topic, v.Difficulty = st.Config.Topic, st.Config.Difficulty
		v.Question = &q
		v.QuestionNumber = st.Index + 1
		v.TotalQuestions = len(st.Questions)
		v.Progress = float64(st.Index+1) / float64(len(st.Questions))
	case AwaitingGrading:
		v.Topic, v.Difficulty = st.Config.Topic, st.Config.Difficulty
		v.TotalQuestions = len(st.Questions)
		v.Progress = 1
	case Graded:
		result := st.Result
		score := result.DisplayScore()
		v.Topic, v.Difficulty = st.Config.Topic, st.Config.Difficulty
		v.TotalQuestions = len(st.Questions)
		v.Progress = 1
		v.Result = &result
		v.Score = &score
	case Failed:
		v.Topic, v.Difficulty = st.Config.Topic, st.Config.Difficulty
		v.TotalQuestions = len(st.Questions)
	}
	return v
}
