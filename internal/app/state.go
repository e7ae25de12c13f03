package app

import (
	"fmt"

	"emsi-preparator/internal/domain"
)

// State is one of Configuring, InProgress, AwaitingGrading, Graded or Failed.
// Values are immutable; transitions return a new State.
type State interface {
	Status() domain.Status
	isState()
}

// attempt is the data shared by every state after generation.
type attempt struct {
	UserID    domain.ID
	Config    domain.QuizConfiguration
	Questions []domain.Question
	Answers   map[domain.ID]string
}

// Configuring waits for a quiz configuration.
type Configuring struct{}

// InProgress presents Questions[Index] and accepts one answer for it.
type InProgress struct {
	attempt
	Index int
}

// AwaitingGrading holds a complete answer set while the grading call runs.
type AwaitingGrading struct {
	attempt
}

// Graded carries the grading result. Questions have CorrectAnswer filled in.
type Graded struct {
	attempt
	Result domain.GradingResult
}

// Failed is reached when grading could not be completed.
type Failed struct {
	attempt
	Err error
}

func (Configuring) Status() domain.Status     { return domain.StatusConfiguring }
func (InProgress) Status() domain.Status      { return domain.StatusInProgress }
func (AwaitingGrading) Status() domain.Status { return domain.StatusAwaitingGrading }
func (Graded) Status() domain.Status          { return domain.StatusGraded }
func (Failed) Status() domain.Status          { return domain.StatusFailed }

func (Configuring) isState()     {}
func (InProgress) isState()      {}
func (AwaitingGrading) isState() {}
func (Graded) isState()          {}
func (Failed) isState()          {}

// start begins an attempt from freshly generated questions.
func (Configuring) start(userID domain.ID, cfg domain.QuizConfiguration, questions []domain.Question) (State, error) {
	if len(questions) == 0 {
		return nil, domain.ErrEmptyQuiz
	}
	seen := make(map[domain.ID]bool, len(questions))
	for i, q := range questions {
		switch {
		case q.ID == "":
			return nil, fmt.Errorf("question %d has no id: %w", i+1, domain.ErrMalformedQuiz)
		case seen[q.ID]:
			return nil, fmt.Errorf("question id %s repeated: %w", q.ID, domain.ErrMalformedQuiz)
		case len(q.Options) == 0:
			return nil, fmt.Errorf("question %s has no options: %w", q.ID, domain.ErrMalformedQuiz)
		}
		seen[q.ID] = true
	}
	qs := make([]domain.Question, len(questions))
	copy(qs, questions)
	for i := range qs {
		// correct answers are only trusted from grading
		qs[i].CorrectAnswer = ""
	}
	return InProgress{
		attempt: attempt{
			UserID:    userID,
			Config:    cfg,
			Questions: qs,
			Answers:   make(map[domain.ID]string, len(qs)),
		},
		Index: 0,
	}, nil
}

// Current returns the question being presented.
func (s InProgress) Current() domain.Question {
	return s.Questions[s.Index]
}

// answer records key for the current question and advances.
func (s InProgress) answer(key string) (State, error) {
	if s.Index >= len(s.Questions) {
		return nil, fmt.Errorf("answer: %w", domain.ErrInvalidTransition)
	}
	q := s.Questions[s.Index]
	if !q.Options.Has(key) {
		return nil, fmt.Errorf("answer %q for question %s: %w", key, q.ID, domain.ErrUnknownOption)
	}
	if _, done := s.Answers[q.ID]; done {
		return nil, fmt.Errorf("question %s already answered: %w", q.ID, domain.ErrInvalidTransition)
	}

	answers := make(map[domain.ID]string, len(s.Answers)+1)
	for id, k := range s.Answers {
		answers[id] = k
	}
	answers[q.ID] = key

	next := s.attempt
	next.Answers = answers
	if s.Index+1 < len(s.Questions) {
		return InProgress{attempt: next, Index: s.Index + 1}, nil
	}
	return AwaitingGrading{attempt: next}, nil
}

// submission lists the answers in question order.
func (s AwaitingGrading) submission() []domain.Answer {
	out := make([]domain.Answer, 0, len(s.Answers))
	for _, q := range s.Questions {
		if key, ok := s.Answers[q.ID]; ok {
			out = append(out, domain.Answer{QuestionID: q.ID, Key: key})
		}
	}
	return out
}

func (s AwaitingGrading) grade(result domain.GradingResult) Graded {
	questions, corrections := reconcile(s.Questions, s.Answers, result.Corrections)
	result.Corrections = corrections
	next := s.attempt
	next.Questions = questions
	return Graded{attempt: next, Result: result}
}

func (s AwaitingGrading) fail(err error) Failed {
	return Failed{attempt: s.attempt, Err: err}
}

// storeRequest builds the per-question records for the store call.
func (s Graded) storeRequest() domain.StoreRequest {
	records := make([]domain.StoredQuestion, 0, len(s.Questions))
	for _, q := range s.Questions {
		rec := domain.StoredQuestion{
			ID:            q.ID,
			Question:      q.Prompt,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
		}
		if key, ok := s.Answers[q.ID]; ok {
			k := key
			rec.UserResponse = &k
		}
		records = append(records, rec)
	}
	return domain.StoreRequest{
		UserID:  s.UserID,
		Topic:   s.Config.Topic,
		Records: records,
	}
}

// reconcile attaches the grader's corrections to the attempt's questions.
// Corrections are matched by question id, falling back to the prompt text.
// A question without a correction was answered correctly, so its correct
// answer is the recorded one.
func reconcile(questions []domain.Question, answers map[domain.ID]string, corrections []domain.Correction) ([]domain.Question, []domain.Correction) {
	out := make([]domain.Question, len(questions))
	copy(out, questions)
	fixed := make([]domain.Correction, len(corrections))
	copy(fixed, corrections)

	byID := make(map[domain.ID]int, len(out))
	byPrompt := make(map[string]int, len(out))
	for i, q := range out {
		byID[q.ID] = i
		if _, dup := byPrompt[q.Prompt]; !dup {
			byPrompt[q.Prompt] = i
		}
	}

	matched := make(map[int]bool, len(fixed))
	for ci, c := range fixed {
		idx, ok := byID[c.QuestionID]
		if c.QuestionID == "" || !ok {
			idx, ok = byPrompt[c.Question]
		}
		if !ok {
			continue
		}
		fixed[ci].QuestionID = out[idx].ID
		if fixed[ci].Question == "" {
			fixed[ci].Question = out[idx].Prompt
		}
		out[idx].CorrectAnswer = c.CorrectAnswer
		matched[idx] = true
	}
	for i, q := range out {
		if !matched[i] {
			out[i].CorrectAnswer = answers[q.ID]
		}
	}
	return out, fixed
}
