package app

import (
	"context"

	"emsi-preparator/internal/domain"
)

// QuizAPI is the part of the remote quiz service a session talks to.
type QuizAPI interface {
	GenerateQuiz(ctx context.Context, cfg domain.QuizConfiguration) ([]domain.Question, error)
	SubmitForGrading(ctx context.Context, userID domain.ID, answers []domain.Answer) (domain.GradingResult, error)
	StoreAttempt(ctx context.Context, req domain.StoreRequest) (domain.Acknowledgment, error)
}

// AuthAPI authenticates users against the remote service.
type AuthAPI interface {
	Login(ctx context.Context, creds domain.Credentials) (domain.UserIdentity, error)
	Register(ctx context.Context, reg domain.Registration) error
}

// HistoryLoader fetches stored attempts from a backing source (remote API or local archive).
type HistoryLoader interface {
	FetchHistory(ctx context.Context, userID domain.ID) ([]domain.HistoryEntry, error)
	FetchAttemptDetail(ctx context.Context, attemptID, userID domain.ID) ([]domain.DetailEntry, error)
}

// HistoryRepository serves history reads, usually through a cache.
type HistoryRepository interface {
	HistoryLoader
	Invalidate(ctx context.Context, userID domain.ID) error
}

// IdentityStore keeps logged-in identities keyed by session id.
type IdentityStore interface {
	Save(ctx context.Context, sessionID string, identity domain.UserIdentity) error
	Load(ctx context.Context, sessionID string) (domain.UserIdentity, error)
	Delete(ctx context.Context, sessionID string) error
}

// AttemptArchiver keeps a local copy of stored attempts.
type AttemptArchiver interface {
	Archive(ctx context.Context, attempt domain.ArchivedAttempt) error
}
