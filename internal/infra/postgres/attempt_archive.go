package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"emsi-preparator/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// dateLayout matches how the quiz API formats attempt dates.
const dateLayout = "2006-01-02"

// AttemptArchive keeps stored attempts in Postgres. It doubles as a history
// loader so history and reports keep working when the API is unreachable.
type AttemptArchive struct {
	pool *pgxpool.Pool
}

func NewAttemptArchive(pool *pgxpool.Pool) *AttemptArchive {
	return &AttemptArchive{pool: pool}
}

func (a *AttemptArchive) Archive(ctx context.Context, attempt domain.ArchivedAttempt) error {
	records, err := json.Marshal(attempt.Records)
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	createdAt := attempt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = a.pool.Exec(ctx, `
		INSERT INTO archived_attempts (id, user_id, topic, difficulty, score, created_at, records)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		attempt.ID.String(), attempt.UserID.String(), attempt.Topic, string(attempt.Difficulty),
		attempt.Score, createdAt, string(records),
	)
	if err != nil {
		return fmt.Errorf("archive attempt: %w", err)
	}
	return nil
}

// FetchHistory lists a user's archived attempts, newest first.
func (a *AttemptArchive) FetchHistory(ctx context.Context, userID domain.ID) ([]domain.HistoryEntry, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT id, topic, created_at, score
		FROM archived_attempts
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []domain.HistoryEntry{}
	for rows.Next() {
		var (
			id        string
			entry     domain.HistoryEntry
			createdAt time.Time
		)
		if err := rows.Scan(&id, &entry.Topic, &createdAt, &entry.Score); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entry.ID = domain.ID(id)
		entry.Date = createdAt.Format(dateLayout)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// FetchAttemptDetail returns the per-question lines of one archived attempt.
func (a *AttemptArchive) FetchAttemptDetail(ctx context.Context, attemptID, userID domain.ID) ([]domain.DetailEntry, error) {
	var raw []byte
	err := a.pool.QueryRow(ctx,
		`SELECT records FROM archived_attempts WHERE id = $1 AND user_id = $2`,
		attemptID.String(), userID.String(),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	var records []domain.StoredQuestion
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("unmarshal attempt: %w", err)
	}
	return detailFromRecords(records), nil
}

func detailFromRecords(records []domain.StoredQuestion) []domain.DetailEntry {
	out := make([]domain.DetailEntry, 0, len(records))
	for _, rec := range records {
		entry := domain.DetailEntry{
			Question:      rec.Question,
			CorrectAnswer: rec.CorrectAnswer,
		}
		if rec.UserResponse != nil {
			entry.UserResponse = *rec.UserResponse
		}
		out = append(out, entry)
	}
	return out
}
