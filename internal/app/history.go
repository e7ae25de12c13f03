package app

import (
	"context"
	"errors"
	"fmt"

	"emsi-preparator/internal/domain"
	"github.com/sirupsen/logrus"
)

const (
	msgHistoryFailed = "Failed to fetch quiz history."
	msgDetailFailed  = "Failed to fetch quiz details."
)

// HistoryRow is one past attempt as listed to the user.
type HistoryRow struct {
	ID           domain.ID `json:"id"`
	Topic        string    `json:"topic"`
	Date         string    `json:"date"`
	Score        float64   `json:"score"`
	DisplayScore int       `json:"displayScore"`
}

// HistoryService serves the read-only history, report and dashboard views.
type HistoryService struct {
	repo HistoryLoader
	log  logrus.FieldLogger
}

func NewHistoryService(repo HistoryLoader, log logrus.FieldLogger) *HistoryService {
	return &HistoryService{repo: repo, log: log.WithField("component", "history")}
}

// List returns the user's attempts in the order the API returned them.
func (h *HistoryService) List(ctx context.Context, user domain.UserIdentity) ([]HistoryRow, error) {
	if user.ID == "" {
		return nil, domain.ErrNoIdentity
	}
	entries, err := h.repo.FetchHistory(ctx, user.ID)
	if err != nil {
		h.log.WithError(err).WithField("user", user.ID).Warn("history load failed")
		return nil, fmt.Errorf("list history: %w", err)
	}
	rows := make([]HistoryRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, HistoryRow{
			ID:           e.ID,
			Topic:        e.Topic,
			Date:         e.Date,
			Score:        e.Score,
			DisplayScore: domain.RoundScore(e.Score),
		})
	}
	return rows, nil
}

// Report assembles everything needed to export one attempt.
func (h *HistoryService) Report(ctx context.Context, user domain.UserIdentity, attemptID domain.ID) (domain.AttemptReport, error) {
	if user.ID == "" {
		return domain.AttemptReport{}, domain.ErrNoIdentity
	}
	entries, err := h.repo.FetchHistory(ctx, user.ID)
	if err != nil {
		h.log.WithError(err).WithField("user", user.ID).Warn("history load failed")
		return domain.AttemptReport{}, fmt.Errorf("load attempt %s: %w", attemptID, err)
	}
	var (
		meta  domain.HistoryEntry
		found bool
	)
	for _, e := range entries {
		if e.ID == attemptID {
			meta, found = e, true
			break
		}
	}
	if !found {
		return domain.AttemptReport{}, fmt.Errorf("load attempt %s: %w", attemptID, domain.ErrAttemptNotFound)
	}

	details, err := h.repo.FetchAttemptDetail(ctx, attemptID, user.ID)
	if err != nil {
		h.log.WithError(err).WithField("attempt", attemptID).Warn("detail load failed")
		return domain.AttemptReport{}, fmt.Errorf("load attempt %s details: %w", attemptID, err)
	}

	report := domain.AttemptReport{
		AttemptID: attemptID,
		User:      user,
		Topic:     meta.Topic,
		Date:      meta.Date,
		Score:     domain.RoundScore(meta.Score),
		Lines:     make([]domain.ReportLine, 0, len(details)),
	}
	for _, d := range details {
		report.Lines = append(report.Lines, domain.ReportLine{
			Question:      orNotAvailable(d.Question),
			YourAnswer:    orNotAvailable(d.UserResponse),
			CorrectAnswer: orNotAvailable(d.CorrectAnswer),
		})
	}
	return report, nil
}

// Dashboard aggregates the user's history.
func (h *HistoryService) Dashboard(ctx context.Context, user domain.UserIdentity) (Dashboard, error) {
	if user.ID == "" {
		return Dashboard{}, domain.ErrNoIdentity
	}
	entries, err := h.repo.FetchHistory(ctx, user.ID)
	if err != nil {
		h.log.WithError(err).WithField("user", user.ID).Warn("history load failed")
		return Dashboard{}, fmt.Errorf("dashboard: %w", err)
	}
	return BuildDashboard(entries), nil
}

// HistoryMessage is the text shown when List or Dashboard fails.
func HistoryMessage(err error) string {
	return domain.MessageOr(err, msgHistoryFailed)
}

// DetailMessage is the text shown when Report fails.
func DetailMessage(err error) string {
	if errors.Is(err, domain.ErrAttemptNotFound) {
		return "Quiz attempt not found."
	}
	return domain.MessageOr(err, msgDetailFailed)
}

func orNotAvailable(s string) string {
	if s == "" {
		return domain.NotAvailable
	}
	return s
}
