package app

import (
	"context"
	"errors"

	"emsi-preparator/internal/domain"
	"github.com/sirupsen/logrus"
)

// FallbackLoader reads history from primary and switches to secondary only
// when primary could not be reached at all. Service errors are returned as-is.
type FallbackLoader struct {
	primary   HistoryLoader
	secondary HistoryLoader
	log       logrus.FieldLogger
}

func NewFallbackLoader(primary, secondary HistoryLoader, log logrus.FieldLogger) *FallbackLoader {
	return &FallbackLoader{primary: primary, secondary: secondary, log: log.WithField("component", "history-fallback")}
}

func (f *FallbackLoader) FetchHistory(ctx context.Context, userID domain.ID) ([]domain.HistoryEntry, error) {
	entries, err := f.primary.FetchHistory(ctx, userID)
	if !unreachable(err) {
		return entries, err
	}
	f.log.WithError(err).Info("api unreachable, using local archive")
	local, lerr := f.secondary.FetchHistory(ctx, userID)
	if lerr != nil {
		return nil, err
	}
	return local, nil
}

func (f *FallbackLoader) FetchAttemptDetail(ctx context.Context, attemptID, userID domain.ID) ([]domain.DetailEntry, error) {
	details, err := f.primary.FetchAttemptDetail(ctx, attemptID, userID)
	if !unreachable(err) {
		return details, err
	}
	f.log.WithError(err).Info("api unreachable, using local archive")
	local, lerr := f.secondary.FetchAttemptDetail(ctx, attemptID, userID)
	if lerr != nil {
		return nil, err
	}
	return local, nil
}

func unreachable(err error) bool {
	var trErr *domain.TransportError
	return errors.As(err, &trErr)
}
