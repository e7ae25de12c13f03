package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"emsi-preparator/internal/app"
	"emsi-preparator/internal/domain"
	"golang.org/x/sync/singleflight"
)

// HistoryRepository caches history lists and attempt details with a TTL so
// repeated views do not hit the API.
type HistoryRepository struct {
	loader app.HistoryLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu      sync.RWMutex
	lists   map[domain.ID]cachedHistory
	details map[string]cachedDetail
}

type cachedHistory struct {
	entries   []domain.HistoryEntry
	expiresAt time.Time
}

type cachedDetail struct {
	entries   []domain.DetailEntry
	expiresAt time.Time
}

func NewHistoryRepository(loader app.HistoryLoader, ttl time.Duration) *HistoryRepository {
	return &HistoryRepository{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		lists:   make(map[domain.ID]cachedHistory),
		details: make(map[string]cachedDetail),
	}
}

func (r *HistoryRepository) FetchHistory(ctx context.Context, userID domain.ID) ([]domain.HistoryEntry, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.lists[userID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.entries, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do("history:"+userID.String(), func() (interface{}, error) {
		entries, err := r.loader.FetchHistory(ctx, userID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.lists[userID] = cachedHistory{entries: entries, expiresAt: r.clock().Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.HistoryEntry), nil
}

func (r *HistoryRepository) FetchAttemptDetail(ctx context.Context, attemptID, userID domain.ID) ([]domain.DetailEntry, error) {
	key := userID.String() + ":" + attemptID.String()
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.details[key]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.entries, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do("detail:"+key, func() (interface{}, error) {
		entries, err := r.loader.FetchAttemptDetail(ctx, attemptID, userID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.details[key] = cachedDetail{entries: entries, expiresAt: r.clock().Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.DetailEntry), nil
}

// Invalidate drops the cached history list of a user. Stored attempts never
// change, so cached details are kept.
func (r *HistoryRepository) Invalidate(_ context.Context, userID domain.ID) error {
	r.mu.Lock()
	delete(r.lists, userID)
	r.mu.Unlock()
	return nil
}

func (r *HistoryRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
