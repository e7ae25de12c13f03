package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"emsi-preparator/internal/app"
	"emsi-preparator/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// HistoryRepository caches history in Redis and falls back to a loader on a miss.
// Lists are stored as:   SET quiz:history:{userID} <json>
// Details are stored as: SET quiz:detail:{userID}:{attemptID} <json>
type HistoryRepository struct {
	client *redis.Client
	loader app.HistoryLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewHistoryRepository(client *redis.Client, loader app.HistoryLoader, ttl time.Duration) *HistoryRepository {
	return &HistoryRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *HistoryRepository) FetchHistory(ctx context.Context, userID domain.ID) ([]domain.HistoryEntry, error) {
	key := r.historyKey(userID)
	var entries []domain.HistoryEntry
	if r.readCache(ctx, key, &entries) {
		return entries, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		var cached []domain.HistoryEntry
		if r.readCache(ctx, key, &cached) {
			return cached, nil
		}
		fresh, err := r.loader.FetchHistory(ctx, userID)
		if err != nil {
			return nil, err
		}
		r.writeCache(ctx, key, fresh)
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.HistoryEntry), nil
}

func (r *HistoryRepository) FetchAttemptDetail(ctx context.Context, attemptID, userID domain.ID) ([]domain.DetailEntry, error) {
	key := r.detailKey(userID, attemptID)
	var entries []domain.DetailEntry
	if r.readCache(ctx, key, &entries) {
		return entries, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		var cached []domain.DetailEntry
		if r.readCache(ctx, key, &cached) {
			return cached, nil
		}
		fresh, err := r.loader.FetchAttemptDetail(ctx, attemptID, userID)
		if err != nil {
			return nil, err
		}
		r.writeCache(ctx, key, fresh)
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.DetailEntry), nil
}

// Invalidate removes the cached history list of a user.
func (r *HistoryRepository) Invalidate(ctx context.Context, userID domain.ID) error {
	return r.client.Del(ctx, r.historyKey(userID)).Err()
}

// readCache reports a hit only when the key exists and decodes cleanly;
// Redis errors degrade to a miss.
func (r *HistoryRepository) readCache(ctx context.Context, key string, dst any) bool {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func (r *HistoryRepository) writeCache(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	// a failed write only costs a reload on the next read
	_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
}

func (r *HistoryRepository) historyKey(userID domain.ID) string {
	return "quiz:history:" + userID.String()
}

func (r *HistoryRepository) detailKey(userID, attemptID domain.ID) string {
	return "quiz:detail:" + userID.String() + ":" + attemptID.String()
}

func (r *HistoryRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
