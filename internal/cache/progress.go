package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

var ErrProgressNotFound = errors.New("排班进度不存在")

// Client 是 ProgressStore 用到的 redis 命令，*redis.Client 满足该接口
type Client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// ProgressStore 将每个任务的最新进度写入 redis，使任意 API 实例都可以读取
type ProgressStore struct {
	rdb     Client
	ttl     time.Duration
	timeout time.Duration
}

func NewProgressStore(rdb Client, ttl, timeout time.Duration) *ProgressStore {
	return &ProgressStore{rdb: rdb, ttl: ttl, timeout: timeout}
}

func progressKey(runID string) string {
	return fmt.Sprintf("run_%s_progress", runID)
}

func (s *ProgressStore) Save(progress domain.RunProgress) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	payload, err := json.Marshal(progress)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, progressKey(progress.RunID), payload, s.ttl).Err()
}

func (s *ProgressStore) Load(runID string) (*domain.RunProgress, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	payload, err := s.rdb.Get(ctx, progressKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrProgressNotFound
		}
		return nil, err
	}

	progress := &domain.RunProgress{}
	if err := json.Unmarshal(payload, progress); err != nil {
		return nil, err
	}
	return progress, nil
}

func (s *ProgressStore) Delete(runID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	return s.rdb.Del(ctx, progressKey(runID)).Err()
}
