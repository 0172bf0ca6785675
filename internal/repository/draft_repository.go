package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DraftRepository 作答草稿，每次作答写入 Redis hash，保存成功后删除。
// 服务重启后进行中的作答会丢失，草稿留给运维按 key 恢复。
type DraftRepository struct {
	Redis *redis.Client
}

func NewDraftRepository(rdb *redis.Client) *DraftRepository {
	return &DraftRepository{Redis: rdb}
}

func draftKey(attemptID string) string {
	return fmt.Sprintf("quiz:draft:%s", attemptID)
}

// SaveDraft ttl 一般为作答时长加宽限期，每次写入都会续期
func (r *DraftRepository) SaveDraft(ctx context.Context, attemptID, questionID, value string, ttl time.Duration) error {
	key := draftKey(attemptID)
	pipe := r.Redis.TxPipeline()
	pipe.HSet(ctx, key, questionID, value)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *DraftRepository) DeleteDraft(ctx context.Context, attemptID string) error {
	return r.Redis.Del(ctx, draftKey(attemptID)).Err()
}
