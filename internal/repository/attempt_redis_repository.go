package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"quizo/internal/model"

	"github.com/go-redis/redis/v8"
)

const DefaultAttemptStream = "attempts"

// RedisAttemptRepository 以 Redis Stream 存储作答记录，整数 ID 由 INCR 计数器分配
type RedisAttemptRepository struct {
	rdb    *redis.Client
	stream string
}

func NewRedisAttemptRepository(rdb *redis.Client, stream string) *RedisAttemptRepository {
	if stream == "" {
		stream = DefaultAttemptStream
	}
	return &RedisAttemptRepository{rdb: rdb, stream: stream}
}

func (r *RedisAttemptRepository) seqKey() string {
	return r.stream + ":seq"
}

// appendScript 在同一原子操作内分配 ID 并写入 Stream，Stream 顺序与 ID 顺序一致
var appendScript = redis.NewScript(`
local id = redis.call('INCR', KEYS[2])
redis.call('XADD', KEYS[1], '*', 'id', id, unpack(ARGV))
return id
`)

func (r *RedisAttemptRepository) Append(ctx context.Context, attempt *model.Attempt) error {
	createdAt := attempt.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	id, err := appendScript.Run(ctx, r.rdb,
		[]string{r.stream, r.seqKey()},
		flattenFields(attemptFields(attempt, createdAt))...,
	).Int64()
	if err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}

	attempt.ID = uint(id)
	attempt.CreatedAt = fromMillis(toMillis(createdAt))
	return nil
}

func (r *RedisAttemptRepository) Recent(ctx context.Context, limit int) ([]model.Attempt, error) {
	msgs, err := r.rdb.XRevRangeN(ctx, r.stream, "+", "-", int64(normalizeLimit(limit))).Result()
	if err != nil {
		return nil, fmt.Errorf("read attempts: %w", err)
	}
	return decodePage(msgs)
}

// decodePage 解码一页消息并按 ID 倒序排列
func decodePage(msgs []redis.XMessage) ([]model.Attempt, error) {
	attempts := make([]model.Attempt, 0, len(msgs))
	for _, msg := range msgs {
		a, err := decodeAttempt(msg.Values)
		if err != nil {
			return nil, fmt.Errorf("decode attempt %s: %w", msg.ID, err)
		}
		attempts = append(attempts, a)
	}
	sort.SliceStable(attempts, func(i, j int) bool {
		return attempts[i].ID > attempts[j].ID
	})
	return attempts, nil
}

func (r *RedisAttemptRepository) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisAttemptRepository) Close() error {
	return r.rdb.Close()
}

// attemptFields 除 id 以外的 Stream 字段，id 由 appendScript 写入
func attemptFields(attempt *model.Attempt, createdAt time.Time) map[string]interface{} {
	values := map[string]interface{}{
		"session_id": attempt.SessionID,
		"question":   attempt.Question,
		"correct":    strconv.FormatBool(attempt.Correct),
		"created_at": toMillis(createdAt),
	}
	// 未作答时不写 selected_answer 字段，以区分空字符串
	if attempt.SelectedAnswer != nil {
		values["selected_answer"] = *attempt.SelectedAnswer
	}
	return values
}

func encodeAttempt(id int64, attempt *model.Attempt, createdAt time.Time) map[string]interface{} {
	values := attemptFields(attempt, createdAt)
	values["id"] = id
	return values
}

// flattenFields 按字段名排序展开为 field, value 参数列表
func flattenFields(values map[string]interface{}) []interface{} {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(values)*2)
	for _, k := range keys {
		args = append(args, k, values[k])
	}
	return args
}

func decodeAttempt(values map[string]interface{}) (model.Attempt, error) {
	var a model.Attempt

	id, err := strconv.ParseUint(stringValue(values["id"]), 10, 64)
	if err != nil {
		return a, fmt.Errorf("id: %w", err)
	}
	correct, err := strconv.ParseBool(stringValue(values["correct"]))
	if err != nil {
		return a, fmt.Errorf("correct: %w", err)
	}
	createdAt, err := strconv.ParseInt(stringValue(values["created_at"]), 10, 64)
	if err != nil {
		return a, fmt.Errorf("created_at: %w", err)
	}

	a.ID = uint(id)
	a.SessionID = stringValue(values["session_id"])
	a.Question = stringValue(values["question"])
	a.Correct = correct
	a.CreatedAt = fromMillis(createdAt)
	if v, ok := values["selected_answer"]; ok {
		s := stringValue(v)
		a.SelectedAnswer = &s
	}
	return a, nil
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
