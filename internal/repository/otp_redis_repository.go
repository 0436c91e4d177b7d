package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmiconnect/portal/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// markUsedScript sets used=1 only when the hash exists, is unused and holds
// the submitted code.
var markUsedScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "used") == "0" and redis.call("HGET", KEYS[1], "code") == ARGV[1] then
	redis.call("HSET", KEYS[1], "used", "1")
	return 1
end
return 0
`)

// deleteIfCodeScript removes the hash only while it holds the given code.
var deleteIfCodeScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "code") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOTPRepository stores each OTP record as a Redis hash under
// "otp:reset:<identifier>". Keys have no TTL; expiry is enforced on read.
type RedisOTPRepository struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisOTPRepository(client *redis.Client, logger *logrus.Logger) *RedisOTPRepository {
	return &RedisOTPRepository{
		client: client,
		logger: logger,
	}
}

func redisOTPKey(identifier string) string {
	return fmt.Sprintf("otp:reset:%s", identifier)
}

func (r *RedisOTPRepository) Put(ctx context.Context, identifier string, record models.OTPRecord) error {
	key := redisOTPKey(identifier)
	used := "0"
	if record.Used {
		used = "1"
	}

	// Replace the whole hash so no field of an older record survives.
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"code", record.Code,
			"used", used,
			"created_at", record.CreatedAt.Format(time.RFC3339Nano),
			"expires_at", record.ExpiresAt.Format(time.RFC3339Nano),
		)
		return nil
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to store OTP in Redis")
		return fmt.Errorf("failed to store OTP: %w", err)
	}

	return nil
}

func (r *RedisOTPRepository) Get(ctx context.Context, identifier string) (*models.OTPRecord, error) {
	fields, err := r.client.HGetAll(ctx, redisOTPKey(identifier)).Result()
	if err != nil {
		r.logger.WithError(err).Error("Failed to get OTP from Redis")
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}

	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	record := models.OTPRecord{
		Code: fields["code"],
		Used: fields["used"] == "1",
	}
	if record.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return nil, fmt.Errorf("failed to parse OTP created_at: %w", err)
	}
	if record.ExpiresAt, err = time.Parse(time.RFC3339Nano, fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("failed to parse OTP expires_at: %w", err)
	}

	return &record, nil
}

func (r *RedisOTPRepository) MarkUsed(ctx context.Context, identifier, code string) (bool, error) {
	ok, err := r.runScript(ctx, markUsedScript, identifier, code)
	if err != nil {
		r.logger.WithError(err).Error("Failed to mark OTP as used in Redis")
		return false, fmt.Errorf("failed to mark OTP used: %w", err)
	}
	return ok, nil
}

func (r *RedisOTPRepository) DeleteIfCode(ctx context.Context, identifier, code string) (bool, error) {
	ok, err := r.runScript(ctx, deleteIfCodeScript, identifier, code)
	if err != nil {
		return false, fmt.Errorf("failed to delete OTP: %w", err)
	}
	return ok, nil
}

func (r *RedisOTPRepository) runScript(ctx context.Context, script *redis.Script, identifier, code string) (bool, error) {
	res, err := script.Run(ctx, r.client, []string{redisOTPKey(identifier)}, code).Result()
	if err != nil {
		return false, err
	}

	n, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result %v", res)
	}

	return n == 1, nil
}
