package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/carvision/pkg/types"
)

// DefaultHashKey is the Redis hash holding all car documents
const DefaultHashKey = "cars"

// RedisDocuments keeps every car as a JSON field of a single hash
type RedisDocuments struct {
	rdb    redis.Cmdable
	key    string
	logger logrus.FieldLogger
}

// NewRedisDocuments wraps an existing client
func NewRedisDocuments(rdb redis.Cmdable, key string, logger logrus.FieldLogger) *RedisDocuments {
	if key == "" {
		key = DefaultHashKey
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisDocuments{rdb: rdb, key: key, logger: logger}
}

// OpenRedis connects to the server described by a redis:// URL
func OpenRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// List returns every stored car. Fields that do not decode are skipped.
func (s *RedisDocuments) List(ctx context.Context) ([]types.Car, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}

	cars := make([]types.Car, 0, len(fields))
	for id, raw := range fields {
		var car types.Car
		if err := json.Unmarshal([]byte(raw), &car); err != nil {
			s.logger.WithError(err).WithField("id", id).Warn("skipping document: invalid JSON")
			continue
		}
		cars = append(cars, car)
	}

	sort.Slice(cars, func(i, j int) bool {
		return cars[i].ID < cars[j].ID
	})

	return cars, nil
}

// Put replaces the whole document for car.ID
func (s *RedisDocuments) Put(ctx context.Context, car types.Car) error {
	if err := validateID(car.ID); err != nil {
		return err
	}
	data, err := json.Marshal(car)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, s.key, car.ID, string(data)).Err()
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *RedisDocuments) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	return s.rdb.HDel(ctx, s.key, id).Err()
}
