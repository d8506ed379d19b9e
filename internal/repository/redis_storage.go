package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
	"IPOPulse/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps each document as a single string value, so a SET
// replaces the previous document atomically.
type RedisStorage struct {
	client *redis.Client
	prefix string
	source string
	now    func() time.Time
}

func NewRedisStorage(client *redis.Client, prefix, source string) repository.Storage {
	return &RedisStorage{client: client, prefix: prefix, source: source, now: time.Now}
}

func (s *RedisStorage) key(namespace, key string) string {
	return fmt.Sprintf("%s:doc:%s/%s", s.prefix, namespace, key)
}

func (s *RedisStorage) Save(ctx context.Context, namespace, key string, payload interface{}) error {
	const op = "storage.redis.Save"
	if err := validateKey(op, namespace, key); err != nil {
		return err
	}

	doc, err := newDocument(s.source, payload, s.now())
	if err != nil {
		return errs.E(errs.KindInvalid, op, err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%s: encode document: %w", op, err)
	}
	if err := s.client.Set(ctx, s.key(namespace, key), data, 0).Err(); err != nil {
		return errs.E(errs.KindTransient, op, err)
	}
	return nil
}

func (s *RedisStorage) Load(ctx context.Context, namespace, key string, maxAge time.Duration) (*models.Document, error) {
	const op = "storage.redis.Load"
	if err := validateKey(op, namespace, key); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.key(namespace, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errs.Newf(errs.KindNotFound, op, "%s/%s", namespace, key)
		}
		return nil, errs.E(errs.KindTransient, op, err)
	}

	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.E(errs.KindMalformed, op, err)
	}
	if expired(&doc, maxAge, s.now()) {
		return nil, errs.Newf(errs.KindNotFound, op, "%s/%s older than %s", namespace, key, maxAge)
	}
	return &doc, nil
}
