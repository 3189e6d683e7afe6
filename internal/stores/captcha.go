package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCaptchaNotFound         = errors.New("captcha not found")
	ErrCaptchaStoreUnavailable = errors.New("captcha store unavailable")
)

// CaptchaStore keeps captcha answers under "captcha:<id>". Every answer can
// be taken once.
type CaptchaStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewCaptchaStore(redisClient redis.UniversalClient) *CaptchaStore {
	return &CaptchaStore{redis: redisClient, prefix: "captcha"}
}

func (s *CaptchaStore) key(id string) string {
	return s.prefix + ":" + id
}

func (s *CaptchaStore) Save(ctx context.Context, id, answer string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(id), answer, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaStoreUnavailable, err)
	}
	return nil
}

// Take returns the answer of id and deletes it.
func (s *CaptchaStore) Take(ctx context.Context, id string) (string, error) {
	answer, err := s.redis.GetDel(ctx, s.key(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCaptchaNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrCaptchaStoreUnavailable, err)
	}
	return answer, nil
}
