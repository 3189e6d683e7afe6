package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUsernameTaken        = errors.New("username taken")
	ErrEmailTaken           = errors.New("email taken")
	ErrUserStoreUnavailable = errors.New("user store unavailable")
)

// createUserLua claims both unique indexes and writes the user hash in one
// step. The first user ever created becomes the superuser.
// KEYS[1] = username index, KEYS[2] = email index, KEYS[3] = user hash,
// KEYS[4] = user counter
// ARGV = id, username, email, password hash, email verified, created at
// Returns 1 when the user is the superuser, else 0.
var createUserLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return {err='username_taken'}
end
if redis.call('EXISTS', KEYS[2]) == 1 then
  return {err='email_taken'}
end
local n = redis.call('INCR', KEYS[4])
local superuser = 0
if n == 1 then
  superuser = 1
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[3],
  'id', ARGV[1],
  'username', ARGV[2],
  'email', ARGV[3],
  'password_hash', ARGV[4],
  'email_verified', ARGV[5],
  'is_superuser', tostring(superuser),
  'is_active', '1',
  'created_at', ARGV[6])
return superuser
`)

// User is the stored account.
type User struct {
	ID            string
	Username      string
	Email         string
	PasswordHash  string
	IsActive      bool
	IsSuperuser   bool
	EmailVerified bool
	CreatedAt     time.Time
}

// UserStore keeps accounts as Redis hashes with username and email indexes.
// Callers normalize the index values.
type UserStore struct {
	redis redis.UniversalClient
}

func NewUserStore(redisClient redis.UniversalClient) *UserStore {
	return &UserStore{redis: redisClient}
}

func userKey(id string) string { return "user:" + id }

func usernameIndexKey(name string) string { return "user:username:" + name }

func emailIndexKey(email string) string { return "user:email:" + email }

func userCounterKey() string { return "user:count" }

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// Create stores u and sets u.IsSuperuser when it is the first account.
func (s *UserStore) Create(ctx context.Context, u *User) error {
	res, err := createUserLua.Run(ctx, s.redis,
		[]string{usernameIndexKey(u.Username), emailIndexKey(u.Email), userKey(u.ID), userCounterKey()},
		u.ID,
		u.Username,
		u.Email,
		u.PasswordHash,
		boolField(u.EmailVerified),
		u.CreatedAt.Unix(),
	).Int64()
	if err != nil {
		switch err.Error() {
		case "username_taken":
			return ErrUsernameTaken
		case "email_taken":
			return ErrEmailTaken
		default:
			return fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
		}
	}
	u.IsSuperuser = res == 1
	u.IsActive = true
	return nil
}

func (s *UserStore) ByID(ctx context.Context, id string) (*User, error) {
	values, err := s.redis.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}
	if len(values) == 0 {
		return nil, ErrUserNotFound
	}
	return decodeUser(values), nil
}

func (s *UserStore) ByUsername(ctx context.Context, username string) (*User, error) {
	return s.byIndex(ctx, usernameIndexKey(username))
}

func (s *UserStore) ByEmail(ctx context.Context, email string) (*User, error) {
	return s.byIndex(ctx, emailIndexKey(email))
}

func (s *UserStore) byIndex(ctx context.Context, key string) (*User, error) {
	id, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}
	return s.ByID(ctx, id)
}

// MarkEmailVerified flags the email of user id as verified.
func (s *UserStore) MarkEmailVerified(ctx context.Context, id string) error {
	return s.setField(ctx, id, "email_verified", "1")
}

// SetPasswordHash replaces the password hash of user id.
func (s *UserStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	return s.setField(ctx, id, "password_hash", hash)
}

func (s *UserStore) setField(ctx context.Context, id, field, value string) error {
	n, err := s.redis.Exists(ctx, userKey(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	if err := s.redis.HSet(ctx, userKey(id), field, value).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}
	return nil
}

// Count returns the number of accounts ever created.
func (s *UserStore) Count(ctx context.Context) (int64, error) {
	n, err := s.redis.Get(ctx, userCounterKey()).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}
	return n, nil
}

func decodeUser(values map[string]string) *User {
	created, _ := strconv.ParseInt(values["created_at"], 10, 64)
	return &User{
		ID:            values["id"],
		Username:      values["username"],
		Email:         values["email"],
		PasswordHash:  values["password_hash"],
		IsActive:      values["is_active"] == "1",
		IsSuperuser:   values["is_superuser"] == "1",
		EmailVerified: values["email_verified"] == "1",
		CreatedAt:     time.Unix(created, 0).UTC(),
	}
}
