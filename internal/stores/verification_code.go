package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	codeRecordVersionV1 = 1
)

var (
	ErrCodeNotFound         = errors.New("verification code not found")
	ErrCodeMismatch         = errors.New("verification code mismatch")
	ErrCodeAttemptsExceeded = errors.New("verification code attempts exceeded")
	ErrCodeStoreUnavailable = errors.New("verification code store unavailable")
)

// consumeCodeLua atomically performs GET→validate→DEL/SET on a code record.
// KEYS[1] = record key
// ARGV[1] = provided hash (32 bytes)
// ARGV[2] = max attempts (int string)
// ARGV[3] = current unix timestamp (int string)
//
// Returns:
//
//	record bytes on success
//	error string: "not_found", "expired", "attempts_exceeded", "mismatch"
var consumeCodeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local maxAttempts = tonumber(ARGV[2])
local nowUnix = tonumber(ARGV[3])

-- version(1) attempts(2 big-endian) expiresAt(8 big-endian) hash(32)
local version = string.byte(data, 1)
if version ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local attempts = string.byte(data, 2) * 256 + string.byte(data, 3)

local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 4, 11)
local expiresAt = e0
for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
  expiresAt = expiresAt * 256 + b
end

if nowUnix > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

local storedHash = string.sub(data, 12, 43)

if storedHash ~= providedHash then
  attempts = attempts + 1
  if attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {err='attempts_exceeded'}
  end
  local newData = string.sub(data, 1, 1) .. string.char(math.floor(attempts / 256), attempts % 256) .. string.sub(data, 4)
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='expired'}
  end
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  return {err='mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// CodeRecord is a pending verification code. Only the digest of the code
// is stored.
type CodeRecord struct {
	CodeHash  [32]byte
	ExpiresAt int64
	Attempts  uint16
}

// CodeStore keeps one pending code per address and purpose under
// "<prefix>:<email>:<purpose>".
type CodeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewCodeStore(redisClient redis.UniversalClient, prefix string) *CodeStore {
	if prefix == "" {
		prefix = "code"
	}
	return &CodeStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *CodeStore) key(email, purpose string) string {
	return s.prefix + ":" + email + ":" + purpose
}

// Save replaces any pending code of email and purpose.
func (s *CodeStore) Save(ctx context.Context, email, purpose string, codeHash [32]byte, ttl time.Duration) error {
	record := &CodeRecord{
		CodeHash:  codeHash,
		ExpiresAt: s.now().Add(ttl).Unix(),
	}
	encoded, err := encodeCodeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(email, purpose), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeStoreUnavailable, err)
	}
	return nil
}

// Delete drops the pending code of email and purpose.
func (s *CodeStore) Delete(ctx context.Context, email, purpose string) error {
	if err := s.redis.Del(ctx, s.key(email, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeStoreUnavailable, err)
	}
	return nil
}

// Consume checks providedHash against the pending code and deletes the
// record on a match. A mismatch counts an attempt; the record is dropped
// once maxAttempts mismatches were seen.
func (s *CodeStore) Consume(
	ctx context.Context,
	email, purpose string,
	providedHash [32]byte,
	maxAttempts int,
) (*CodeRecord, error) {
	result, err := consumeCodeLua.Run(ctx, s.redis,
		[]string{s.key(email, purpose)},
		string(providedHash[:]),
		maxAttempts,
		s.now().Unix(),
	).Result()

	if err != nil {
		switch err.Error() {
		case "not_found", "expired":
			return nil, ErrCodeNotFound
		case "attempts_exceeded":
			return nil, ErrCodeAttemptsExceeded
		case "mismatch":
			return nil, ErrCodeMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrCodeStoreUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrCodeStoreUnavailable)
	}

	record, decErr := decodeCodeRecord([]byte(data))
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodeStoreUnavailable, decErr)
	}

	// Lua string comparison is not constant-time.
	if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
		return nil, ErrCodeMismatch
	}

	return record, nil
}

func encodeCodeRecord(record *CodeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(codeRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeCodeRecord(data []byte) (*CodeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != codeRecordVersionV1 {
		return nil, errors.New("invalid code record version")
	}

	record := &CodeRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
