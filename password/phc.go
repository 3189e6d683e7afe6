package password

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

var (
	// ErrMalformedHash is returned for strings that are not an argon2id PHC hash.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrIncompatibleVersion is returned for hashes of another argon2 version.
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

// Params are the cost settings recorded in every encoded hash.
type Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	KeyLength   uint32
}

// weakerThan reports whether p costs less than target in any dimension or
// produces a key of another length.
func (p Params) weakerThan(target Params) bool {
	return p.Memory < target.Memory ||
		p.Time < target.Time ||
		p.Parallelism < target.Parallelism ||
		p.KeyLength != target.KeyLength
}

// Encoded is a decoded PHC string:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
type Encoded struct {
	Params Params
	Salt   []byte
	Key    []byte
}

// String renders e in PHC format with unpadded standard base64, which is what
// the reference argon2 tools emit.
func (e Encoded) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		e.Params.Memory, e.Params.Time, e.Params.Parallelism,
		base64.RawStdEncoding.EncodeToString(e.Salt),
		base64.RawStdEncoding.EncodeToString(e.Key),
	)
}

// Decode parses a PHC string and checks its parameters are within the
// bounds NewArgon2 would accept. Padded base64 is tolerated.
func Decode(s string) (Encoded, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return Encoded{}, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Encoded{}, fmt.Errorf("%w: version", ErrMalformedHash)
	}
	if version != argon2.Version {
		return Encoded{}, ErrIncompatibleVersion
	}

	var (
		p           Params
		parallelism uint32
	)
	n, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &parallelism)
	if err != nil || n != 3 || fmt.Sprintf("m=%d,t=%d,p=%d", p.Memory, p.Time, parallelism) != parts[3] {
		return Encoded{}, fmt.Errorf("%w: parameters", ErrMalformedHash)
	}
	if p.Memory < minMemoryKB || p.Time < minTimeCost || parallelism < uint32(minParallelism) || parallelism > 255 {
		return Encoded{}, fmt.Errorf("%w: parameters out of range", ErrMalformedHash)
	}
	p.Parallelism = uint8(parallelism)

	salt, err := decodeB64(parts[4])
	if err != nil || len(salt) < minSaltLength {
		return Encoded{}, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	key, err := decodeB64(parts[5])
	if err != nil || len(key) == 0 {
		return Encoded{}, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	p.KeyLength = uint32(len(key))

	return Encoded{Params: p, Salt: salt, Key: key}, nil
}

func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
