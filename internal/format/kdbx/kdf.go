package kdbx

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/cryptox"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/google/uuid"
)

// KDF ids.
var (
	KDFAES      = uuid.MustParse("c9d9f39a-628a-4460-bf74-0d08c18a4fea")
	KDFArgon2id = uuid.MustParse("9e298b19-56db-4773-b23d-fc3ec6f0a1e6")
	KDFArgon2d  = uuid.MustParse("ef636ddf-8c29-444b-91f7-a9a403e30a0c")
)

const argon2Version = 0x13

var ErrUnsupportedKDF = errors.New("unsupported KDF")

// KDFParams are the key derivation parameters of a database. For AES-KDF
// only Seed and Rounds are used.
type KDFParams struct {
	UUID        uuid.UUID
	Seed        []byte
	Rounds      uint64
	Iterations  uint64
	MemoryBytes uint64
	Parallelism uint32
}

// AESKDFParams returns AES-KDF parameters with a fresh seed.
func AESKDFParams(rounds uint64) KDFParams {
	return KDFParams{UUID: KDFAES, Rounds: rounds, Seed: common.GenerateRandByteArray(32)}
}

// Argon2idParams returns Argon2id parameters with a fresh salt. memoryKiB is
// in kibibytes.
func Argon2idParams(iterations uint64, memoryKiB uint64, parallelism uint32) KDFParams {
	return KDFParams{
		UUID:        KDFArgon2id,
		Seed:        common.GenerateRandByteArray(32),
		Iterations:  iterations,
		MemoryBytes: memoryKiB * 1024,
		Parallelism: parallelism,
	}
}

func (p KDFParams) isArgon2() bool { return p.UUID == KDFArgon2id }

// withFreshSeed returns a copy with a new random seed or salt.
func (p KDFParams) withFreshSeed() KDFParams {
	p.Seed = common.GenerateRandByteArray(32)
	return p
}

func parseKDFParams(b []byte) (KDFParams, error) {
	d, err := parseVariantDict(b)
	if err != nil {
		return KDFParams{}, err
	}
	raw, ok := d.bytesOf("$UUID")
	if !ok {
		return KDFParams{}, errors.New("KDF parameters without $UUID")
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return KDFParams{}, fmt.Errorf("KDF uuid: %w", err)
	}

	p := KDFParams{UUID: id}
	p.Seed, _ = d.bytesOf("S")

	switch id {
	case KDFAES:
		p.Rounds, ok = d.uint64("R")
		if !ok || len(p.Seed) != 32 {
			return KDFParams{}, errors.New("AES-KDF parameters incomplete")
		}
	case KDFArgon2id:
		var par uint64
		p.Iterations, _ = d.uint64("I")
		p.MemoryBytes, _ = d.uint64("M")
		par, _ = d.uint64("P")
		if v, ok := d.uint64("V"); ok && v != argon2Version {
			return KDFParams{}, fmt.Errorf("argon2 version %#x", v)
		}
		if len(p.Seed) < 8 || p.Iterations == 0 || p.Iterations > math.MaxUint32 ||
			par == 0 || par > math.MaxUint8 || p.MemoryBytes < 8*1024*par || p.MemoryBytes/1024 > math.MaxUint32 {
			return KDFParams{}, errors.New("argon2 parameters out of range")
		}
		p.Parallelism = uint32(par)
	case KDFArgon2d:
		return KDFParams{}, fmt.Errorf("%w: argon2d", ErrUnsupportedKDF)
	default:
		return KDFParams{}, fmt.Errorf("%w: %s", ErrUnsupportedKDF, id)
	}
	return p, nil
}

func (p KDFParams) bytes() []byte {
	d := variantDict{}
	d.setBytes("$UUID", p.UUID[:])
	d.setBytes("S", p.Seed)
	if p.isArgon2() {
		d.setUint64("I", p.Iterations)
		d.setUint64("M", p.MemoryBytes)
		d.setUint32("P", p.Parallelism)
		d.setUint32("V", argon2Version)
	} else {
		d.setUint64("R", p.Rounds)
	}
	return d.bytes()
}

// derive runs the KDF over the composite key. Argon2 cannot be interrupted,
// so ctx is only checked around it.
func (p KDFParams) derive(ctx context.Context, composite []byte) ([]byte, error) {
	if p.isArgon2() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := cryptox.Argon2id(composite, p.Seed, uint32(p.Iterations), uint32(p.MemoryBytes/1024), uint8(p.Parallelism), 32)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return out, nil
	}
	return cryptox.AESKDF(ctx, composite, p.Seed, p.Rounds)
}

func (p KDFParams) checkLimits(f format.Format, limits format.Limits) error {
	if p.isArgon2() {
		if limits.MaxKDFMemoryBytes > 0 && p.MemoryBytes > limits.MaxKDFMemoryBytes {
			return format.Unsafe(f, "argon2 memory %d exceeds %d", p.MemoryBytes, limits.MaxKDFMemoryBytes)
		}
		if limits.MaxKDFIterations > 0 && p.Iterations > limits.MaxKDFIterations {
			return format.Unsafe(f, "argon2 iterations %d exceed %d", p.Iterations, limits.MaxKDFIterations)
		}
		return nil
	}
	if limits.MaxKDFIterations > 0 && p.Rounds > limits.MaxKDFIterations {
		return format.Unsafe(f, "AES-KDF rounds %d exceed %d", p.Rounds, limits.MaxKDFIterations)
	}
	return nil
}

// compositeKey is SHA-256 over the password hash and key file digest.
func compositeKey(c format.Credentials) []byte {
	var parts [][]byte
	if c.Password != nil {
		parts = append(parts, cryptox.SHA256([]byte(*c.Password)))
	}
	if len(c.KeyFileDigest) > 0 {
		parts = append(parts, c.KeyFileDigest)
	}
	if len(parts) == 0 {
		return nil
	}
	return cryptox.SHA256(parts...)
}
