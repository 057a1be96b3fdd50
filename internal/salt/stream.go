// Package salt generates candidate salts for search workers.
//
// Each worker owns its own Stream; no generator state is shared between workers.
package salt

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/screa/create3-salt-miner/pkg/types"
)

// SeedLen is the size of the per-run seed mixed into counter salts
const SeedLen = 16

// randomBlock is how many salts a RandomStream draws per read from crypto/rand
const randomBlock = 256

// Stream yields an effectively infinite sequence of salts for one worker.
type Stream interface {
	// Next writes the next salt into out.
	Next(out *[32]byte)
}

// CounterStream partitions the 256-bit salt space by worker index:
//
//	seed (16 bytes) | worker index (8 bytes) | counter (8 bytes)
//
// Two workers of the same run never produce the same salt.
type CounterStream struct {
	cur uint256.Int
}

// NewCounterStream returns the partition of worker in the run identified by seed.
func NewCounterStream(seed [SeedLen]byte, worker uint64) *CounterStream {
	var base [32]byte
	copy(base[:SeedLen], seed[:])
	binary.BigEndian.PutUint64(base[SeedLen:SeedLen+8], worker)

	s := &CounterStream{}
	s.cur.SetBytes32(base[:])
	return s
}

// Next implements Stream
func (s *CounterStream) Next(out *[32]byte) {
	*out = s.cur.Bytes32()
	s.cur.AddUint64(&s.cur, 1)
}

// RandomStream draws salts from crypto/rand in blocks.
type RandomStream struct {
	buf [randomBlock * 32]byte
	pos int
}

// NewRandomStream returns a RandomStream
func NewRandomStream() *RandomStream {
	return &RandomStream{pos: randomBlock * 32}
}

// Next implements Stream
func (s *RandomStream) Next(out *[32]byte) {
	if s.pos == len(s.buf) {
		// crypto/rand.Read never returns an error on supported platforms
		if _, err := rand.Read(s.buf[:]); err != nil {
			panic("salt: crypto/rand failed: " + err.Error())
		}
		s.pos = 0
	}
	copy(out[:], s.buf[s.pos:s.pos+32])
	s.pos += 32
}

// NewSeed returns a fresh random run seed for counter streams
func NewSeed() [SeedLen]byte {
	var seed [SeedLen]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic("salt: crypto/rand failed: " + err.Error())
	}
	return seed
}

// New returns the stream for worker under strategy.
func New(strategy types.SaltStrategy, seed [SeedLen]byte, worker int) (Stream, error) {
	switch strategy {
	case types.SaltCounter, "":
		return NewCounterStream(seed, uint64(worker)), nil
	case types.SaltRandom:
		return NewRandomStream(), nil
	default:
		return nil, fmt.Errorf("unknown salt strategy %q", strategy)
	}
}

// ParseStrategy parses a strategy name as given on the command line
func ParseStrategy(s string) (types.SaltStrategy, error) {
	switch types.SaltStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case types.SaltCounter, "":
		return types.SaltCounter, nil
	case types.SaltRandom:
		return types.SaltRandom, nil
	default:
		return "", fmt.Errorf("unknown salt strategy %q (want counter or random)", s)
	}
}
