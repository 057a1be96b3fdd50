package types

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Errors
var (
	ErrInvalidCreatorAddress = errors.New("invalid creator address")
	ErrInvalidPattern        = errors.New("invalid pattern")
	ErrAttemptsExhausted     = errors.New("no match found within attempt budget")
	ErrCancelled             = errors.New("search cancelled")
)

// Salt is the 32-byte value mixed into address derivation
type Salt [32]byte

// Hex renders the salt as 0x-prefixed lowercase hex
func (s Salt) Hex() string { return hexutil.Encode(s[:]) }

// String implements fmt.Stringer
func (s Salt) String() string { return s.Hex() }

// AddressHex renders an address in canonical form: 0x-prefixed lowercase hex
func AddressHex(addr common.Address) string { return hexutil.Encode(addr[:]) }

// PatternSpec describes what a derived address must look like.
// Every constraint that is set must hold.
type PatternSpec struct {
	Prefix        string // hex digits the address must start with (optional 0x)
	Suffix        string // hex digits the address must end with
	LeadingZeros  *int   // minimum number of leading '0' nibbles; nil when unset
	CaseSensitive bool
}

// SaltStrategy selects how workers generate candidate salts
type SaltStrategy string

const (
	SaltCounter SaltStrategy = "counter"
	SaltRandom  SaltStrategy = "random"
)

// SearchConfig is a fully validated search request
type SearchConfig struct {
	Creator common.Address
	// Factory, when set, derives addresses for deployments made by Creator through a
	// CREATE3 factory instead of directly by Creator.
	Factory     *common.Address
	Pattern     PatternSpec
	MaxAttempts uint64 // 0 means unbounded
	Parallel    bool
	Silent      bool

	Workers          int // worker override in parallel mode; 0 means one per CPU
	SaltStrategy     SaltStrategy
	ProgressInterval time.Duration
}

// SearchResult is the single match produced by a run
type SearchResult struct {
	Salt     Salt
	Address  common.Address
	Attempts uint64
	Elapsed  time.Duration
}

// Rate returns attempts per second over the elapsed time
func (r *SearchResult) Rate() float64 {
	return rate(r.Attempts, r.Elapsed)
}

// Status is the terminal state of a run
type Status int

const (
	StatusFound Status = iota
	StatusExhausted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusExhausted:
		return "exhausted"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is what a run returns: exactly one result or exactly one negative outcome
type Outcome struct {
	Status   Status
	Result   *SearchResult // set only when Status == StatusFound
	Attempts uint64
	Elapsed  time.Duration
	Workers  int
}

// Err maps negative outcomes to sentinel errors; it returns nil for StatusFound.
func (o *Outcome) Err() error {
	switch o.Status {
	case StatusExhausted:
		return ErrAttemptsExhausted
	case StatusCancelled:
		return ErrCancelled
	default:
		return nil
	}
}

// Progress is a periodic snapshot of a running search
type Progress struct {
	Attempts uint64
	Rate     float64 // attempts per second since start
	Elapsed  time.Duration
}

// NewProgress builds a snapshot from a counter reading
func NewProgress(attempts uint64, elapsed time.Duration) Progress {
	return Progress{Attempts: attempts, Rate: rate(attempts, elapsed), Elapsed: elapsed}
}

// WorkerState tracks a worker through Running -> Found | Exhausted | Stopped
type WorkerState int32

const (
	WorkerRunning WorkerState = iota
	WorkerFound
	WorkerExhausted
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerRunning:
		return "running"
	case WorkerFound:
		return "found"
	case WorkerExhausted:
		return "exhausted"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func rate(attempts uint64, elapsed time.Duration) float64 {
	if elapsed.Seconds() <= 0 {
		return 0
	}
	return float64(attempts) / elapsed.Seconds()
}
