package miner

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screa/create3-salt-miner/internal/crypto"
	"github.com/screa/create3-salt-miner/internal/logger"
	"github.com/screa/create3-salt-miner/internal/pattern"
	"github.com/screa/create3-salt-miner/pkg/types"
)

var testCreator = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func zeros(n int) *int { return &n }

func newTestMiner(t *testing.T, cfg types.SearchConfig, opts ...Option) *Miner {
	t.Helper()
	if cfg.Creator == (common.Address{}) {
		cfg.Creator = testCreator
	}
	m, err := NewMiner(cfg, logger.Nop(), opts...)
	require.NoError(t, err)
	return m
}

func TestNewMiner(t *testing.T) {
	m := newTestMiner(t, types.SearchConfig{Pattern: types.PatternSpec{Prefix: "0000"}})
	require.NotNil(t, m)
	assert.Equal(t, 1, m.Workers())
	assert.Equal(t, DefaultProgressInterval, m.config.ProgressInterval)
}

func TestNewMinerRejectsInvalidConfig(t *testing.T) {
	_, err := NewMiner(types.SearchConfig{Creator: testCreator}, nil)
	assert.ErrorIs(t, err, types.ErrInvalidPattern)

	_, err = NewMiner(types.SearchConfig{
		Creator:      testCreator,
		Pattern:      types.PatternSpec{Prefix: "00"},
		SaltStrategy: "gpu",
	}, nil)
	assert.Error(t, err)
}

func TestWorkerCount(t *testing.T) {
	assert.Equal(t, 1, WorkerCount(types.SearchConfig{Workers: 8}))
	assert.Equal(t, 8, WorkerCount(types.SearchConfig{Parallel: true, Workers: 8}))
	assert.GreaterOrEqual(t, WorkerCount(types.SearchConfig{Parallel: true}), 1)
}

func TestSearchAnyAddressWithOneAttempt(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		m := newTestMiner(t, types.SearchConfig{
			Pattern:     types.PatternSpec{LeadingZeros: zeros(0)},
			MaxAttempts: 1,
			Parallel:    parallel,
		})

		outcome, err := m.Search(context.Background())
		require.NoError(t, err)
		require.Equal(t, types.StatusFound, outcome.Status, "parallel=%v", parallel)
		require.NotNil(t, outcome.Result)
		assert.NoError(t, outcome.Err())
		assert.Equal(t, uint64(1), outcome.Result.Attempts)
		assert.Equal(t, uint64(1), outcome.Attempts)
	}
}

func TestSearchExhaustsExactBudget(t *testing.T) {
	unmatchable := types.PatternSpec{Prefix: strings.Repeat("f", 38)}
	for _, parallel := range []bool{false, true} {
		m := newTestMiner(t, types.SearchConfig{
			Pattern:     unmatchable,
			MaxAttempts: 1000,
			Parallel:    parallel,
			Workers:     3,
		})

		outcome, err := m.Search(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.StatusExhausted, outcome.Status, "parallel=%v", parallel)
		assert.ErrorIs(t, outcome.Err(), types.ErrAttemptsExhausted)
		assert.Nil(t, outcome.Result)
		assert.Equal(t, uint64(1000), outcome.Attempts)
		assert.Equal(t, uint64(1000), m.Attempts())
	}
}

func TestSearchSequentialAndParallelFindMatch(t *testing.T) {
	spec := types.PatternSpec{LeadingZeros: zeros(1)}
	matcher, err := pattern.Compile(spec)
	require.NoError(t, err)

	for _, parallel := range []bool{false, true} {
		m := newTestMiner(t, types.SearchConfig{Pattern: spec, Parallel: parallel})

		outcome, err := m.Search(context.Background())
		require.NoError(t, err)
		require.Equal(t, types.StatusFound, outcome.Status, "parallel=%v", parallel)

		result := outcome.Result
		require.NotNil(t, result)
		assert.True(t, matcher.Match(result.Address))
		assert.Equal(t, crypto.Create3Address(testCreator, result.Salt), result.Address)
		assert.GreaterOrEqual(t, result.Attempts, uint64(1))
		assert.Equal(t, m.Result().Salt, result.Salt)
	}
}

func TestSearchViaFactory(t *testing.T) {
	factory := common.HexToAddress(crypto.DefaultFactoryAddress)
	m := newTestMiner(t, types.SearchConfig{
		Factory:      &factory,
		Pattern:      types.PatternSpec{Suffix: "a"},
		Parallel:     true,
		Workers:      2,
		SaltStrategy: types.SaltRandom,
	})

	outcome, err := m.Search(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.StatusFound, outcome.Status)
	assert.Equal(t,
		crypto.Create3AddressViaFactory(factory, testCreator, outcome.Result.Salt),
		outcome.Result.Address)
	assert.True(t, strings.HasSuffix(types.AddressHex(outcome.Result.Address), "a"))
}

func TestSearchSingleResultUnderContention(t *testing.T) {
	// every attempt matches, so all workers race for the result slot
	m := newTestMiner(t, types.SearchConfig{
		Pattern:  types.PatternSpec{LeadingZeros: zeros(0)},
		Parallel: true,
		Workers:  16,
	})

	outcome, err := m.Search(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.StatusFound, outcome.Status)
	assert.LessOrEqual(t, outcome.Attempts, uint64(16))
	assert.Equal(t, crypto.Create3Address(testCreator, outcome.Result.Salt), outcome.Result.Address)
}

func TestSearchCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := newTestMiner(t, types.SearchConfig{Pattern: types.PatternSpec{LeadingZeros: zeros(0)}})
	outcome, err := m.Search(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, outcome.Status)
	assert.ErrorIs(t, outcome.Err(), types.ErrCancelled)
	assert.Zero(t, outcome.Attempts)
}

func TestSearchStopBeforeStart(t *testing.T) {
	m := newTestMiner(t, types.SearchConfig{Pattern: types.PatternSpec{LeadingZeros: zeros(0)}})
	m.Stop()

	outcome, err := m.Search(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, outcome.Status)
}

func TestSearchCancelledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newTestMiner(t, types.SearchConfig{
		Pattern:  types.PatternSpec{Prefix: strings.Repeat("f", 38)},
		Parallel: true,
		Workers:  2,
	})

	go func() {
		for m.Attempts() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	outcome, err := m.Search(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, outcome.Status)
	assert.Nil(t, outcome.Result)
	assert.Positive(t, outcome.Attempts)
}

func TestSearchRunsOnce(t *testing.T) {
	m := newTestMiner(t, types.SearchConfig{Pattern: types.PatternSpec{LeadingZeros: zeros(0)}, MaxAttempts: 1})
	_, err := m.Search(context.Background())
	require.NoError(t, err)

	_, err = m.Search(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestSearchReportsProgress(t *testing.T) {
	var (
		mu     sync.Mutex
		events []types.Progress
	)
	record := func(p types.Progress) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, p)
	}

	m := newTestMiner(t, types.SearchConfig{
		Pattern:          types.PatternSpec{Prefix: strings.Repeat("f", 38)},
		MaxAttempts:      20000,
		ProgressInterval: time.Millisecond,
	}, WithProgress(record))

	outcome, err := m.Search(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, outcome.Attempts, last.Attempts)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Attempts, events[i-1].Attempts)
	}
}

func TestSearchSilentSuppressesProgress(t *testing.T) {
	called := false
	m := newTestMiner(t, types.SearchConfig{
		Pattern:          types.PatternSpec{Prefix: strings.Repeat("f", 38)},
		MaxAttempts:      5000,
		Silent:           true,
		ProgressInterval: time.Millisecond,
	}, WithProgress(func(types.Progress) { called = true }))

	_, err := m.Search(context.Background())
	require.NoError(t, err)
	assert.False(t, called)
}

func TestSearchWithFixedSeedIsReproducible(t *testing.T) {
	seed := [16]byte{1, 2, 3}
	cfg := types.SearchConfig{Pattern: types.PatternSpec{LeadingZeros: zeros(2)}}

	first, err := newTestMiner(t, cfg, WithSeed(seed)).Search(context.Background())
	require.NoError(t, err)
	second, err := newTestMiner(t, cfg, WithSeed(seed)).Search(context.Background())
	require.NoError(t, err)

	require.Equal(t, types.StatusFound, first.Status)
	assert.Equal(t, first.Result.Salt, second.Result.Salt)
	assert.Equal(t, first.Result.Address, second.Result.Address)
	assert.Equal(t, first.Attempts, second.Attempts)
}
