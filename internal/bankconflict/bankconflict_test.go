package bankconflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachesight/cachesight/internal/config"
	"github.com/cachesight/cachesight/internal/model"
)

func testBankModel() model.BankModel {
	return model.BankModel{NumBanks: 8, BankWidthBytes: 8, InterleaveBytes: 64}
}

func TestEmptyInputReturnsNil(t *testing.T) {
	assert.Nil(t, Detect(nil, testBankModel(), config.Default()))
}

func TestNoConflictWhenSingleThreadAndSlowCadence(t *testing.T) {
	bm := testBankModel()
	samples := []model.CacheMissSample{
		{MemoryAddr: 0, ThreadID: 1, TimestampNs: 0},
		{MemoryAddr: 0, ThreadID: 1, TimestampNs: 100_000},
	}
	assert.Empty(t, Detect(samples, bm, config.Default()))
}

func TestFlaggedOnTwoThreadsSameBank(t *testing.T) {
	bm := testBankModel()
	samples := []model.CacheMissSample{
		{MemoryAddr: 0, ThreadID: 1, TimestampNs: 0},
		{MemoryAddr: 0, ThreadID: 2, TimestampNs: 100_000},
	}
	out := Detect(samples, bm, config.Default())
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].DistinctThreads)
}

func TestFlaggedOnRapidConsecutiveAccesses(t *testing.T) {
	bm := testBankModel()
	var samples []model.CacheMissSample
	for i := 0; i < 10; i++ {
		samples = append(samples, model.CacheMissSample{MemoryAddr: 0, ThreadID: 1, TimestampNs: uint64(i * 100)})
	}
	out := Detect(samples, bm, config.Default())
	require.Len(t, out, 1)
	assert.Greater(t, out[0].TotalConflicts, 0)
}

func TestSeverityCappedAt100(t *testing.T) {
	bm := testBankModel()
	var samples []model.CacheMissSample
	for i := 0; i < 20000; i++ {
		samples = append(samples, model.CacheMissSample{
			MemoryAddr: 0, ThreadID: uint32(i % 4), TimestampNs: uint64(i * 10),
		})
	}
	out := Detect(samples, bm, config.Default())
	require.Len(t, out, 1)
	assert.LessOrEqual(t, out[0].Severity, 100.0)
}

func TestSortedBySeverityDescending(t *testing.T) {
	bm := testBankModel()
	var samples []model.CacheMissSample
	for i := 0; i < 5; i++ {
		samples = append(samples, model.CacheMissSample{MemoryAddr: 0, ThreadID: uint32(i % 2), TimestampNs: uint64(i * 10)})
	}
	for i := 0; i < 3; i++ {
		samples = append(samples, model.CacheMissSample{MemoryAddr: 64, ThreadID: uint32(i % 2), TimestampNs: uint64(i * 10)})
	}
	out := Detect(samples, bm, config.Default())
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].Severity, out[i].Severity)
	}
}
