// Package bankconflict implements the bank-conflict analyzer (C7): it maps
// samples onto a memory bank model and flags banks under contention, per
// §4.7.
package bankconflict

import (
	"math/bits"
	"sort"

	"github.com/cachesight/cachesight/internal/config"
	"github.com/cachesight/cachesight/internal/model"
)

const nsPerUs = 1000.0

// Detect implements §4.7 end to end. Only banks flagged by condition (a) or
// (b) are returned, sorted by severity descending. An empty sample vector
// returns nil.
func Detect(samples []model.CacheMissSample, bankModel model.BankModel, cfg config.Config) []model.BankConflict {
	if len(samples) == 0 {
		return nil
	}

	sorted := make([]model.CacheMissSample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TimestampNs < sorted[j].TimestampNs })

	isStrided, isPowerOfTwo := globalAddressShape(sorted, bankModel, cfg)

	type bankAccum struct {
		samples []model.CacheMissSample
		threads map[uint32]struct{}
	}
	banks := make(map[int]*bankAccum)
	order := make([]int, 0)
	for _, s := range sorted {
		b := bankModel.Bank(s.MemoryAddr)
		acc, ok := banks[b]
		if !ok {
			acc = &bankAccum{threads: make(map[uint32]struct{})}
			banks[b] = acc
			order = append(order, b)
		}
		acc.samples = append(acc.samples, s)
		acc.threads[s.ThreadID] = struct{}{}
	}

	windowNs := cfg.BankConflictWindowUs * nsPerUs
	maxAccesses := 0
	for _, acc := range banks {
		if len(acc.samples) > maxAccesses {
			maxAccesses = len(acc.samples)
		}
	}

	var out []model.BankConflict
	for _, b := range order {
		acc := banks[b]
		totalConflicts := 0
		for i := 0; i+1 < len(acc.samples); i++ {
			if float64(acc.samples[i+1].TimestampNs-acc.samples[i].TimestampNs) < windowNs {
				totalConflicts++
			}
		}
		threads := len(acc.threads)
		if totalConflicts == 0 && threads < 2 {
			continue
		}

		accessRateNormalized := 0.0
		if maxAccesses > 0 {
			accessRateNormalized = float64(len(acc.samples)) / float64(maxAccesses)
		}
		out = append(out, model.BankConflict{
			Bank:                 b,
			TotalAccesses:        len(acc.samples),
			TotalConflicts:       totalConflicts,
			DistinctThreads:      threads,
			DistinctBanksTouched: len(order),
			IsStrided:            isStrided,
			IsPowerOfTwo:         isPowerOfTwo,
			Severity:             severity(accessRateNormalized, threads, totalConflicts),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Severity > out[j].Severity })
	return out
}

func severity(accessRateNormalized float64, threads, totalConflicts int) float64 {
	t := threads
	if t > 4 {
		t = 4
	}
	clamp := float64(totalConflicts) / 10000
	if clamp > 1 {
		clamp = 1
	}
	if clamp < 0 {
		clamp = 0
	}
	s := accessRateNormalized*40 + float64(t)*10 + clamp*20
	if s > 100 {
		s = 100
	}
	return s
}

// globalAddressShape implements §4.7's strided/power-of-two conflict
// detection over the whole timestamp-ordered address sequence: strided
// when >=50% of consecutive deltas agree on a single nonzero stride and the
// distinct banks touched is less than min(count, num_banks); power-of-two
// when >=80% of deltas are a power of two.
func globalAddressShape(sorted []model.CacheMissSample, bankModel model.BankModel, cfg config.Config) (strided, powerOfTwo bool) {
	if len(sorted) < 2 {
		return false, false
	}
	deltaCounts := make(map[int64]int)
	powTwoCount := 0
	n := 0
	banksTouched := make(map[int]struct{})
	for i := 0; i+1 < len(sorted); i++ {
		d := int64(sorted[i+1].MemoryAddr) - int64(sorted[i].MemoryAddr)
		deltaCounts[d]++
		n++
		if isPowerOfTwoAbs(d) {
			powTwoCount++
		}
	}
	for _, s := range sorted {
		banksTouched[bankModel.Bank(s.MemoryAddr)] = struct{}{}
	}

	domCount := 0
	for d, c := range deltaCounts {
		if d != 0 && c > domCount {
			domCount = c
		}
	}
	limit := len(sorted)
	if bankModel.NumBanks > 0 && bankModel.NumBanks < limit {
		limit = bankModel.NumBanks
	}
	strided = float64(domCount)/float64(n) >= 0.5 && len(banksTouched) < limit
	powerOfTwo = float64(powTwoCount)/float64(n) >= cfg.PowerOfTwoFrac
	return strided, powerOfTwo
}

func isPowerOfTwoAbs(d int64) bool {
	if d == 0 {
		return false
	}
	if d < 0 {
		d = -d
	}
	return bits.OnesCount64(uint64(d)) == 1
}
