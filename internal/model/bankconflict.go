package model

// BankModel describes a memory subsystem's interleaving across banks, the
// input to the bank-conflict analyzer (C7).
type BankModel struct {
	NumBanks        int
	BankWidthBytes  int
	InterleaveBytes int
}

// Bank returns the bank index addr falls into: (addr/interleave_bytes) mod
// num_banks.
func (b BankModel) Bank(addr uint64) int {
	if b.InterleaveBytes <= 0 || b.NumBanks <= 0 {
		return 0
	}
	return int((addr / uint64(b.InterleaveBytes)) % uint64(b.NumBanks))
}

// BankConflict is one flagged bank from §4.7.
type BankConflict struct {
	Bank                 int
	TotalAccesses         int
	TotalConflicts        int
	DistinctThreads       int
	DistinctBanksTouched  int
	IsStrided             bool
	IsPowerOfTwo          bool
	Severity              float64 // 0..100
}
