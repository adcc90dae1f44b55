package hw

import "fmt"

// Bank describes one bank of the memory map.
type Bank struct {
	// Name identifies the bank in diagnostics.
	Name string `json:"name"`
	// Base is the first address of the bank.
	Base uint64 `json:"base"`
	// Size is the bank size in bytes.
	Size uint64 `json:"size"`
	// ReadLatency is the read access time in cycles.
	ReadLatency uint64 `json:"read_latency"`
	// WriteLatency is the write access time in cycles.
	WriteLatency uint64 `json:"write_latency"`
	// Cached selects whether accesses to the bank go through the cache.
	Cached bool `json:"cached"`
	// Writable selects whether the bank accepts stores.
	Writable bool `json:"writable"`
}

// Contains reports whether the address falls inside the bank.
func (b *Bank) Contains(addr uint64) bool {
	return addr >= b.Base && addr-b.Base < b.Size
}

// Memory is the memory map of the analyzed platform.
type Memory struct {
	banks []*Bank
}

// NewMemory builds a memory map from a bank list.
func NewMemory(banks []*Bank) *Memory {
	return &Memory{banks: banks}
}

// Banks returns the bank list.
func (m *Memory) Banks() []*Bank {
	return m.banks
}

// BankOf returns the bank containing the address, or nil if the address is
// not backed by any bank.
func (m *Memory) BankOf(addr uint64) *Bank {
	for _, b := range m.banks {
		if b.Contains(addr) {
			return b
		}
	}
	return nil
}

// WorstReadTime returns the largest read latency over all banks. It is the
// cost of a miss whose target bank is unknown.
func (m *Memory) WorstReadTime() uint64 {
	var w uint64
	for _, b := range m.banks {
		if b.ReadLatency > w {
			w = b.ReadLatency
		}
	}
	return w
}

// WorstWriteTime returns the largest write latency over all writable banks.
func (m *Memory) WorstWriteTime() uint64 {
	var w uint64
	for _, b := range m.banks {
		if b.Writable && b.WriteLatency > w {
			w = b.WriteLatency
		}
	}
	return w
}

// Validate checks the memory map for consistency.
func (m *Memory) Validate() error {
	if len(m.banks) == 0 {
		return fmt.Errorf("memory map has no banks")
	}
	for i, b := range m.banks {
		if b.Size == 0 {
			return fmt.Errorf("bank %q has zero size", b.Name)
		}
		for _, o := range m.banks[:i] {
			if b.Base < o.Base+o.Size && o.Base < b.Base+b.Size {
				return fmt.Errorf("banks %q and %q overlap", o.Name, b.Name)
			}
		}
	}
	return nil
}
