package hw

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config bundles the full hardware description consumed by the analysis.
type Config struct {
	// DataCache is the data cache description. A missing data cache is a
	// fatal configuration error.
	DataCache *Cache `json:"data_cache"`
	// Banks is the memory map.
	Banks []*Bank `json:"memory"`
}

// DefaultConfig returns a small test platform: a 4-set, 2-way cache with
// 4-byte lines in front of a RAM bank and an uncached device bank.
func DefaultConfig() *Config {
	return &Config{
		DataCache: &Cache{
			SetCount:      4,
			WayCount:      2,
			BlockSize:     4,
			Replace:       LRU,
			Write:         WriteThrough,
			WriteAllocate: true,
		},
		Banks: []*Bank{
			{
				Name:         "RAM",
				Base:         0x0000_0000,
				Size:         0x1000_0000,
				ReadLatency:  1,
				WriteLatency: 1,
				Cached:       true,
				Writable:     true,
			},
			{
				Name:         "IO",
				Base:         0xFF00_0000,
				Size:         0x0010_0000,
				ReadLatency:  10,
				WriteLatency: 10,
				Cached:       false,
				Writable:     true,
			},
		},
	}
}

// LoadConfig loads a hardware description from a JSON file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hardware config file: %w", err)
	}

	config := &Config{}
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse hardware config: %w", err)
	}

	return config, nil
}

// SaveConfig writes the hardware description to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize hardware config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write hardware config file: %w", err)
	}

	return nil
}

// Validate checks the whole description. It reports the fatal configuration
// errors of the analysis: no data cache, bad geometry, empty memory map.
func (c *Config) Validate() error {
	if c.DataCache == nil {
		return fmt.Errorf("no data cache configured")
	}
	if err := c.DataCache.Validate(); err != nil {
		return fmt.Errorf("data cache: %w", err)
	}
	if err := c.Memory().Validate(); err != nil {
		return fmt.Errorf("memory map: %w", err)
	}
	return nil
}

// Memory returns the memory map of the description.
func (c *Config) Memory() *Memory {
	return NewMemory(c.Banks)
}
