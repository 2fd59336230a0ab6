package core

import (
	"fmt"
	"strings"
	"time"
)

// ProcessorConfig bounds one batch processor run.
type ProcessorConfig struct {
	BatchSize    int           `koanf:"batch_size" mapstructure:"batch_size"`
	MaxAttempts  int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	ClaimLease   time.Duration `koanf:"claim_lease" mapstructure:"claim_lease"`
	EventTimeout time.Duration `koanf:"event_timeout" mapstructure:"event_timeout"`
	RetryInitial time.Duration `koanf:"retry_initial" mapstructure:"retry_initial"`
	RetryMax     time.Duration `koanf:"retry_max" mapstructure:"retry_max"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Provider    string          `koanf:"provider" mapstructure:"provider"`
	Processor   ProcessorConfig `koanf:"processor" mapstructure:"processor"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "billing",
		Provider:    "polar",
		Processor: ProcessorConfig{
			BatchSize:    25,
			MaxAttempts:  8,
			ClaimLease:   30 * time.Second,
			EventTimeout: 10 * time.Second,
			RetryInitial: 2 * time.Second,
			RetryMax:     5 * time.Minute,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Provider) == "" {
		return fmt.Errorf("core: provider is required")
	}
	if c.Processor.BatchSize < 0 {
		return fmt.Errorf("core: processor batch_size cannot be negative")
	}
	if c.Processor.MaxAttempts < 0 {
		return fmt.Errorf("core: processor max_attempts cannot be negative")
	}
	return nil
}
