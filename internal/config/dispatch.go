package config

import (
	"fmt"
	"time"
)

// DispatchConfig holds outbound service-task dispatch configuration.
type DispatchConfig struct {
	Timeout time.Duration `mapstructure:"timeout" env:"DISPATCH_TIMEOUT" default:"10s"`
}

// Validate validates dispatch configuration.
func (d *DispatchConfig) Validate() error {
	if d.Timeout <= 0 {
		return fmt.Errorf("dispatch timeout must be positive")
	}
	return nil
}
