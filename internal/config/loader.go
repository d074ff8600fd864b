package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.StoreID == 0 {
		errs = append(errs, errors.New("storeID must be non-zero"))
	}
	if c.PD.Endpoint == "" {
		errs = append(errs, errors.New("pd.endpoint is required"))
	}
	if c.PD.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pd.requestTimeout must be positive, got %s", c.PD.RequestTimeout))
	}
	if c.PD.WorkerCount <= 0 {
		errs = append(errs, fmt.Errorf("pd.workerCount must be positive, got %d", c.PD.WorkerCount))
	}
	if c.PD.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("pd.queueCapacity must be positive, got %d", c.PD.QueueCapacity))
	}
	if c.Raftstore.InboundCapacity <= 0 {
		errs = append(errs, fmt.Errorf("raftstore.inboundCapacity must be positive, got %d", c.Raftstore.InboundCapacity))
	}
	if c.Raftstore.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("raftstore.tickInterval must be positive, got %s", c.Raftstore.TickInterval))
	}
	if c.Raftstore.StoreHeartbeatTicks <= 0 {
		errs = append(errs, fmt.Errorf("raftstore.storeHeartbeatTicks must be positive, got %d", c.Raftstore.StoreHeartbeatTicks))
	}
	if c.Raftstore.ValidatePeerInterval < 0 {
		errs = append(errs, fmt.Errorf("raftstore.validatePeerInterval must not be negative, got %s", c.Raftstore.ValidatePeerInterval))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sampleRatio must be within [0, 1], got %g", c.Tracing.SampleRatio))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
