package config

import (
	"time"

	"nyxstore/internal/node"
	"nyxstore/internal/observability/tracing"
	"nyxstore/internal/raftstore/pdworker"
	"nyxstore/internal/server"
)

// Config is the configuration of a nyxstore coordination process.
type Config struct {
	StoreID      uint64          `yaml:"storeID"`
	StoreAddress string          `yaml:"storeAddress"`
	PD           PDConfig        `yaml:"pd"`
	Raftstore    RaftstoreConfig `yaml:"raftstore"`
	Log          LogConfig       `yaml:"log"`
	Metrics      MetricsConfig   `yaml:"metrics"`
	Tracing      TracingConfig   `yaml:"tracing"`
}

type PDConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	WorkerCount    int           `yaml:"workerCount"`
	QueueCapacity  int           `yaml:"queueCapacity"`
}

type RaftstoreConfig struct {
	InboundCapacity      int           `yaml:"inboundCapacity"`
	TickInterval         time.Duration `yaml:"tickInterval"`
	StoreHeartbeatTicks  int           `yaml:"storeHeartbeatTicks"`
	ValidatePeerInterval time.Duration `yaml:"validatePeerInterval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	// Address serves /metrics when set.
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
}

type TracingConfig struct {
	// Endpoint of an OTLP gRPC collector. Empty disables export.
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"serviceName"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

// Default returns a configuration that runs against a PD on localhost.
func Default() Config {
	return Config{
		StoreID:      1,
		StoreAddress: "127.0.0.1:20160",
		PD: PDConfig{
			Endpoint:       "127.0.0.1:2379",
			RequestTimeout: 2 * time.Second,
			WorkerCount:    pdworker.DefaultWorkerCount,
			QueueCapacity:  pdworker.DefaultQueueCapacity,
		},
		Raftstore: RaftstoreConfig{
			InboundCapacity:      4096,
			TickInterval:         server.DefaultTickInterval,
			StoreHeartbeatTicks:  node.DefaultStoreHeartbeatTicks,
			ValidatePeerInterval: node.DefaultValidatePeerInterval,
		},
		Log:     LogConfig{Level: "info"},
		Metrics: MetricsConfig{Namespace: "nyxstore"},
		Tracing: TracingConfig{ServiceName: "nyxstore-coord", SampleRatio: 1},
	}
}

func (c *Config) SchedulerConfig() pdworker.Config {
	return pdworker.Config{WorkerCount: c.PD.WorkerCount, QueueCapacity: c.PD.QueueCapacity}
}

func (c *Config) StoreConfig() node.Config {
	return node.Config{
		StoreID:              c.StoreID,
		StoreHeartbeatTicks:  c.Raftstore.StoreHeartbeatTicks,
		ValidatePeerInterval: c.Raftstore.ValidatePeerInterval,
	}
}

func (c *Config) LoopConfig() server.Config {
	return server.Config{TickInterval: c.Raftstore.TickInterval}
}

func (c *Config) TracingConfig() tracing.Config {
	return tracing.Config{
		Endpoint:    c.Tracing.Endpoint,
		Insecure:    c.Tracing.Insecure,
		ServiceName: c.Tracing.ServiceName,
		SampleRatio: c.Tracing.SampleRatio,
	}
}
