package chunk

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/shufflekit/chunknet/pkg/chunk/transport"
)

// maxConfigurableFrameSize keeps payload lengths representable in the wire's
// signed 32-bit length fields. The floor leaves room for every fixed-size
// frame plus a reasonable error text.
const (
	maxConfigurableFrameSize = 1 << 30
	minConfigurableFrameSize = 1 << 10
)

// Config holds transport configuration shared by clients and servers.
// Durations are plain milliseconds so the YAML form stays scalar. Zero
// values fall back to the defaults.
type Config struct {
	MaxFrameSize        uint32 `yaml:"max_frame_size"`
	ReadBufferSize      int    `yaml:"read_buffer_size"`
	WriteBufferSize     int    `yaml:"write_buffer_size"`
	ConnectTimeoutMs    int    `yaml:"connect_timeout_ms"`
	HeartbeatIntervalMs int    `yaml:"heartbeat_interval_ms"` // 0 disables heartbeats
}

// DefaultConfig returns the default transport configuration.
func DefaultConfig() Config {
	return Config{
		MaxFrameSize:     transport.DefaultMaxFrameSize,
		ReadBufferSize:   transport.DefaultBufferSize,
		WriteBufferSize:  transport.DefaultBufferSize,
		ConnectTimeoutMs: 10000,
	}
}

// LoadConfig reads a YAML config file. Fields absent from the file keep
// their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config file")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MaxFrameSize > maxConfigurableFrameSize {
		return errors.Newf("max_frame_size %d exceeds %d", c.MaxFrameSize, maxConfigurableFrameSize)
	}
	if c.MaxFrameSize != 0 && c.MaxFrameSize < minConfigurableFrameSize {
		return errors.Newf("max_frame_size %d below %d", c.MaxFrameSize, minConfigurableFrameSize)
	}
	if c.ConnectTimeoutMs < 0 {
		return errors.Newf("negative connect_timeout_ms %d", c.ConnectTimeoutMs)
	}
	if c.HeartbeatIntervalMs < 0 {
		return errors.Newf("negative heartbeat_interval_ms %d", c.HeartbeatIntervalMs)
	}
	return nil
}

func (c Config) connectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

func (c Config) heartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}
