// Package config loads the ingestor's layered configuration: CLI flags
// override environment variables, which override a TOML file, which
// override built-in defaults — the same precedence and the same
// go-toml/v2 + godotenv stack the teacher's config/config.go and main.go
// use, generalized from a single exchange-symbol map to this core's
// ingestor/shm/indicator sections.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Mode selects the transport receiver's multicast-join behavior.
type Mode string

const (
	ModeNormal  Mode = "NORMAL"
	ModeTesting Mode = "TESTING"
)

// IngestorConfig configures the UDP transport receiver (C1).
type IngestorConfig struct {
	Bind            string `toml:"bind"`
	Interface       string `toml:"interface"`
	RecvBufferBytes int    `toml:"recv_buffer_bytes"`
	Mode            Mode   `toml:"mode"`
}

// ShmConfig configures the shared-memory region and ring (C3/C4).
type ShmConfig struct {
	Name            string `toml:"name"`
	SlotSize        uint32 `toml:"slot_size"`
	SlotCount       uint32 `toml:"slot_count"`
	OverflowPolicy  string `toml:"overflow_policy"` // "truncate" (default) or "drop"
	Force           bool   `toml:"force"`
}

// IndicatorConfig configures the indicator engine's VPIN bucket/window and
// per-event-type Hawkes parameters.
type IndicatorConfig struct {
	VPINBucketVolume float64                 `toml:"vpin_bucket_volume"`
	VPINWindowN      int                     `toml:"vpin_window_n"`
	Hawkes           map[string]HawkesParams `toml:"hawkes"`
}

// HawkesParams is one event type's baseline/alpha/beta triple, as read
// from the [indicators.hawkes.<event>] TOML table.
type HawkesParams struct {
	Baseline float64 `toml:"baseline"`
	Alpha    float64 `toml:"alpha"`
	Beta     float64 `toml:"beta"`
}

// Config is the fully-resolved configuration for cmd/ingestor.
type Config struct {
	Ingestor   IngestorConfig   `toml:"ingestor"`
	Shm        ShmConfig        `toml:"shm"`
	Indicators IndicatorConfig  `toml:"indicators"`
	SchemaPath string           `toml:"schema_path"`
	DiagAddr   string           `toml:"diag_addr"`
	IPCSocket  string           `toml:"ipc_socket"`
}

// Default returns the built-in defaults per spec.md §3/§6.
func Default() Config {
	return Config{
		Ingestor: IngestorConfig{
			Bind:            "127.0.0.1:5000",
			RecvBufferBytes: 4 * 1024 * 1024,
			Mode:            ModeTesting,
		},
		Shm: ShmConfig{
			Name:           "shijim_market_data_l2",
			SlotSize:       256,
			SlotCount:      1024,
			OverflowPolicy: "truncate",
		},
		Indicators: IndicatorConfig{
			VPINBucketVolume: 1000,
			VPINWindowN:      50,
		},
	}
}

// LoadFile parses a TOML config file, starting from Default() so that any
// sections the file omits keep their defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotenv loads a .env file into the process environment if present,
// mirroring the teacher's startup sequence; a missing file is not an
// error.
func LoadDotenv(path string) {
	if path == "" {
		path = ".env"
	}
	_ = godotenv.Load(path)
}

// ApplyEnv overlays recognized environment variables onto cfg, per
// spec.md §6: SHM_NAME, SHM_SLOT_SIZE, SHM_SLOT_COUNT, INGEST_BIND,
// INGEST_MODE, plus this core's SHM_SCHEMA, DIAG_ADDR and IPC_SOCKET
// additions.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SHM_NAME"); v != "" {
		c.Shm.Name = v
	}
	if v := os.Getenv("SHM_SLOT_SIZE"); v != "" {
		if n, err := parseUint32(v); err == nil {
			c.Shm.SlotSize = n
		}
	}
	if v := os.Getenv("SHM_SLOT_COUNT"); v != "" {
		if n, err := parseUint32(v); err == nil {
			c.Shm.SlotCount = n
		}
	}
	if v := os.Getenv("INGEST_BIND"); v != "" {
		c.Ingestor.Bind = v
	}
	if v := os.Getenv("INGEST_MODE"); v != "" {
		c.Ingestor.Mode = Mode(v)
	}
	if v := os.Getenv("SHM_SCHEMA"); v != "" {
		c.SchemaPath = v
	}
	if v := os.Getenv("DIAG_ADDR"); v != "" {
		c.DiagAddr = v
	}
	if v := os.Getenv("IPC_SOCKET"); v != "" {
		c.IPCSocket = v
	}
}

func parseUint32(s string) (uint32, error) {
	var n uint64
	_, err := fmt.Sscanf(s, "%d", &n)
	return uint32(n), err
}
