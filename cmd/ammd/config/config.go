package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/protocols/assetregistry"
	"github.com/defistate/defistate-amm-go/storage/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"
)

const (
	StorageMemory = "memory"
	StoragePebble = "pebble"
)

type DaemonConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	// Contract is the hex id of the engine contract; LP assets are issued under it.
	Contract  string   `yaml:"contract"`
	Fees      amm.Fees `yaml:"fees"`
	LPSymbol  string   `yaml:"lp_symbol"`
	// EnableOps serves the unauthenticated operations API. Trusted networks only.
	EnableOps bool     `yaml:"enable_ops"`

	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Stream  StreamConfig  `yaml:"stream"`
	Assets  []AssetConfig `yaml:"assets"`
}

type StorageConfig struct {
	Backend string        `yaml:"backend"`
	Dir     string        `yaml:"dir"`
	Pebble  pebble.Config `yaml:"pebble"`
}

// LogConfig routes logs to stdout, or to a rotating file when File is set.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type StreamConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

type AssetConfig struct {
	Contract string `yaml:"contract"`
	SubID    string `yaml:"sub_id"`
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

// Default returns the configuration used for any field the file leaves out.
func Default() DaemonConfig {
	return DaemonConfig{
		ListenAddr:  "127.0.0.1:8545",
		MetricsAddr: "127.0.0.1:9090",
		Fees: amm.Fees{
			LPFeeVolatile:       30,
			LPFeeStable:         5,
			ProtocolFeeVolatile: 0,
			ProtocolFeeStable:   0,
		},
		LPSymbol: "AMM-LP",
		Storage: StorageConfig{
			Backend: StorageMemory,
			Dir:     "data",
			Pebble:  pebble.NewDefaultConfig(),
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Stream: StreamConfig{BufferSize: 64},
	}
}

// LoadConfig reads a configuration file from the given path and unmarshals it
// over the defaults.
func LoadConfig(path string) (*DaemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*DaemonConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *DaemonConfig) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("config: listen_addr is required")
	}
	if _, err := parseHash(c.Contract); err != nil {
		return fmt.Errorf("config: contract: %w", err)
	}
	if err := c.Fees.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StoragePebble:
		if c.Storage.Dir == "" {
			return errors.New("config: storage.dir is required for the pebble backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	if _, err := c.AssetList(); err != nil {
		return err
	}
	return nil
}

// ContractID returns the parsed engine contract id. Call Validate first.
// OpsExposed reports whether the operations API is enabled on an address
// other than loopback. An empty or unparsable host counts as exposed.
func (c *DaemonConfig) OpsExposed() bool {
	if !c.EnableOps {
		return false
	}
	host, _, err := net.SplitHostPort(c.ListenAddr)
	if err != nil {
		return true
	}
	if host == "localhost" {
		return false
	}
	ip := net.ParseIP(host)
	return ip == nil || !ip.IsLoopback()
}

func (c *DaemonConfig) ContractID() amm.ContractID {
	h, _ := parseHash(c.Contract)
	return h
}

// AssetList converts the configured assets into registry entries.
func (c *DaemonConfig) AssetList() ([]assetregistry.Asset, error) {
	out := make([]assetregistry.Asset, 0, len(c.Assets))
	for i, a := range c.Assets {
		contract, err := parseHash(a.Contract)
		if err != nil {
			return nil, fmt.Errorf("config: assets[%d].contract: %w", i, err)
		}
		sub, err := parseHash(a.SubID)
		if err != nil {
			return nil, fmt.Errorf("config: assets[%d].sub_id: %w", i, err)
		}
		if a.Symbol == "" {
			return nil, fmt.Errorf("config: assets[%d].symbol is required", i)
		}
		out = append(out, assetregistry.NewAsset(contract, sub, a.Name, a.Symbol, a.Decimals))
	}
	return out, nil
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	err := level.UnmarshalText([]byte(l.Level))
	return level, err
}

// parseHash accepts a 0x-prefixed hex string of at most 32 bytes, left-padded.
func parseHash(s string) (common.Hash, error) {
	if s == "" {
		return common.Hash{}, errors.New("empty id")
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) > common.HashLength {
		return common.Hash{}, fmt.Errorf("id %s is longer than %d bytes", s, common.HashLength)
	}
	return common.BytesToHash(b), nil
}
