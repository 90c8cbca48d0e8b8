package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vocdoni/aztec-rpc/types"
)

const (
	defaultAPIHost      = "0.0.0.0"
	defaultAPIPort      = 8080
	defaultLogLevel     = "info"
	defaultLogOutput    = "stdout"
	defaultDatadir      = ".aztec-rpc" // Will be prefixed with user's home directory
	defaultMineInterval = 5 * time.Second
	defaultSyncInterval = 2 * time.Second
	defaultChainID      = 31337
	defaultVersion      = 1
)

// Version is the build version, set at build time with -ldflags
var Version = "dev"

// Config holds the application configuration
type Config struct {
	API     APIConfig
	Node    NodeConfig
	Rollup  RollupConfig
	Log     LogConfig
	Datadir string
}

// APIConfig holds the API-specific configuration
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// NodeConfig selects the node the client talks to. An empty URL runs an
// embedded node that mines on its own.
type NodeConfig struct {
	URL          string        `mapstructure:"url"`
	MineInterval time.Duration `mapstructure:"mine"`
	SyncInterval time.Duration `mapstructure:"sync"`
	SyncBatch    int           `mapstructure:"batch"`
}

// RollupConfig holds the chain the txs are built for.
type RollupConfig struct {
	ChainID uint64 `mapstructure:"chainid"`
	Version uint64 `mapstructure:"version"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

func (c RollupConfig) chainID() types.Fr { return types.NewFr(c.ChainID) }
func (c RollupConfig) version() types.Fr { return types.NewFr(c.Version) }

// loadConfig loads configuration from flags, environment variables, and defaults
func loadConfig() (*Config, error) {
	v := viper.New()

	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, defaultDatadir)

	v.SetDefault("api.host", defaultAPIHost)
	v.SetDefault("api.port", defaultAPIPort)
	v.SetDefault("node.url", "")
	v.SetDefault("node.mine", defaultMineInterval)
	v.SetDefault("node.sync", defaultSyncInterval)
	v.SetDefault("node.batch", 16)
	v.SetDefault("rollup.chainid", defaultChainID)
	v.SetDefault("rollup.version", defaultVersion)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("datadir", defaultDatadirPath)

	// Configure flags
	flag.StringP("api.host", "a", defaultAPIHost, "API host")
	flag.IntP("api.port", "p", defaultAPIPort, "API port")
	flag.StringP("node.url", "n", "", "node JSON-RPC endpoint (empty runs an embedded node)")
	flag.Duration("node.mine", defaultMineInterval, "block interval of the embedded node")
	flag.Duration("node.sync", defaultSyncInterval, "interval between syncs with a remote node")
	flag.Int("node.batch", 16, "blocks fetched per sync request")
	flag.Uint64("rollup.chainid", defaultChainID, "chain id the txs are built for")
	flag.Uint64("rollup.version", defaultVersion, "rollup version the txs are built for")
	flag.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error, fatal)")
	flag.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.StringP("datadir", "d", defaultDatadirPath, "data directory for database files")

	// Configure usage information
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "aztec-rpc v%s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: aztec-rpc [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, AZTEC_NODE_URL or AZTEC_API_PORT\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Start with an embedded node mining every second\n")
		fmt.Fprintf(os.Stderr, "  aztec-rpc --node.mine=1s\n\n")
		fmt.Fprintf(os.Stderr, "  # Start against a remote node\n")
		fmt.Fprintf(os.Stderr, "  aztec-rpc --node.url=http://localhost:8545\n")
	}

	flag.CommandLine.SortFlags = false
	flag.Parse()

	v.SetEnvPrefix("AZTEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("invalid API port %d", cfg.API.Port)
	}
	if cfg.Node.URL == "" && cfg.Node.MineInterval <= 0 {
		return fmt.Errorf("the embedded node needs a positive mining interval")
	}
	if cfg.Node.URL != "" && cfg.Node.SyncInterval <= 0 {
		return fmt.Errorf("a remote node needs a positive sync interval")
	}
	if cfg.Node.SyncBatch <= 0 {
		return fmt.Errorf("invalid sync batch %d", cfg.Node.SyncBatch)
	}
	return nil
}
