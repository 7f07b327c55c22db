// Package config defines ledgerd's command-line configuration,
// grounded on the teacher's struct-tag-driven, github.com/jessevdk/go-flags
// parsing convention used throughout its cmd/ tree (e.g.
// cmd/txgen/config.go, cmd/kaspawallet/config.go).
package config

import (
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

const (
	defaultListenHost     = "0.0.0.0"
	defaultListenPort     = "6000"
	defaultMaxPeers       = 8
	defaultBaseDifficulty = 5
	defaultLogLevel       = "info"
)

// Config holds every value a ledgerd node needs at startup.
type Config struct {
	ListenHost     string   `long:"listen-host" description:"Host to bind the peer listener to" default:"0.0.0.0"`
	ListenPort     string   `long:"listen-port" description:"Port to bind the peer listener to" default:"6000"`
	Seeds          []string `long:"seed" description:"Address (host:port) of a peer to dial at startup; may be repeated"`
	MaxPeers       int      `long:"max-peers" description:"Maximum number of simultaneous peer connections" default:"8"`
	DataDir        string   `long:"data-dir" description:"Directory for persisted chain data; empty disables persistence"`
	MineAddress    string   `long:"mine-address" description:"Address to receive coinbase rewards; empty disables mining"`
	BaseDifficulty int      `long:"base-difficulty" description:"Difficulty assigned to the genesis block" default:"5"`
	LogLevel       string   `long:"log-level" description:"Log level for all subsystems (trace, debug, info, warn, error)" default:"info"`
}

// Parse parses os.Args into a Config, applying defaults and validating
// field constraints the way the teacher's cmd/*/config.go files
// do after flags.NewParser.Parse returns.
func Parse() (*Config, error) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses an explicit argument list into a Config, the way
// Parse does with os.Args. Split out so tests can exercise flag
// parsing and validation without touching process-global os.Args.
func ParseArgs(args []string) (*Config, error) {
	cfg := &Config{
		ListenHost:     defaultListenHost,
		ListenPort:     defaultListenPort,
		MaxPeers:       defaultMaxPeers,
		BaseDifficulty: defaultBaseDifficulty,
		LogLevel:       defaultLogLevel,
	}
	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if cfg.MaxPeers <= 0 {
		return nil, errors.New("--max-peers must be positive")
	}
	if cfg.BaseDifficulty <= 0 {
		return nil, errors.New("--base-difficulty must be positive")
	}

	return cfg, nil
}

// BlockStorePath is the on-disk location of persisted chain data
// beneath DataDir.
func (c *Config) BlockStorePath() string {
	return filepath.Join(c.DataDir, "chaindata")
}
