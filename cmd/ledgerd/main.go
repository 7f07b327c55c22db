// Command ledgerd runs a single peer-to-peer ledgerd node: it loads
// any persisted chain, starts the peer listener and protocol dispatch,
// dials configured seeds, and optionally mines.
//
// Structure follows the teacher's cmd/*/main.go convention (parse
// config, construct services, run until interrupted) generalized from
// a single-shot CLI tool to a long-running daemon, in the style of the
// teacher's own kaspad.go service wrapper.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ledgerd/ledgerd/chain"
	"github.com/ledgerd/ledgerd/config"
	"github.com/ledgerd/ledgerd/logger"
	"github.com/ledgerd/ledgerd/mining"
	"github.com/ledgerd/ledgerd/peer"
	"github.com/ledgerd/ledgerd/protocol"
	"github.com/ledgerd/ledgerd/storage"
	"github.com/ledgerd/ledgerd/util/panics"
)

var log = logger.Get(logger.SubsystemTags.LGRD)

// node wraps every long-running service a ledgerd process owns,
// mirroring the teacher's kaspad struct.
type node struct {
	cfg      *config.Config
	engine   *chain.Engine
	peerNode *peer.Node
	protocol *protocol.Manager
	miner    *mining.Miner

	blockStore *storage.LevelDBStore
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", r)
			os.Exit(1)
		}
	}()

	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse configuration: %s\n", err)
		os.Exit(1)
	}

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create data directory: %s\n", err)
			os.Exit(1)
		}
		if err := logger.InitLogRotator(filepath.Join(cfg.DataDir, "ledgerd.log")); err != nil {
			fmt.Fprintf(os.Stderr, "failed to init log rotator: %s\n", err)
			os.Exit(1)
		}
	}
	logger.SetLogLevels(cfg.LogLevel)

	n, err := newNode(cfg)
	if err != nil {
		panics.Fatal(log, err.Error())
	}

	if err := n.start(); err != nil {
		panics.Fatal(log, err.Error())
	}

	waitForShutdown()
	n.stop()
}

// newNode constructs every service without starting network I/O,
// bootstrapping the chain from persisted storage first per
// SPEC_FULL.md §D.3.
func newNode(cfg *config.Config) (*node, error) {
	utxo := storage.NewUTXOCache()
	engine := chain.New(cfg.BaseDifficulty, utxo)

	n := &node{cfg: cfg, engine: engine}

	if cfg.DataDir != "" {
		blockStore, err := storage.OpenLevelDBStore(cfg.BlockStorePath())
		if err != nil {
			return nil, err
		}
		n.blockStore = blockStore
		engine.SetStores(blockStore, blockStore)

		chainBlocks, err := blockStore.LoadChain()
		if err != nil {
			return nil, err
		}
		if len(chainBlocks) == 0 {
			if err := engine.CreateGenesis(cfg.BaseDifficulty); err != nil {
				return nil, err
			}
		} else {
			for i := range chainBlocks {
				if !engine.ReceiveBlock(&chainBlocks[i]) {
					return nil, fmt.Errorf("persisted block %d failed validation on reload", chainBlocks[i].Index)
				}
			}
		}
	} else {
		if err := engine.CreateGenesis(cfg.BaseDifficulty); err != nil {
			return nil, err
		}
	}

	n.peerNode = peer.NewNode(cfg.ListenHost, cfg.ListenPort, cfg.MaxPeers)
	n.protocol = protocol.New(engine, n.peerNode)

	if cfg.MineAddress != "" {
		n.miner = mining.New(engine, cfg.MineAddress)
	}

	return n, nil
}

func (n *node) start() error {
	n.protocol.Start()

	if err := n.peerNode.Listen(); err != nil {
		return err
	}
	log.Infof("listening on %s", n.peerNode.ListenAddr())

	for _, seed := range n.cfg.Seeds {
		if err := dialSeed(n.peerNode, seed); err != nil {
			log.Warnf("failed to dial seed %s: %s", seed, err)
		}
	}

	panics.GoroutineWrapperFunc(log)(n.peerNode.RunPeriodicSync)

	if n.miner != nil {
		log.Infof("mining to %s", n.cfg.MineAddress)
		panics.GoroutineWrapperFunc(log)(n.miner.Run)
	}

	return nil
}

func (n *node) stop() {
	log.Infof("shutting down")

	if n.miner != nil {
		n.miner.Stop()
	}
	n.peerNode.Close()
	if n.blockStore != nil {
		if err := n.blockStore.Close(); err != nil {
			log.Warnf("error closing block store: %s", err)
		}
	}
}

func dialSeed(n *peer.Node, addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid seed address %q: %w", addr, err)
	}
	return n.Dial(host, port)
}

func waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
