// Command closegroup-node loads configuration, opens its on-disk record
// store, and builds the payment-verified PUT pipeline from core/. It
// starts no network transport and no replication fetcher; after setup
// it blocks until the process is stopped. Flag and
// config wiring follows the teacher's cobra + viper convention (see
// cmd/config), not a hand-rolled flag.FlagSet.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"closegroup/core"
	cfgcmd "closegroup/cmd/config"
)

var (
	envName string
	log     = logrus.New()
)

func main() {
	_ = godotenv.Load() // optional local overrides; missing .env is not an error

	root := &cobra.Command{
		Use:   "closegroup-node",
		Short: "Run a closegroup storage node",
		RunE:  runNode,
	}
	root.PersistentFlags().StringVar(&envName, "env", "", "config overlay to merge on top of default.yaml")

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("node exited with error")
	}
}

func runNode(cmd *cobra.Command, args []string) error {
	cfgcmd.LoadConfig(envName)
	cfg := cfgcmd.AppConfig

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		log.SetOutput(f)
	}

	log.WithFields(logrus.Fields{
		"node_id":     cfg.Node.ID,
		"listen_addr": cfg.Node.ListenAddr,
	}).Info("starting closegroup node")

	storeDir := cfg.Node.RecordStoreDir
	if storeDir == "" {
		storeDir = filepath.Join("data", "records")
	}
	backend, err := core.NewDiskStore(storeDir, cfg.Node.MaxHDDWriteFails)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}

	nodeSeed := []byte(cfg.Node.ID) // deterministic for a given node identity; cmd/node does not yet persist a dedicated keyfile
	nodeKey := core.NewSecretKeyFromSeed(nodeSeed)

	quoteLifetime, err := time.ParseDuration(cfg.Payment.QuoteLifetime)
	if err != nil {
		quoteLifetime = 60 * time.Second
	}

	onChain := newStubOnChainVerifier(cfg.Payment.EVMVerifierAddr, log)

	selfPeer := core.PeerID(cfg.Node.ID)
	verifier := core.NewPaymentVerifier(selfPeer, nodeKey, uint32(cfg.Payment.RoyaltyBasisPoints), quoteLifetime, onChain, loggingObserver{log})
	recordStore := core.NewRecordStore(backend, verifier, loggingObserver{log})

	_ = recordStore
	log.Info("record store ready; serving until interrupted")

	<-context.Background().Done() // placeholder for the real transport serve loop
	return nil
}

// loggingObserver forwards core events to structured log lines.
type loggingObserver struct{ log *logrus.Logger }

func (o loggingObserver) RewardReceived(amount core.NanoTokens, from core.NetworkAddress) {
	o.log.WithFields(logrus.Fields{"amount": amount, "address": from.Name.String()}).Info("reward received")
}

func (o loggingObserver) ChunkStored(addr core.NetworkAddress) {
	o.log.WithField("address", addr.Name.String()).Debug("chunk stored")
}

func (o loggingObserver) RecordReplicated(addr core.NetworkAddress) {
	o.log.WithField("address", addr.Name.String()).Debug("record replicated")
}
