// Command closegroup-client uploads a local file through the chunking
// engine and upload orchestrator in core/, paying close-group nodes from
// a local HD wallet. Flag and config wiring mirrors cmd/node.
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

	cfgcmd "closegroup/cmd/config"
	"closegroup/core"
)

var (
	envName  string
	filePath string
	log      = logrus.New()
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "closegroup-client",
		Short: "Upload a file to a closegroup storage network",
		RunE:  runUpload,
	}
	root.PersistentFlags().StringVar(&envName, "env", "", "config overlay to merge on top of default.yaml")
	root.Flags().StringVar(&filePath, "file", "", "path to the file to upload")
	_ = root.MarkFlagRequired("file")

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("upload failed")
	}
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfgcmd.LoadConfig(envName)
	cfg := cfgcmd.AppConfig

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("resolve source path: %w", err)
	}

	artifactsDir := filepath.Join(cfg.Wallet.RootDir, "artifacts")
	engine, err := core.NewChunkingEngine(artifactsDir, fixedSizeEncryptor{chunkSize: 4 << 20})
	if err != nil {
		return fmt.Errorf("open chunking engine: %w", err)
	}

	// The source file is only read if this path key has never been
	// chunked before, or its contents changed since an interrupted run;
	// a clean resume reconstructs everything from artifacts on disk.
	job, completed, err := engine.Begin(absPath, func() ([]byte, error) { return os.ReadFile(absPath) })
	if err != nil {
		return fmt.Errorf("chunk file: %w", err)
	}
	log.WithFields(logrus.Fields{
		"path_key":    job.PathKey,
		"chunks":      len(job.ChunkAddresses),
		"already_done": len(completed),
	}).Info("chunking complete, resuming any prior progress")

	seed, err := loadOrCreateWalletSeed(cfg.Wallet.RootDir, log)
	if err != nil {
		return fmt.Errorf("load wallet seed: %w", err)
	}
	wallet, err := core.NewHDWallet(cfg.Wallet.RootDir, seed, cfg.Wallet.MaxResendPendingTxTries)
	if err != nil {
		return fmt.Errorf("open wallet: %w", err)
	}

	pm := core.NewPaymentMap()
	uploader := core.NewUploader(buildHooks(job, completed, engine, wallet, log), pm)
	uploader.BatchSize = cfg.Upload.BatchSize
	uploader.MaxSequentialNetworkErrors = cfg.Upload.MaxSequentialNetworkErrors
	uploader.MaxSequentialPaymentFails = cfg.Upload.MaxSequentialPaymentFails
	uploader.FailuresBeforeDifferentPayee = cfg.Upload.FailuresBeforeDifferentPayee
	uploader.MaxRepaymentsPerAddress = cfg.Upload.MaxRepaymentsPerAddress

	var items []*core.UploadItem
	for addr := range completed {
		_ = addr // already stored; GetRegister hook will short-circuit these
	}
	for _, name := range job.ChunkAddresses {
		items = append(items, &core.UploadItem{Address: core.NetworkAddress{Kind: core.KindChunk, Name: name}})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := uploader.Run(ctx, items); err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	if err := engine.Finish(job.PathKey); err != nil {
		log.WithError(err).Warn("could not clear resume artifact after a successful upload")
	}
	log.Info("upload complete")
	return nil
}

// loadOrCreateWalletSeed reads the recovery phrase from mnemonic.txt
// under walletDir, generating and persisting a fresh one on first run.
func loadOrCreateWalletSeed(walletDir string, log *logrus.Logger) ([]byte, error) {
	if err := os.MkdirAll(walletDir, 0o700); err != nil {
		return nil, err
	}
	path := filepath.Join(walletDir, "mnemonic.txt")
	b, err := os.ReadFile(path)
	if err == nil {
		return core.SeedFromMnemonic(string(b), "")
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	mnemonic, err := core.GenerateMnemonic()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(mnemonic), 0o600); err != nil {
		return nil, err
	}
	log.Warn("generated a new wallet recovery phrase; back up " + path)
	return core.SeedFromMnemonic(mnemonic, "")
}

// fixedSizeEncryptor is a placeholder Encryptor: fixed-size plaintext
// chunking with a trivial data-map chunk listing addresses in order. A
// production client performs self-encryption here instead (out of
// scope; see core/chunker.go).
type fixedSizeEncryptor struct{ chunkSize int }

func (e fixedSizeEncryptor) Encrypt(data []byte) (chunks [][]byte, dataMapChunk []byte, err error) {
	for off := 0; off < len(data); off += e.chunkSize {
		end := off + e.chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := make([]byte, end-off)
		copy(chunk, data[off:end])
		chunks = append(chunks, chunk)
	}
	dataMap := make([]byte, 0, 32*len(chunks))
	for _, c := range chunks {
		addr := core.HashContent(c)
		dataMap = append(dataMap, addr[:]...)
	}
	return chunks, dataMap, nil
}
