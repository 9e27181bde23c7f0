// Copyright 2025 Certen Protocol
//
// Validator daemon entrypoint. Watches one origin chain's Mailbox merkle
// tree insertions, signs a checkpoint for every new leaf and publishes it
// to the configured checkpoint store. Startup/shutdown shape mirrors the
// relayer binary: load config, connect dependencies, serve /metrics and
// /health, shut down on SIGINT/SIGTERM with a bounded grace period.

package main

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/prometheus/client_golang/prometheus"
	"cloud.google.com/go/storage"

	"github.com/certen/interchain-agent/pkg/agentd/config"
	"github.com/certen/interchain-agent/pkg/agentd/errors"
	"github.com/certen/interchain-agent/pkg/agentd/logging"
	"github.com/certen/interchain-agent/pkg/chain"
	"github.com/certen/interchain-agent/pkg/chain/aleo"
	"github.com/certen/interchain-agent/pkg/chain/cosmos"
	"github.com/certen/interchain-agent/pkg/chain/evm"
	"github.com/certen/interchain-agent/pkg/chain/sealevel"
	"github.com/certen/interchain-agent/pkg/chain/starknet"
	"github.com/certen/interchain-agent/pkg/checkpoint"
	"github.com/certen/interchain-agent/pkg/crypto/bls"
	"github.com/certen/interchain-agent/pkg/domain"
	"github.com/certen/interchain-agent/pkg/indexer"
	"github.com/certen/interchain-agent/pkg/merkle"
	"github.com/certen/interchain-agent/pkg/message"
	"github.com/certen/interchain-agent/pkg/observability"
	"github.com/certen/interchain-agent/pkg/store"
)

const reorgFlagFile = "reorg_flag.json"

func main() {
	logger := logging.New("validator")

	var showHelp = flag.Bool("help", false, "Show help message")
	flag.Parse()
	if *showHelp {
		fmt.Println("validator: interchain checkpoint signing daemon. Configure via HYP_* environment variables.")
		return
	}

	cfg, err := config.Load(os.Getenv)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.ValidateForValidator(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	reorgFlagPath := filepath.Join(cfg.DataDir, reorgFlagFile)
	if _, err := os.Stat(reorgFlagPath); err == nil {
		logger.Fatalf("refusing to start: %s present from a prior fatal sequence gap; clear it only after confirming the origin chain did not reorg past this validator's last published checkpoint", reorgFlagPath)
	}

	health := observability.NewHealth()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	db, err := dbm.NewGoLevelDB("validator", cfg.DataDir)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer db.Close()
	st := store.New(db)
	health.SetStore("connected")

	registry := chain.NewRegistry()
	registry.Register(chain.ProtocolEVM, evm.New)
	registry.Register(chain.ProtocolCosmos, cosmos.Factory)
	registry.Register(chain.ProtocolSealevel, sealevel.Factory)
	registry.Register(chain.ProtocolStarknet, starknet.Factory)
	registry.Register(chain.ProtocolAleo, aleo.Factory)

	originName := cfg.Validator.OriginChainName
	chainCfg := cfg.Chains[originName]
	dom := domain.Domain(chainCfg.Domain)

	ctx, cancel := context.WithCancel(context.Background())

	adapter, err := registry.Build(ctx, originName, chainCfg, dom)
	if err != nil {
		logger.Fatalf("build origin adapter for %s: %v", originName, err)
	}
	var mailbox message.Address32
	if chainCfg.MailboxAddress != "" {
		mailbox, err = message.Address32FromHex(chainCfg.MailboxAddress)
		if err != nil {
			logger.Fatalf("invalid mailbox address for %s: %v", originName, err)
		}
	}
	if evmAdapter, ok := adapter.(*evm.Adapter); ok {
		evmAdapter.SetMailbox(mailbox)
	}
	health.SetChain(originName, "connected")

	signer, validatorAddr, err := loadSigner(cfg.Validator.SignerScheme, cfg.Validator.SignerKeyHex, cfg.Validator.SignerKeyPath)
	if err != nil {
		logger.Fatalf("load signer: %v", err)
	}

	syncer, storageLocation, err := buildSyncer(ctx, cfg.Validator)
	if err != nil {
		logger.Fatalf("build checkpoint syncer: %v", err)
	}
	checkpointStore := checkpoint.New(syncer)

	mirror, err := checkpoint.NewFirestoreMirror(ctx, checkpoint.FirestoreMirrorConfig{
		ProjectID:       cfg.Validator.FirestoreProjectID,
		CredentialsFile: cfg.Validator.FirestoreCredentialsFile,
		Enabled:         cfg.Validator.FirestoreMirrorEnabled,
		Collection:      cfg.Validator.FirestoreCollection,
	}, validatorAddr.String())
	if err != nil {
		logger.Fatalf("build firestore mirror: %v", err)
	}
	defer mirror.Close()

	announcement := checkpoint.Announcement{
		Validator:       validatorAddr,
		MailboxAddress:  mailbox,
		MailboxDomain:   uint32(dom),
		StorageLocation: storageLocation,
	}
	if err := checkpointStore.PublishAnnouncement(ctx, announcement); err != nil {
		logger.Fatalf("publish announcement: %v", err)
	}
	logger.Printf("announced validator %s for domain %d at %s", validatorAddr, dom, storageLocation)

	insertions := merkle.NewInsertionLog()
	fatalCh := make(chan error, 1)

	ixCfg := indexer.DefaultConfig()
	ixCfg.ChainName = originName
	ixCfg.EventType = chain.EventMerkleInsertion
	ixCfg.ContractAddress = chain.LogFilter{
		ContractAddress: mailbox,
		EventTypes:      []chain.EventType{chain.EventMerkleInsertion},
	}
	if cfg.Validator.PollInterval > 0 {
		ixCfg.PollInterval = cfg.Validator.PollInterval
	}
	ixCfg.FinalityLag = cfg.Validator.ReorgPeriod

	ix := indexer.New(ixCfg, adapter, st, func(ctx context.Context, batch []chain.Indexed) error {
		return handleInsertions(ctx, batch, insertions, checkpointStore, mirror, mailbox, dom, signer, metrics, logger, fatalCh)
	})

	ixDone := make(chan struct{})
	go func() {
		defer close(ixDone)
		if err := ix.Run(ctx); err != nil {
			select {
			case fatalCh <- err:
			default:
			}
		}
	}()

	mux := observability.Mux(reg, health)
	httpServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		logger.Printf("validator HTTP surface listening on %s", cfg.MetricsAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-quit:
		logger.Println("shutting down validator")
	case fatalErr := <-fatalCh:
		class := errors.Classify(fatalErr)
		logger.Printf("fatal error (kind=%s): %s", class.Kind, class.Message)
		if class.Kind == errors.KindChainReorg {
			if werr := writeReorgFlag(reorgFlagPath, fatalErr); werr != nil {
				logger.Printf("write reorg flag: %v", werr)
			}
		}
		exitCode = 1
	}

	cancel()
	<-ixDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http server shutdown: %v", err)
	}

	logger.Println("validator stopped")
	os.Exit(exitCode)
}

// handleInsertions appends every observed merkle insertion to the
// insertion log in order, signing and publishing a checkpoint for each
// one. A sequence gap from insertions.Append is tagged as
// KindChainReorg ("fatal.sequence_gap"), sent to fatalCh without
// blocking, and returned.
func handleInsertions(ctx context.Context, batch []chain.Indexed, insertions *merkle.InsertionLog, store *checkpoint.Store, mirror *checkpoint.FirestoreMirror, mailbox message.Address32, dom domain.Domain, signer checkpointSigner, metrics *observability.Metrics, logger *log.Logger, fatalCh chan<- error) error {
	for _, ix := range batch {
		if ix.Event.Type != chain.EventMerkleInsertion {
			continue
		}
		insertion := ix.Event.MerkleInsertion

		if err := insertions.Append(insertion.Index, insertion.MessageID); err != nil {
			tagged := errors.Tagged(errors.KindChainReorg, "fatal.sequence_gap", err)
			select {
			case fatalCh <- tagged:
			default:
			}
			return tagged
		}

		rootBytes, err := insertions.Root()
		if err != nil {
			return fmt.Errorf("validator: compute root after index %d: %w", insertion.Index, err)
		}
		var root message.Hash
		copy(root[:], rootBytes)

		ckpt := message.Checkpoint{
			MerkleTreeAddress: mailbox,
			MailboxDomain:     dom,
			Root:              root,
			Index:             insertion.Index,
		}
		digest := ckpt.SigningDigest()
		sig := signer.Sign(digest)
		messageID := insertion.MessageID

		entry := checkpoint.Entry{Checkpoint: ckpt, Signature: sig, MessageID: &messageID}

		stageStart := time.Now()
		err = store.Publish(ctx, entry)
		metrics.ObserveStage("checkpoint_publish", stageStart)
		if err != nil {
			return fmt.Errorf("validator: publish checkpoint index %d: %w", insertion.Index, err)
		}
		if err := mirror.Record(ctx, entry); err != nil {
			logger.Printf("firestore mirror record failed for index %d: %v", insertion.Index, err)
		}
		logger.Printf("published checkpoint index=%d root=%s", insertion.Index, root)
	}
	return nil
}

// checkpointSigner abstracts the two signature schemes a validator may
// sign checkpoints with, per the weighted-BLS vs message-id/merkle-root
// Ed25519 ISM leaf families this network supports on the verifying side.
type checkpointSigner interface {
	Sign(digest message.Hash) []byte
}

type blsSigner struct{ key *bls.PrivateKey }

func (s blsSigner) Sign(digest message.Hash) []byte {
	return s.key.SignWithDomain(digest[:], bls.DomainAttestation).Bytes()
}

type ed25519Signer struct{ key ed25519.PrivateKey }

func (s ed25519Signer) Sign(digest message.Hash) []byte {
	return ed25519.Sign(s.key, digest[:])
}

// loadSigner builds a checkpointSigner from the configured scheme and key
// material, plus a stable validator identity address derived by hashing
// the public key — this network's checkpoint signers are BLS/Ed25519
// rather than the ECDSA keys an Address32 is otherwise sized for, so
// identity here is a digest of the public key rather than a chain-native
// address. For the bls scheme, keyHex takes precedence when set; otherwise
// keyPath is handed to a bls.KeyManager, which loads the key file if it
// exists or generates and persists a new one if it doesn't, so a fresh
// validator deployment never needs an operator to hand-generate a key.
func loadSigner(scheme, keyHex, keyPath string) (checkpointSigner, message.Address32, error) {
	switch scheme {
	case "", "bls":
		if keyHex != "" {
			sk, err := bls.PrivateKeyFromHex(keyHex)
			if err != nil {
				return nil, message.Address32{}, fmt.Errorf("validator: load bls key: %w", err)
			}
			return blsSigner{key: sk}, addressFromPublicKey(sk.PublicKey().Bytes()), nil
		}

		km := bls.NewKeyManager(keyPath)
		if err := km.LoadOrGenerateKey(); err != nil {
			return nil, message.Address32{}, fmt.Errorf("validator: load or generate bls key: %w", err)
		}
		return blsSigner{key: km.GetPrivateKey()}, addressFromPublicKey(km.GetPublicKeyBytes()), nil

	case "ed25519":
		raw, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, message.Address32{}, fmt.Errorf("validator: decode ed25519 key hex: %w", err)
		}
		var priv ed25519.PrivateKey
		switch len(raw) {
		case ed25519.SeedSize:
			priv = ed25519.NewKeyFromSeed(raw)
		case ed25519.PrivateKeySize:
			priv = ed25519.PrivateKey(raw)
		default:
			return nil, message.Address32{}, fmt.Errorf("validator: ed25519 key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
		}
		pub := priv.Public().(ed25519.PublicKey)
		return ed25519Signer{key: priv}, addressFromPublicKey(pub), nil

	default:
		return nil, message.Address32{}, fmt.Errorf("validator: unknown signer scheme %q", scheme)
	}
}

func addressFromPublicKey(pub []byte) message.Address32 {
	return message.Address32(sha256.Sum256(pub))
}

// buildSyncer constructs the checkpoint.Syncer the configured medium
// names, plus a human-readable storage location string for the
// validator's self-announcement.
func buildSyncer(ctx context.Context, vcfg config.ValidatorConfig) (checkpoint.Syncer, string, error) {
	switch vcfg.CheckpointSyncer {
	case "", "localFileSystem":
		syncer, err := checkpoint.NewLocalFSSyncer(vcfg.CheckpointPath)
		if err != nil {
			return nil, "", err
		}
		return syncer, "file://" + vcfg.CheckpointPath, nil

	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("validator: gcs client: %w", err)
		}
		syncer := checkpoint.NewGCSSyncer(client, vcfg.CheckpointBucket, "")
		return syncer, "gs://" + vcfg.CheckpointBucket, nil

	default:
		return nil, "", fmt.Errorf("validator: unknown checkpoint syncer %q", vcfg.CheckpointSyncer)
	}
}

func writeReorgFlag(path string, cause error) error {
	body := fmt.Sprintf("{\"reason\": %q, \"time\": %q}\n", cause.Error(), time.Now().UTC().Format(time.RFC3339))
	return os.WriteFile(path, []byte(body), 0o644)
}
