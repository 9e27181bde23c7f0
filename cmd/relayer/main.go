// Copyright 2025 Certen Protocol
//
// Relayer daemon entrypoint. Startup sequence follows main.go's shape:
// load config, connect dependencies with graceful degradation for
// optional ones, wire the scheduler, serve /metrics and /health, and
// shut down on SIGINT/SIGTERM with a bounded grace period.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/certen/interchain-agent/pkg/agentd/config"
	"github.com/certen/interchain-agent/pkg/agentd/errors"
	"github.com/certen/interchain-agent/pkg/agentd/logging"
	"github.com/certen/interchain-agent/pkg/chain"
	"github.com/certen/interchain-agent/pkg/chain/aleo"
	"github.com/certen/interchain-agent/pkg/chain/cosmos"
	"github.com/certen/interchain-agent/pkg/chain/evm"
	"github.com/certen/interchain-agent/pkg/chain/sealevel"
	"github.com/certen/interchain-agent/pkg/chain/starknet"
	"github.com/certen/interchain-agent/pkg/domain"
	"github.com/certen/interchain-agent/pkg/indexer"
	"github.com/certen/interchain-agent/pkg/ism"
	"github.com/certen/interchain-agent/pkg/lander"
	"github.com/certen/interchain-agent/pkg/message"
	"github.com/certen/interchain-agent/pkg/observability"
	"github.com/certen/interchain-agent/pkg/pipeline"
	"github.com/certen/interchain-agent/pkg/scheduler"
	"github.com/certen/interchain-agent/pkg/store"
)

// destination bundles everything the relayer needs to prepare and submit a
// message toward one destination chain.
type destination struct {
	adapter  chain.Adapter
	pipeline *pipeline.Pipeline
	lander   *lander.Lander
	landerPA *lander.PipelineAdapter
}

func main() {
	logger := logging.New("relayer")

	var showHelp = flag.Bool("help", false, "Show help message")
	flag.Parse()
	if *showHelp {
		fmt.Println("relayer: interchain message delivery daemon. Configure via HYP_* environment variables.")
		return
	}

	cfg, err := config.Load(os.Getenv)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	health := observability.NewHealth()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	db, err := dbm.NewGoLevelDB("relayer", cfg.DataDir)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer db.Close()
	st := store.New(db)
	health.SetStore("connected")

	eventSink, err := observability.NewEventSink(cfg.DatabaseURL)
	if err != nil {
		if cfg.DatabaseRequired {
			logger.Fatalf("sql event sink required but unavailable: %v", err)
		}
		logger.Printf("sql event sink unavailable, running degraded: %v", err)
		eventSink, _ = observability.NewEventSink("")
	}
	defer eventSink.Close()

	registry := chain.NewRegistry()
	registry.Register(chain.ProtocolEVM, evm.New)
	registry.Register(chain.ProtocolCosmos, cosmos.Factory)
	registry.Register(chain.ProtocolSealevel, sealevel.Factory)
	registry.Register(chain.ProtocolStarknet, starknet.Factory)
	registry.Register(chain.ProtocolAleo, aleo.Factory)

	ctx, cancel := context.WithCancel(context.Background())

	adapters := make(map[string]chain.Adapter)
	domainToName := make(map[domain.Domain]string)
	for name, chainCfg := range cfg.Chains {
		d, err := domainFor(name, cfg)
		if err != nil {
			logger.Printf("skip chain %s: %v", name, err)
			health.SetChain(name, "disconnected")
			continue
		}
		adapter, err := registry.Build(ctx, name, chainCfg, d)
		if err != nil {
			logger.Printf("build adapter for %s failed, running degraded: %v", name, err)
			health.SetChain(name, "disconnected")
			continue
		}
		if evmAdapter, ok := adapter.(*evm.Adapter); ok {
			if chainCfg.MailboxAddress != "" {
				mailbox, merr := message.Address32FromHex(chainCfg.MailboxAddress)
				if merr != nil {
					logger.Printf("chain %s: invalid mailbox address, running degraded: %v", name, merr)
					health.SetChain(name, "disconnected")
					continue
				}
				evmAdapter.SetMailbox(mailbox)
			}
			if chainCfg.Signer != "" {
				signer, serr := message.Address32FromHex(chainCfg.Signer)
				if serr != nil {
					logger.Printf("chain %s: invalid signer address: %v", name, serr)
				} else {
					evmAdapter.SetSigner(signer)
				}
			}
		}
		adapters[name] = adapter
		domainToName[d] = name
		health.SetChain(name, "connected")
	}

	checkpointSource := ism.NewStaticCheckpointSource(nil)
	originTrees := ism.NewOriginTrees()
	gasPolicy := pipeline.NewStoreGasPolicy(cfg.Relayer, st)

	destinations := make(map[string]*destination)
	for _, name := range cfg.Relayer.DestinationChainNames {
		adapter, ok := adapters[name]
		if !ok {
			logger.Printf("destination %s has no connected adapter, deliveries to it will be skipped", name)
			continue
		}

		chainCfg := cfg.Chains[name]
		var decoder ism.ModuleDecoder
		switch chain.Protocol(chainCfg.Protocol) {
		case chain.ProtocolEVM:
			decoder = ism.EVMDecoder{}
		default:
			logger.Printf("destination %s (%s) has no ISM decoder, deliveries to it will be skipped", name, chainCfg.Protocol)
			continue
		}

		resolver := ism.NewChainResolver(adapter, decoder, checkpointSource, originTrees)
		builder := ism.NewBuilder(resolver)
		pl := pipeline.New(cfg.Relayer, builder, gasPolicy, st)

		nonceSource := nonceSourceFor(adapter)
		nonces := lander.NewNonceManager(name, nonceSource)
		gasCap := new(big.Int).Mul(big.NewInt(int64(chainCfg.GasCapGwei)), big.NewInt(1_000_000_000))
		ld := lander.New(name, adapter, nonces, st, gasCap, 5)

		destinations[name] = &destination{
			adapter:  adapter,
			pipeline: pl,
			lander:   ld,
			landerPA: lander.NewPipelineAdapter(ld),
		}
	}

	var tasks []scheduler.Task
	for _, originName := range cfg.Relayer.OriginChainNames {
		adapter, ok := adapters[originName]
		if !ok {
			continue
		}
		originName, adapter := originName, adapter
		originDomain := adapter.Domain()

		var mailbox message.Address32
		if chainCfg := cfg.Chains[originName]; chainCfg.MailboxAddress != "" {
			if m, merr := message.Address32FromHex(chainCfg.MailboxAddress); merr == nil {
				mailbox = m
			}
		}
		ixCfg := indexer.DefaultConfig()
		ixCfg.ChainName = originName
		ixCfg.EventType = chain.EventDispatch
		ixCfg.ContractAddress = chain.LogFilter{
			ContractAddress: mailbox,
			EventTypes:      []chain.EventType{chain.EventDispatch, chain.EventGasPayment, chain.EventMerkleInsertion},
		}

		ix := indexer.New(ixCfg, adapter, st, func(ctx context.Context, batch []chain.Indexed) error {
			return handleBatch(ctx, originName, originDomain, batch, st, destinations, domainToName, originTrees, metrics, eventSink, logger)
		})
		tasks = append(tasks, scheduler.Task{
			Name:        "indexer." + originName,
			Destination: originName,
			Interval:    15 * time.Second,
			Run:         ix.Run,
		})
	}

	for _, destName := range cfg.Relayer.DestinationChainNames {
		dst, ok := destinations[destName]
		if !ok {
			continue
		}
		destName, dst := destName, dst

		var mailbox message.Address32
		if chainCfg := cfg.Chains[destName]; chainCfg.MailboxAddress != "" {
			if m, merr := message.Address32FromHex(chainCfg.MailboxAddress); merr == nil {
				mailbox = m
			}
		}
		ixCfg := indexer.DefaultConfig()
		ixCfg.ChainName = destName + ".process"
		ixCfg.EventType = chain.EventProcess
		ixCfg.ContractAddress = chain.LogFilter{
			ContractAddress: mailbox,
			EventTypes:      []chain.EventType{chain.EventProcess, chain.EventProcessID},
		}

		ix := indexer.New(ixCfg, dst.adapter, st, func(ctx context.Context, batch []chain.Indexed) error {
			return handleConfirmations(ctx, destName, dst.adapter.Domain(), batch, st, domainToName, eventSink, logger)
		})
		tasks = append(tasks, scheduler.Task{
			Name:        "indexer." + destName + ".process",
			Destination: destName,
			Interval:    15 * time.Second,
			Run:         ix.Run,
		})

		escalator := dst
		tasks = append(tasks, scheduler.Task{
			Name:        "escalate." + destName,
			Destination: destName,
			Interval:    cfg.Relayer.EscalationInterval,
			Run: func(ctx context.Context) error {
				return pollEscalations(ctx, destName, escalator, st, cfg.Relayer.EscalationInterval, metrics, logger)
			},
		})
	}

	sched := scheduler.New(scheduler.DefaultConfig(), tasks)
	if err := sched.Start(ctx); err != nil {
		logger.Fatalf("start scheduler: %v", err)
	}

	mux := observability.Mux(reg, health)
	httpServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		logger.Printf("relayer HTTP surface listening on %s", cfg.MetricsAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("shutting down relayer")
	cancel()

	if err := sched.Stop(); err != nil {
		logger.Printf("scheduler shutdown: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http server shutdown: %v", err)
	}

	logger.Println("relayer stopped")
}

// handleBatch persists every indexed event and, for dispatches bound to a
// connected destination, drives them through that destination's pipeline
// and hands the prepared submission to its lander. Merkle insertions feed
// originTrees, the relayer's own mirror of the origin mailbox's tree that
// backs merkle-root multisig inclusion proofs.
func handleBatch(ctx context.Context, originName string, originDomain domain.Domain, batch []chain.Indexed, st *store.Store, destinations map[string]*destination, domainToName map[domain.Domain]string, originTrees *ism.OriginTrees, metrics *observability.Metrics, eventSink *observability.EventSink, logger *log.Logger) error {
	for _, ix := range batch {
		switch ix.Event.Type {
		case chain.EventDispatch:
			if err := processDispatch(ctx, originName, ix, st, destinations, domainToName, metrics, eventSink, logger); err != nil {
				logger.Printf("chain %s: process dispatch failed: %v", originName, err)
			}

		case chain.EventMerkleInsertion:
			if err := originTrees.Observe(originDomain, *ix.Event.MerkleInsertion); err != nil {
				logger.Printf("chain %s: origin tree insertion failed: %v", originName, err)
			}

		case chain.EventGasPayment:
			gp := ix.Event.GasPayment
			seq := uint64(ix.Block)<<32 | uint64(ix.LogIndex)
			rec := store.GasPaymentRecord{
				Payment:   gp.Payment.String(),
				GasAmount: gp.GasAmount.String(),
			}
			if err := st.AppendGasPayment(gp.MessageID, seq, rec); err != nil {
				logger.Printf("chain %s: persist gas payment failed: %v", originName, err)
			}
		}
	}
	return nil
}

// handleConfirmations retires pending ops once a destination chain's
// Process event proves delivery. This is the only path that marks a
// message delivered; gas escalation alone never does, it only keeps a
// stale submission from stalling forever.
func handleConfirmations(ctx context.Context, destName string, destDomain domain.Domain, batch []chain.Indexed, st *store.Store, domainToName map[domain.Domain]string, eventSink *observability.EventSink, logger *log.Logger) error {
	for _, ix := range batch {
		if ix.Event.Type != chain.EventProcess && ix.Event.Type != chain.EventProcessID {
			continue
		}
		proc := ix.Event.Process
		if proc == nil {
			continue
		}

		messageID := [32]byte(proc.MessageID)
		if err := st.DeletePendingOp(destDomain, messageID); err != nil {
			logger.Printf("chain %s: delete pending op for %s failed: %v", destName, proc.MessageID, err)
		}

		rec := observability.EventRecord{
			MessageID:   proc.MessageID.String(),
			Origin:      domainToName[proc.Origin],
			Destination: destName,
			Outcome:     "confirmed",
		}
		if err := eventSink.Record(ctx, rec); err != nil {
			logger.Printf("event sink record failed for %s: %v", proc.MessageID, err)
		}
		logger.Printf("message %s confirmed on %s", proc.MessageID, destName)
	}
	return nil
}

// pollEscalations drives gas-price escalation for every submission that
// has sat pending past staleInterval on dst's lander, without reserving a
// fresh nonce (the resubmission replaces, rather than queues behind, the
// original).
func pollEscalations(ctx context.Context, destName string, dst *destination, st *store.Store, staleInterval time.Duration, metrics *observability.Metrics, logger *log.Logger) error {
	if err := dst.lander.PollAndEscalate(ctx, staleInterval); err != nil {
		logger.Printf("chain %s: escalation poll failed: %v", destName, err)
		return err
	}
	return nil
}

func processDispatch(ctx context.Context, originName string, ix chain.Indexed, st *store.Store, destinations map[string]*destination, domainToName map[domain.Domain]string, metrics *observability.Metrics, eventSink *observability.EventSink, logger *log.Logger) error {
	msg := ix.Event.Dispatch.Message
	msg.Nonce = ix.IndexWithinBlock // placeholder ordering key until the canonical dispatch nonce is threaded through decodeLog

	rec := store.MessageRecord{
		Origin:      msg.Origin,
		Nonce:       msg.Nonce,
		MessageID:   [32]byte(msg.ID()),
		Destination: msg.Destination,
		Sender:      [32]byte(msg.Sender),
		Recipient:   [32]byte(msg.Recipient),
		Body:        msg.Body,
		DispatchBlk: ix.Block,
	}
	if err := st.PutMessage(rec); err != nil {
		return fmt.Errorf("persist message: %w", err)
	}

	destName, ok := domainToName[msg.Destination]
	if !ok {
		metrics.MessagesDropped.WithLabelValues("unknown_destination").Inc()
		recordEvent(ctx, eventSink, msg, originName, "", "", "dropped", "unknown_destination", logger)
		return nil
	}
	dst, ok := destinations[destName]
	if !ok {
		metrics.MessagesDropped.WithLabelValues("destination_not_wired").Inc()
		recordEvent(ctx, eventSink, msg, originName, destName, "", "dropped", "destination_not_wired", logger)
		return nil
	}

	stageStart := time.Now()
	prepared, err := dst.pipeline.Process(ctx, msg, dst.adapter, originName)
	metrics.ObserveStage("pipeline_process", stageStart)
	if err != nil {
		class := errors.Classify(err)
		metrics.MessagesDropped.WithLabelValues(string(class.Kind)).Inc()
		if !class.Retry {
			logger.Printf("message %s dropped (non-retryable): %v", msg.ID(), err)
			recordEvent(ctx, eventSink, msg, originName, destName, "", "dropped", string(class.Kind), logger)
		}
		return err
	}

	if err := dst.landerPA.Submit(ctx, dst.adapter, prepared.Tx, msg.ID(), prepared.CorrelationID); err != nil {
		metrics.MessagesDropped.WithLabelValues("submit_failed").Inc()
		recordEvent(ctx, eventSink, msg, originName, destName, prepared.CorrelationID.String(), "dropped", "submit_failed", logger)
		return fmt.Errorf("submit to %s: %w (correlation_id=%s)", destName, err, prepared.CorrelationID)
	}

	logger.Printf("message %s handed to lander correlation_id=%s", msg.ID(), prepared.CorrelationID)
	metrics.MessagesProcessed.WithLabelValues(destName, "submitted").Inc()
	recordEvent(ctx, eventSink, msg, originName, destName, prepared.CorrelationID.String(), "submitted", "", logger)
	return nil
}

// recordEvent writes one submitted/dropped outcome to the optional SQL
// event sink; a disabled sink makes this a no-op.
func recordEvent(ctx context.Context, sink *observability.EventSink, msg message.Message, originName, destName, correlationID, outcome, reason string, logger *log.Logger) {
	rec := observability.EventRecord{
		MessageID:     msg.ID().String(),
		CorrelationID: correlationID,
		Origin:        originName,
		Destination:   destName,
		Outcome:       outcome,
		Reason:        reason,
	}
	if err := sink.Record(ctx, rec); err != nil {
		logger.Printf("event sink record failed for %s: %v", msg.ID(), err)
	}
}

// nonceSourceFor adapts an adapter to lander.ChainNonceSource when it
// implements PendingNonce (only the EVM adapter does today); protocols
// without a live nonce query fall back to a zero-based in-memory source,
// consistent with those adapters' CallView/Submit also being unimplemented
// until a protocol-specific RPC client is wired in.
func nonceSourceFor(adapter chain.Adapter) lander.ChainNonceSource {
	if ns, ok := adapter.(lander.ChainNonceSource); ok {
		return ns
	}
	return zeroNonceSource{}
}

type zeroNonceSource struct{}

func (zeroNonceSource) PendingNonce(context.Context) (uint64, error) { return 0, nil }

// domainFor resolves the numeric domain id for a configured chain name
// from HYP_CHAINS_<NAME>_DOMAIN.
func domainFor(name string, cfg *config.Config) (domain.Domain, error) {
	c, ok := cfg.Chains[name]
	if !ok {
		return 0, fmt.Errorf("no configuration for chain %q", name)
	}
	return domain.Domain(c.Domain), nil
}
