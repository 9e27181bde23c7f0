// Copyright 2025 Certen Protocol
//
// Configuration loading. Every field is populated from an environment
// variable following the HYP_<SECTION>_<FIELD> convention — there is no
// config file parsing here, by design: the binary surface is env-vars-only.

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ChainConfig describes one chain this process talks to, keyed by name in
// Config.Chains.
type ChainConfig struct {
	Domain          uint32
	Protocol        string // "evm", "cosmos", "sealevel", "starknet", "aleo"
	RPCUrls         []string
	Signer          string
	MailboxAddress  string // hex-encoded, chain-native width (20 bytes for EVM)
	IndexFrom       uint64
	IndexChunk      uint64
	FinalityBlocks  uint64
	GasCapGwei      uint64
}

// RelayerConfig is the relayer.* section.
type RelayerConfig struct {
	OriginChainNames      []string
	DestinationChainNames []string
	Whitelist             []string
	Blacklist             []string
	GasPaymentEnforcement string // "none", "minimum", "onChainFeeQuoting"
	GasPaymentMinimum     uint64
	MetricsPort           int
	EscalationInterval    time.Duration
	MaxBodySize           uint64
}

// ValidatorConfig is the validator.* section, only populated when running
// the validator binary.
type ValidatorConfig struct {
	OriginChainName  string
	CheckpointSyncer string // "localFileSystem" or "gcs"
	CheckpointPath   string
	CheckpointBucket string // used when CheckpointSyncer == "gcs"
	SignerScheme     string // "bls" or "ed25519"
	SignerKeyHex     string
	SignerKeyPath    string // KeyManager-managed key file; used when SignerKeyHex is unset
	ReorgPeriod      uint64
	PollInterval     time.Duration

	FirestoreMirrorEnabled   bool
	FirestoreProjectID       string
	FirestoreCredentialsFile string
	FirestoreCollection      string
}

// Config is the full, flat-loaded configuration tree.
type Config struct {
	Chains    map[string]ChainConfig
	Relayer   RelayerConfig
	Validator ValidatorConfig

	DataDir     string
	LogLevel    string
	MetricsAddr string
	HealthAddr  string

	DatabaseURL      string
	DatabaseRequired bool

	ShutdownGrace time.Duration
	MessageTTL    time.Duration
}

type env struct {
	prefix string
	values map[string]string
}

func newEnv(prefix string, getenv func(string) string, keys []string) *env {
	e := &env{prefix: prefix, values: make(map[string]string)}
	for _, k := range keys {
		full := prefix + k
		if v := getenv(full); v != "" {
			e.values[k] = v
		}
	}
	return e
}

func (e *env) str(key, def string) string {
	if v, ok := e.values[key]; ok {
		return v
	}
	return def
}

func (e *env) uint64(key string, def uint64) uint64 {
	if v, ok := e.values[key]; ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func (e *env) uint32(key string, def uint32) uint32 {
	if v, ok := e.values[key]; ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			return uint32(n)
		}
	}
	return def
}

func (e *env) int(key string, def int) int {
	if v, ok := e.values[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (e *env) bool(key string, def bool) bool {
	if v, ok := e.values[key]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	if v, ok := e.values[key]; ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func (e *env) csv(key string) []string {
	v, ok := e.values[key]
	if !ok || v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load builds a Config from the environment read through getenv. The
// chains whose HYP_CHAINS_<NAME>_* settings are read are the union of
// HYP_RELAYER_ORIGINCHAINNAMES, HYP_RELAYER_DESTINATIONCHAINNAMES and
// HYP_VALIDATOR_ORIGINCHAINNAME; no other chain discovery takes place.
func Load(getenv func(string) string) (*Config, error) {
	top := newEnv("HYP_", getenv, []string{
		"DATADIR", "LOGLEVEL", "METRICSADDR", "HEALTHADDR",
		"DATABASEURL", "DATABASEREQUIRED", "SHUTDOWNGRACE", "MESSAGETTL",
	})

	relayerEnv := newEnv("HYP_RELAYER_", getenv, []string{
		"ORIGINCHAINNAMES", "DESTINATIONCHAINNAMES", "WHITELIST", "BLACKLIST",
		"GASPAYMENTENFORCEMENT", "GASPAYMENTMINIMUM", "METRICSPORT",
		"ESCALATIONINTERVAL", "MAXBODYSIZE",
	})

	validatorEnv := newEnv("HYP_VALIDATOR_", getenv, []string{
		"ORIGINCHAINNAME", "CHECKPOINTSYNCER", "CHECKPOINTPATH", "CHECKPOINTBUCKET",
		"SIGNERSCHEME", "SIGNERKEYHEX", "SIGNERKEYPATH", "REORGPERIOD", "POLLINTERVAL",
		"FIRESTOREMIRRORENABLED", "FIRESTOREPROJECTID", "FIRESTORECREDENTIALSFILE", "FIRESTORECOLLECTION",
	})

	cfg := &Config{
		Chains: make(map[string]ChainConfig),
		Relayer: RelayerConfig{
			OriginChainNames:      relayerEnv.csv("ORIGINCHAINNAMES"),
			DestinationChainNames: relayerEnv.csv("DESTINATIONCHAINNAMES"),
			Whitelist:             relayerEnv.csv("WHITELIST"),
			Blacklist:             relayerEnv.csv("BLACKLIST"),
			GasPaymentEnforcement: relayerEnv.str("GASPAYMENTENFORCEMENT", "minimum"),
			GasPaymentMinimum:     relayerEnv.uint64("GASPAYMENTMINIMUM", 0),
			MetricsPort:           relayerEnv.int("METRICSPORT", 9090),
			EscalationInterval:    relayerEnv.duration("ESCALATIONINTERVAL", 2*time.Minute),
			MaxBodySize:           relayerEnv.uint64("MAXBODYSIZE", 128*1024),
		},
		Validator: ValidatorConfig{
			OriginChainName:  validatorEnv.str("ORIGINCHAINNAME", ""),
			CheckpointSyncer: validatorEnv.str("CHECKPOINTSYNCER", "localFileSystem"),
			CheckpointPath:   validatorEnv.str("CHECKPOINTPATH", "./checkpoints"),
			CheckpointBucket: validatorEnv.str("CHECKPOINTBUCKET", ""),
			SignerScheme:     validatorEnv.str("SIGNERSCHEME", "bls"),
			SignerKeyHex:     validatorEnv.str("SIGNERKEYHEX", ""),
			SignerKeyPath:    validatorEnv.str("SIGNERKEYPATH", ""),
			ReorgPeriod:      validatorEnv.uint64("REORGPERIOD", 1),
			PollInterval:     validatorEnv.duration("POLLINTERVAL", 15*time.Second),

			FirestoreMirrorEnabled:   validatorEnv.bool("FIRESTOREMIRRORENABLED", false),
			FirestoreProjectID:       validatorEnv.str("FIRESTOREPROJECTID", ""),
			FirestoreCredentialsFile: validatorEnv.str("FIRESTORECREDENTIALSFILE", ""),
			FirestoreCollection:      validatorEnv.str("FIRESTORECOLLECTION", ""),
		},
		DataDir:          top.str("DATADIR", "./data"),
		LogLevel:         top.str("LOGLEVEL", "info"),
		MetricsAddr:      top.str("METRICSADDR", ":9090"),
		HealthAddr:       top.str("HEALTHADDR", ":8080"),
		DatabaseURL:      top.str("DATABASEURL", ""),
		DatabaseRequired: top.bool("DATABASEREQUIRED", false),
		ShutdownGrace:    top.duration("SHUTDOWNGRACE", 30*time.Second),
		MessageTTL:       top.duration("MESSAGETTL", 7*24*time.Hour),
	}

	names := append(append([]string{}, cfg.Relayer.OriginChainNames...), cfg.Relayer.DestinationChainNames...)
	if cfg.Validator.OriginChainName != "" {
		names = append(names, cfg.Validator.OriginChainName)
	}
	seen := make(map[string]bool)
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		cfg.Chains[name] = loadChainConfig(name, getenv)
	}

	return cfg, nil
}

func loadChainConfig(name string, getenv func(string) string) ChainConfig {
	prefix := "HYP_CHAINS_" + strings.ToUpper(name) + "_"
	e := newEnv(prefix, getenv, []string{
		"DOMAIN", "PROTOCOL", "RPCURLS", "SIGNER", "MAILBOXADDRESS",
		"INDEX_FROM", "INDEX_CHUNK", "FINALITYBLOCKS", "GASCAPGWEI",
	})
	return ChainConfig{
		Domain:         e.uint32("DOMAIN", 0),
		Protocol:       e.str("PROTOCOL", "evm"),
		RPCUrls:        e.csv("RPCURLS"),
		Signer:         e.str("SIGNER", ""),
		MailboxAddress: e.str("MAILBOXADDRESS", ""),
		IndexFrom:      e.uint64("INDEX_FROM", 0),
		IndexChunk:     e.uint64("INDEX_CHUNK", 2000),
		FinalityBlocks: e.uint64("FINALITYBLOCKS", 1),
		GasCapGwei:     e.uint64("GASCAPGWEI", 150),
	}
}

// Validate checks that configuration is complete enough to run a relayer
// in production. Mirrors the flat "collect all problems, report together"
// idiom used elsewhere in this codebase rather than failing on the first
// missing field.
func (c *Config) Validate() error {
	var problems []string

	if len(c.Relayer.OriginChainNames) == 0 {
		problems = append(problems, "HYP_RELAYER_ORIGINCHAINNAMES is required but not set")
	}
	if len(c.Relayer.DestinationChainNames) == 0 {
		problems = append(problems, "HYP_RELAYER_DESTINATIONCHAINNAMES is required but not set")
	}
	for name, chain := range c.Chains {
		if chain.Domain == 0 {
			problems = append(problems, fmt.Sprintf("HYP_CHAINS_%s_DOMAIN is required but not set", strings.ToUpper(name)))
		}
		if len(chain.RPCUrls) == 0 {
			problems = append(problems, fmt.Sprintf("HYP_CHAINS_%s_RPCURLS is required but not set", strings.ToUpper(name)))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// ValidateForValidator checks that configuration is complete enough to run
// the validator binary, which needs an origin chain and a signing key but
// none of the relayer's destination/whitelist fields.
func (c *Config) ValidateForValidator() error {
	var problems []string

	if c.Validator.OriginChainName == "" {
		problems = append(problems, "HYP_VALIDATOR_ORIGINCHAINNAME is required but not set")
	} else if _, ok := c.Chains[c.Validator.OriginChainName]; !ok {
		problems = append(problems, fmt.Sprintf("no chain configuration found for validator origin chain %q", c.Validator.OriginChainName))
	}
	if c.Validator.SignerKeyHex == "" && c.Validator.SignerKeyPath == "" {
		problems = append(problems, "one of HYP_VALIDATOR_SIGNERKEYHEX or HYP_VALIDATOR_SIGNERKEYPATH is required but neither is set")
	}
	if c.Validator.CheckpointSyncer == "gcs" && c.Validator.CheckpointBucket == "" {
		problems = append(problems, "HYP_VALIDATOR_CHECKPOINTBUCKET is required when HYP_VALIDATOR_CHECKPOINTSYNCER=gcs")
	}
	if c.Validator.FirestoreMirrorEnabled && c.Validator.FirestoreProjectID == "" {
		problems = append(problems, "HYP_VALIDATOR_FIRESTOREPROJECTID is required when HYP_VALIDATOR_FIRESTOREMIRRORENABLED=true")
	}

	if len(problems) > 0 {
		return fmt.Errorf("validator configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// ValidateForDevelopment performs relaxed validation suitable for running
// against a single local chain with no destinations configured yet.
func (c *Config) ValidateForDevelopment() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("development configuration validation failed:\n  - at least one chain must be configured")
	}
	return nil
}
