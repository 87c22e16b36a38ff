// Package config loads process configuration from the environment (and an
// optional .env file in development), the same envconfig-struct-tag idiom
// used across this codebase's sibling services.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the complete environment surface for a swap-peer process.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// Durable receipts store.
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Identity: this peer's Ed25519 keypair seed (hex, 32 bytes) and its
	// Solana signer (base58 or same seed, depending on keygen scheme).
	PeerSeedHex   string `envconfig:"PEER_SEED_HEX" required:"true"`
	PeerSolSeeded bool   `envconfig:"PEER_SOL_SEEDED" default:"true"`

	// Sidechannel bus.
	SidechannelURL       string        `envconfig:"SIDECHANNEL_URL" required:"true"`
	SidechannelInviterKey string       `envconfig:"SIDECHANNEL_INVITER_KEY_HEX"`
	SidechannelLogSize   int           `envconfig:"SIDECHANNEL_LOG_SIZE" default:"2000"`
	KeepaliveInterval    time.Duration `envconfig:"KEEPALIVE_INTERVAL" default:"5s"`

	// Solana RPC + program.
	SolanaRPCEndpoint string `envconfig:"SOLANA_RPC_ENDPOINT" default:"https://api.mainnet-beta.solana.com"`
	SolanaWSEndpoint  string `envconfig:"SOLANA_WS_ENDPOINT" default:"wss://api.mainnet-beta.solana.com"`
	SolanaProgramID   string `envconfig:"SOLANA_PROGRAM_ID" required:"true"`
	USDTMint          string `envconfig:"USDT_MINT" required:"true"`

	// Lightning node (LND or CLN; both may be unset, in which case
	// cmd/swap-peer runs without an LN client).
	LNDHost     string `envconfig:"LND_HOST"`
	LNDMacaroon string `envconfig:"LND_MACAROON_HEX"`
	LNDTLSCert  string `envconfig:"LND_TLS_CERT_PATH"`
	CLNHost     string `envconfig:"CLN_HOST"`
	CLNRune     string `envconfig:"CLN_RUNE"`

	// External-call timeouts (spec §7): default 25s, clamped [250ms,120s].
	ExternalCallTimeout time.Duration `envconfig:"EXTERNAL_CALL_TIMEOUT" default:"25s"`

	// Automation tunables (spec §4.10, defaults per spec.md).
	TermsReplayCooldown time.Duration `envconfig:"TERMS_REPLAY_COOLDOWN" default:"6s"`
	TermsReplayMax      int           `envconfig:"TERMS_REPLAY_MAX" default:"40"`
	HygieneInterval     time.Duration `envconfig:"HYGIENE_INTERVAL" default:"10s"`
	DoneMaxAge          time.Duration `envconfig:"DONE_MAX_AGE" default:"40m"`

	// Tool executor gating.
	AutoApproveTools bool `envconfig:"AUTO_APPROVE_TOOLS" default:"false"`
	DryRunDefault    bool `envconfig:"DRY_RUN_DEFAULT" default:"false"`

	// Autopost scheduler (C11).
	AutopostInterval time.Duration `envconfig:"AUTOPOST_INTERVAL" default:"60s"`

	// Known counterparties' Solana addresses, identity-hex -> base58,
	// envconfig's "key:val,key:val" map syntax. A trade's TERMS can only
	// name a counterparty's sol_recipient/sol_refund once this peer has it
	// on file; unknown counterparties are taker-only until registered here.
	PeerSolKeys map[string]string `envconfig:"PEER_SOL_KEYS"`

	// This peer's local offer book (maker side) and the sidechannel
	// channels it keeps subscribed regardless of any active trade (its own
	// RFQ/offer broadcast channels).
	OfferBookPath        string   `envconfig:"OFFER_BOOK_PATH"`
	AutopostJobsPath     string   `envconfig:"AUTOPOST_JOBS_PATH"`
	SidechannelChannels  []string `envconfig:"SIDECHANNEL_CHANNELS"`

	// Trade/platform fee collectors feesnapshot reads config for (C12).
	TradeFeeCollector string `envconfig:"TRADE_FEE_COLLECTOR"`
}

// Load reads a .env file if present (ignored if absent, same as the
// teacher's config loader) then binds the process environment via
// envconfig struct tags.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	if cfg.ExternalCallTimeout < 250*time.Millisecond {
		cfg.ExternalCallTimeout = 250 * time.Millisecond
	} else if cfg.ExternalCallTimeout > 120*time.Second {
		cfg.ExternalCallTimeout = 120 * time.Second
	}
	return &cfg, nil
}
