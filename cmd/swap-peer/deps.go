package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/intercomswap/swap-core/internal/autopost"
	"github.com/intercomswap/swap-core/internal/automation"
	"github.com/intercomswap/swap-core/internal/config"
	"github.com/intercomswap/swap-core/internal/feesnapshot"
	"github.com/intercomswap/swap-core/internal/identity"
	"github.com/intercomswap/swap-core/internal/listinglock"
	"github.com/intercomswap/swap-core/internal/ln"
	"github.com/intercomswap/swap-core/internal/logger"
	"github.com/intercomswap/swap-core/internal/prepay"
	"github.com/intercomswap/swap-core/internal/receipts"
	"github.com/intercomswap/swap-core/internal/receipts/locks"
	"github.com/intercomswap/swap-core/internal/receipts/postgres"
	"github.com/intercomswap/swap-core/internal/recovery"
	"github.com/intercomswap/swap-core/internal/sidechannel"
	"github.com/intercomswap/swap-core/internal/solchain"
	"github.com/intercomswap/swap-core/internal/tools"
	"github.com/intercomswap/swap-core/internal/vault"
)

// peerDeps is every long-lived collaborator a swap-peer process builds once
// at startup and threads through whichever subcommand runs.
type peerDeps struct {
	cfg    *config.Config
	log    *slog.Logger
	bus    sidechannel.Bus
	store  receipts.TradeStore
	locks  *listinglock.Manager
	chain  *solchain.Client
	vault  *vault.Vault
	id     identity.Identity
	exec   *tools.Executor
}

func buildLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler
	if cfg.Environment == "development" {
		handler = logger.NewColorHandler(slog.LevelInfo, os.Stdout, os.Stderr)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return slog.New(logger.NewOtelHandler(handler))
}

// buildPeerDeps wires every collaborator a live process needs: a durable
// Postgres-backed trade store, a pgx-backed listing-lock store, a
// gorilla/websocket sidechannel session, a Solana RPC client, and whichever
// Lightning node (lnd or core-lightning) this peer's environment names.
func buildPeerDeps(ctx context.Context, cfg *config.Config) (*peerDeps, error) {
	log := buildLogger(cfg)

	id, err := identity.FromSeedHex(cfg.PeerSeedHex, cfg.PeerSolSeeded)
	if err != nil {
		return nil, fmt.Errorf("derive peer identity: %w", err)
	}

	store, err := postgres.NewStore(cfg.DatabaseURL, true, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("open trade store: %w", err)
	}

	lockStore, err := locks.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open listing lock store: %w", err)
	}
	locksMgr := listinglock.New(lockStore)

	bus, err := sidechannel.NewSession(cfg.SidechannelURL, cfg.SidechannelLogSize, cfg.HygieneInterval)
	if err != nil {
		return nil, fmt.Errorf("build sidechannel session: %w", err)
	}
	if cfg.SidechannelInviterKey != "" {
		if err := bus.AddInviterKey(cfg.SidechannelInviterKey); err != nil {
			return nil, fmt.Errorf("add sidechannel inviter key: %w", err)
		}
	}

	programID, err := solana.PublicKeyFromBase58(cfg.SolanaProgramID)
	if err != nil {
		return nil, fmt.Errorf("parse SOLANA_PROGRAM_ID: %w", err)
	}
	rpcClient := rpc.New(cfg.SolanaRPCEndpoint)
	chain := solchain.NewClient(rpcClient, programID)

	lnClient, err := buildLNClient(cfg)
	if err != nil {
		return nil, err
	}

	v := vault.New(cfg.ExternalCallTimeout*4, time.Minute)
	prepayVerifier := prepay.New(chain, lnClient)

	deps := &tools.Deps{
		Bus:         bus,
		Store:       store,
		Locks:       locksMgr,
		LN:          lnClient,
		Chain:       chain,
		Prepay:      prepayVerifier,
		Vault:       v,
		Keypair:     id.Keypair,
		SolSigner:   id.SolSigner,
		LocalPeer:   id.PeerHex,
		LocalSolKey: id.SolPublicKey(),
	}
	exec := tools.NewExecutor(deps, tools.DefaultRegistry()...)

	return &peerDeps{
		cfg:   cfg,
		log:   log,
		bus:   bus,
		store: store,
		locks: locksMgr,
		chain: chain,
		vault: v,
		id:    id,
		exec:  exec,
	}, nil
}

// buildLNClient picks lnd or core-lightning based on which host the
// environment names. Neither set is valid: this peer can still run
// taker-only on the Lightning leg, dispatching LN-needing tools straight
// into a nil-LN validation error instead of failing at startup.
func buildLNClient(cfg *config.Config) (ln.Client, error) {
	switch {
	case cfg.LNDHost != "":
		return ln.NewLNDClient(cfg.LNDHost, cfg.LNDMacaroon, cfg.LNDTLSCert, cfg.ExternalCallTimeout)
	case cfg.CLNHost != "":
		return ln.NewCLNClient(cfg.CLNHost, cfg.CLNRune, cfg.ExternalCallTimeout)
	default:
		return nil, nil
	}
}

func (d *peerDeps) automationLoop() (*automation.Loop, error) {
	offers, err := automation.LoadOfferBook(d.cfg.OfferBookPath)
	if err != nil {
		return nil, fmt.Errorf("load offer book: %w", err)
	}

	collector := d.id.SolPublicKey()
	if d.cfg.TradeFeeCollector != "" {
		var err error
		collector, err = solana.PublicKeyFromBase58(d.cfg.TradeFeeCollector)
		if err != nil {
			return nil, fmt.Errorf("parse TRADE_FEE_COLLECTOR: %w", err)
		}
	}
	fees := feesnapshot.New(d.chain, collector)

	acfg := automation.DefaultConfig()
	acfg.TermsReplayCooldown = d.cfg.TermsReplayCooldown
	acfg.TermsReplayMax = d.cfg.TermsReplayMax
	acfg.HygieneInterval = d.cfg.HygieneInterval
	acfg.DoneMaxAge = d.cfg.DoneMaxAge
	acfg.KeepaliveInterval = d.cfg.KeepaliveInterval

	adeps := automation.Deps{
		Bus:         d.bus,
		Store:       d.store,
		Locks:       d.locks,
		Exec:        d.exec,
		Fees:        fees,
		LocalPeer:   d.id.PeerHex,
		LocalSolKey: d.id.SolPublicKey().String(),
		PeerSolKeys: d.cfg.PeerSolKeys,
		SolMint:     d.cfg.USDTMint,
		Channels:    d.cfg.SidechannelChannels,
		Offers:      offers,
	}
	return automation.NewLoop(acfg, adeps), nil
}

func (d *peerDeps) recoveryScanner() *recovery.Scanner {
	return &recovery.Scanner{Store: d.store, Exec: d.exec, Mint: d.cfg.USDTMint}
}

func (d *peerDeps) autopostScheduler(jobs []autopost.Job) *autopost.Scheduler {
	return autopost.NewScheduler(d.exec, jobs, time.Now)
}
