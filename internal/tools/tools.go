// Package tools implements C9: the uniform action-layer dispatcher every
// swap side effect goes through. Every tool validates its own arguments,
// resolves vault secret handles, honors dry_run, and gates mutation behind
// auto_approve — the single choke point the automation loop (C10), the
// autopost scheduler (C11), and recovery actions (C13) all call through.
package tools

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/intercomswap/swap-core/internal/apperr"
	"github.com/intercomswap/swap-core/internal/listinglock"
	"github.com/intercomswap/swap-core/internal/ln"
	"github.com/intercomswap/swap-core/internal/prepay"
	"github.com/intercomswap/swap-core/internal/receipts"
	"github.com/intercomswap/swap-core/internal/sidechannel"
	"github.com/intercomswap/swap-core/internal/solchain"
	"github.com/intercomswap/swap-core/internal/vault"
)

// Args is a raw, JSON-decoded tool argument map. Values are the limited set
// json.Unmarshal into interface{} produces: string, float64, bool, nil,
// []any, map[string]any.
type Args map[string]any

// Context carries the per-call execution gates from spec §4.9.
type Context struct {
	AutoApprove bool
	DryRun      bool
}

// Deps bundles every collaborator a tool handler might need. Individual
// handlers only touch the fields relevant to them.
type Deps struct {
	Bus         sidechannel.Bus
	Store       receipts.TradeStore
	Locks       *listinglock.Manager
	LN          ln.Client
	Chain       *solchain.Client
	Prepay      *prepay.Verifier
	Vault       *vault.Vault
	Keypair     ed25519.PrivateKey
	SolSigner   solana.PrivateKey
	LocalPeer   string
	LocalSolKey solana.PublicKey
	Now         func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Handler is a tool's implementation. It receives already-validated and
// secret-resolved arguments.
type Handler func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error)

// Tool is one entry in the dispatcher's registry.
type Tool struct {
	Name     string
	Mutating bool
	Spec     ArgSpec
	Handler  Handler
}

// Executor is the uniform `execute(tool_name, args, {auto_approve, dry_run})`
// dispatcher of spec §4.9.
type Executor struct {
	deps  *Deps
	tools map[string]*Tool
}

func NewExecutor(deps *Deps, registry ...*Tool) *Executor {
	e := &Executor{deps: deps, tools: make(map[string]*Tool, len(registry))}
	for _, t := range registry {
		e.tools[t.Name] = t
	}
	return e
}

// DryRunResult is returned in place of a real result when tctx.DryRun is
// set, so the caller can inspect exactly what would have been sent.
type DryRunResult struct {
	Type string `json:"type"`
	Tool string `json:"tool"`
	Args Args   `json:"args"`
}

// Execute validates args against tool's spec, resolves vault handles,
// enforces the dry-run and auto-approve gates, and — only once all of that
// passes — invokes the handler.
func (e *Executor) Execute(ctx context.Context, toolName string, args Args, tctx Context) (any, error) {
	tool, ok := e.tools[toolName]
	if !ok {
		return nil, apperr.Validation("tools: unknown tool %q", toolName)
	}

	resolved, err := e.validateAndResolve(tool, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", toolName, err)
	}

	if tctx.DryRun {
		return DryRunResult{Type: "dry_run", Tool: toolName, Args: resolved}, nil
	}

	if tool.Mutating && !tctx.AutoApprove {
		return nil, apperr.Auth("%s: blocked (auto_approve is false)", toolName)
	}

	result, err := tool.Handler(ctx, resolved, tctx, e.deps)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", toolName, err)
	}
	return result, nil
}

// validateAndResolve checks args against spec (unknown keys, required keys,
// per-field pattern/range) and resolves any "vault:<handle>" string values
// to the vault entry they reference.
func (e *Executor) validateAndResolve(tool *Tool, args Args) (Args, error) {
	for k := range args {
		if _, ok := tool.Spec[k]; !ok {
			return nil, apperr.Validation("unknown argument %q", k)
		}
	}

	out := make(Args, len(args))
	for key, field := range tool.Spec {
		raw, present := args[key]
		if !present {
			if field.Required {
				return nil, apperr.Validation("missing required argument %q", key)
			}
			continue
		}
		resolved, err := e.resolveValue(raw)
		if err != nil {
			return nil, apperr.Validation("argument %q: %v", key, err)
		}
		if err := field.Validate(resolved); err != nil {
			return nil, apperr.Validation("argument %q: %v", key, err)
		}
		out[key] = resolved
	}
	return out, nil
}

const vaultHandlePrefix = "vault:"

func (e *Executor) resolveValue(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok || !strings.HasPrefix(s, vaultHandlePrefix) {
		return raw, nil
	}
	handle := strings.TrimPrefix(s, vaultHandlePrefix)
	entry, err := e.deps.Vault.Get(handle)
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}
