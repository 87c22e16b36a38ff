// Package solchain wraps the escrow program this peer transacts against:
// PDA derivation, account decode (escrow/config/trade-config), and the
// instruction builders C9's settlement tools call. The program itself is
// external and out of scope — this package only encodes calls into it and
// decodes its account layout, the way the teacher's internal/service/wallet
// and internal/clients/solana build and decode against the SPL token and
// system programs.
package solchain

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/intercomswap/swap-core/internal/apperr"
)

// Seeds used to derive this program's PDAs. Fixed by the on-chain program's
// own seed scheme; changing them here would desync from a deployed program.
const (
	seedConfig      = "config"
	seedTradeConfig = "trade_config"
	seedEscrow      = "escrow"
)

// Client wraps an RPC connection scoped to one program deployment.
type Client struct {
	rpc       *rpc.Client
	programID solana.PublicKey
}

func NewClient(rpcClient *rpc.Client, programID solana.PublicKey) *Client {
	return &Client{rpc: rpcClient, programID: programID}
}

func (c *Client) ProgramID() solana.PublicKey { return c.programID }

// ConfigPDA derives the platform-wide config account.
func (c *Client) ConfigPDA() (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(seedConfig)}, c.programID)
}

// TradeConfigPDA derives the per-collector trade-fee config account.
func (c *Client) TradeConfigPDA(collector solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(seedTradeConfig), collector.Bytes()}, c.programID)
}

// EscrowPDA derives the escrow account from its payment hash, per §4.8's
// "on-chain escrow PDA matches the derivation from payment_hash".
func (c *Client) EscrowPDA(paymentHash [32]byte) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(seedEscrow), paymentHash[:]}, c.programID)
}

// EscrowStatus mirrors the on-chain escrow account's status enum.
type EscrowStatus uint8

const (
	EscrowStatusActive EscrowStatus = iota
	EscrowStatusClaimed
	EscrowStatusRefunded
)

// EscrowState is the borsh-decoded escrow account body, fields ordered to
// match the program's account layout (discriminator stripped by the caller
// before decoding).
type EscrowState struct {
	ProgramID         solana.PublicKey
	PaymentHash       [32]byte
	Recipient         solana.PublicKey
	Refund            solana.PublicKey
	Mint              solana.PublicKey
	VaultATA          solana.PublicKey
	NetAmount         uint64
	PlatformFeeAmount uint64
	TradeFeeAmount    uint64
	PlatformFeeBps    uint16
	TradeFeeBps       uint16
	TradeFeeCollector solana.PublicKey
	RefundAfterUnix   int64
	Status            EscrowStatus
}

// ConfigState is the platform-wide fee configuration account.
type ConfigState struct {
	Authority            solana.PublicKey
	PlatformFeeBps       uint16
	PlatformFeeCollector solana.PublicKey
}

// TradeConfigState is a per-collector trade-fee override account.
type TradeConfigState struct {
	Collector   solana.PublicKey
	TradeFeeBps uint16
}

// AccountDiscriminatorSize is the length of the Anchor-style 8-byte
// discriminator prefixing every account's raw data.
const AccountDiscriminatorSize = 8

func decode(data []byte, dst any) error {
	if len(data) < AccountDiscriminatorSize {
		return apperr.Invariant("solchain: account data too short (%d bytes)", len(data))
	}
	dec := bin.NewBorshDecoder(data[AccountDiscriminatorSize:])
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(fmt.Errorf("solchain: decode account: %w", err))
	}
	return nil
}

// GetEscrow fetches and decodes the escrow account at pda.
func (c *Client) GetEscrow(ctx context.Context, pda solana.PublicKey) (EscrowState, error) {
	var out EscrowState
	info, err := c.rpc.GetAccountInfo(ctx, pda)
	if err != nil {
		return out, apperr.Transient(err, "solchain: get escrow account %s", pda)
	}
	if info == nil || info.Value == nil {
		return out, apperr.Precondition("solchain: escrow account %s not found", pda)
	}
	err = decode(info.Value.Data.GetBinary(), &out)
	return out, err
}

// GetConfig fetches and decodes the platform config account.
func (c *Client) GetConfig(ctx context.Context) (ConfigState, error) {
	var out ConfigState
	pda, _, err := c.ConfigPDA()
	if err != nil {
		return out, apperr.Wrap(err)
	}
	info, err := c.rpc.GetAccountInfo(ctx, pda)
	if err != nil {
		return out, apperr.Transient(err, "solchain: get config account %s", pda)
	}
	if info == nil || info.Value == nil {
		return out, apperr.Precondition("solchain: config account %s not found", pda)
	}
	err = decode(info.Value.Data.GetBinary(), &out)
	return out, err
}

// GetTradeConfig fetches and decodes a per-collector trade-fee account.
func (c *Client) GetTradeConfig(ctx context.Context, collector solana.PublicKey) (TradeConfigState, error) {
	var out TradeConfigState
	pda, _, err := c.TradeConfigPDA(collector)
	if err != nil {
		return out, apperr.Wrap(err)
	}
	info, err := c.rpc.GetAccountInfo(ctx, pda)
	if err != nil {
		return out, apperr.Transient(err, "solchain: get trade config account %s", pda)
	}
	if info == nil || info.Value == nil {
		return out, apperr.Precondition("solchain: trade config account %s not found", pda)
	}
	err = decode(info.Value.Data.GetBinary(), &out)
	return out, err
}

// LatestBlockhash fetches a fresh blockhash for transaction construction.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, apperr.Transient(err, "solchain: get latest blockhash")
	}
	return out.Value.Blockhash, nil
}

// MinimumBalanceForRentExemption reports the lamports a new account of
// dataLen bytes needs to be rent-exempt.
func (c *Client) MinimumBalanceForRentExemption(ctx context.Context, dataLen uint64) (uint64, error) {
	lamports, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, dataLen, rpc.CommitmentFinalized)
	if err != nil {
		return 0, apperr.Transient(err, "solchain: get minimum balance for rent exemption")
	}
	return lamports, nil
}

// GetBalance reports an account's lamport balance.
func (c *Client) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	out, err := c.rpc.GetBalance(ctx, account, rpc.CommitmentFinalized)
	if err != nil {
		return 0, apperr.Transient(err, "solchain: get balance for %s", account)
	}
	if out == nil {
		return 0, apperr.Precondition("solchain: balance unavailable for %s", account)
	}
	return out.Value, nil
}

// FeeForMessage estimates the lamport fee a compiled message would cost.
func (c *Client) FeeForMessage(ctx context.Context, tx *solana.Transaction) (uint64, error) {
	msg, err := tx.Message.ToBase64()
	if err != nil {
		return 0, apperr.Wrap(fmt.Errorf("solchain: encode message: %w", err))
	}
	out, err := c.rpc.GetFeeForMessage(ctx, msg, rpc.CommitmentFinalized)
	if err != nil {
		return 0, apperr.Transient(err, "solchain: get fee for message")
	}
	if out == nil || out.Value == nil {
		return 0, apperr.Precondition("solchain: fee for message unavailable")
	}
	return *out.Value, nil
}

// BuildTransaction assembles a transaction from instructions, fetching a
// fresh blockhash and naming payer as fee payer.
func (c *Client) BuildTransaction(ctx context.Context, payer solana.PublicKey, instructions ...solana.Instruction) (*solana.Transaction, error) {
	blockhash, err := c.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, apperr.Wrap(fmt.Errorf("solchain: build transaction: %w", err))
	}
	return tx, nil
}

// SendAndConfirm signs tx with signer and sends it with preflight
// simulation at finalized commitment, returning the signature. It does not
// wait for the sent transaction to be confirmed on-chain.
func (c *Client) SendAndConfirm(ctx context.Context, tx *solana.Transaction, signer solana.PrivateKey) (solana.Signature, error) {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key == signer.PublicKey() {
			return &signer
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, apperr.Wrap(fmt.Errorf("solchain: sign transaction: %w", err))
	}
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{SkipPreflight: false, PreflightCommitment: rpc.CommitmentFinalized})
	if err != nil {
		return solana.Signature{}, apperr.Transient(err, "solchain: send transaction")
	}
	return sig, nil
}

// ResolveATA finds owner's associated token account for mint and, if it
// doesn't exist on-chain, returns the creation instruction alongside it
// (mirroring the teacher's getOrCreateATA).
func (c *Client) ResolveATA(ctx context.Context, payer, owner, mint solana.PublicKey) (solana.PublicKey, []solana.Instruction, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, nil, apperr.Wrap(fmt.Errorf("solchain: find ATA: %w", err))
	}

	info, err := c.rpc.GetAccountInfo(ctx, ata)
	if err == nil && info != nil && info.Value != nil && info.Value.Owner != solana.SystemProgramID {
		return ata, nil, nil
	}

	ix, err := associatedtokenaccount.NewCreateInstruction(payer, owner, mint).ValidateAndBuild()
	if err != nil {
		return solana.PublicKey{}, nil, apperr.Wrap(fmt.Errorf("solchain: build create-ATA instruction: %w", err))
	}
	return ata, []solana.Instruction{ix}, nil
}
