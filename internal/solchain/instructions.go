package solchain

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/intercomswap/swap-core/internal/apperr"
)

// discriminator computes the 8-byte Anchor-style instruction discriminator
// for name, matching the on-chain program's own sha256("global:<name>")[:8]
// convention.
func discriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

func encodeInstructionData(name string, args any) ([]byte, error) {
	buf := new(bytes.Buffer)
	disc := discriminator(name)
	if _, err := buf.Write(disc[:]); err != nil {
		return nil, apperr.Wrap(fmt.Errorf("solchain: write discriminator: %w", err))
	}
	if args != nil {
		enc := bin.NewBorshEncoder(buf)
		if err := enc.Encode(args); err != nil {
			return nil, apperr.Wrap(fmt.Errorf("solchain: encode %s args: %w", name, err))
		}
	}
	return buf.Bytes(), nil
}

// CreateEscrowArgs is the borsh-encoded body of the create_escrow instruction.
type CreateEscrowArgs struct {
	PaymentHash       [32]byte
	Recipient         solana.PublicKey
	Refund            solana.PublicKey
	Mint              solana.PublicKey
	NetAmount         uint64
	PlatformFeeAmount uint64
	TradeFeeAmount    uint64
	PlatformFeeBps    uint16
	TradeFeeBps       uint16
	TradeFeeCollector solana.PublicKey
	RefundAfterUnix   int64
}

// BuildCreateEscrow builds the instruction that funds a new escrow PDA from
// payer's token account into vaultATA, recorded under escrowPDA.
func (c *Client) BuildCreateEscrow(payer, payerTokenAccount, escrowPDA, vaultATA, mint solana.PublicKey, args CreateEscrowArgs) (solana.Instruction, error) {
	data, err := encodeInstructionData("create_escrow", args)
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(payerTokenAccount, true, false),
		solana.NewAccountMeta(escrowPDA, true, false),
		solana.NewAccountMeta(vaultATA, true, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(c.programID, accounts, data), nil
}

// ClaimEscrowArgs is the borsh-encoded body of the claim_escrow instruction.
type ClaimEscrowArgs struct {
	Preimage [32]byte
}

// BuildClaimEscrow builds the instruction that releases escrowPDA's vault to
// recipientTokenAccount once preimage hashes to the escrow's payment_hash.
func (c *Client) BuildClaimEscrow(claimant, escrowPDA, vaultATA, recipientTokenAccount solana.PublicKey, args ClaimEscrowArgs) (solana.Instruction, error) {
	data, err := encodeInstructionData("claim_escrow", args)
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		solana.NewAccountMeta(claimant, true, true),
		solana.NewAccountMeta(escrowPDA, true, false),
		solana.NewAccountMeta(vaultATA, true, false),
		solana.NewAccountMeta(recipientTokenAccount, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}
	return solana.NewInstruction(c.programID, accounts, data), nil
}

// BuildRefundEscrow builds the instruction that returns escrowPDA's vault to
// refundTokenAccount once refund_after_unix has elapsed.
func (c *Client) BuildRefundEscrow(caller, escrowPDA, vaultATA, refundTokenAccount solana.PublicKey) (solana.Instruction, error) {
	data, err := encodeInstructionData("refund_escrow", nil)
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		solana.NewAccountMeta(caller, true, true),
		solana.NewAccountMeta(escrowPDA, true, false),
		solana.NewAccountMeta(vaultATA, true, false),
		solana.NewAccountMeta(refundTokenAccount, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}
	return solana.NewInstruction(c.programID, accounts, data), nil
}

// InitConfigArgs is the borsh-encoded body of init_config.
type InitConfigArgs struct {
	PlatformFeeBps       uint16
	PlatformFeeCollector solana.PublicKey
}

// BuildInitConfig builds the one-time platform config initialization.
func (c *Client) BuildInitConfig(authority, configPDA solana.PublicKey, args InitConfigArgs) (solana.Instruction, error) {
	data, err := encodeInstructionData("init_config", args)
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		solana.NewAccountMeta(authority, true, true),
		solana.NewAccountMeta(configPDA, true, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(c.programID, accounts, data), nil
}

// SetConfigArgs is the borsh-encoded body of set_config.
type SetConfigArgs struct {
	PlatformFeeBps       uint16
	PlatformFeeCollector solana.PublicKey
}

// BuildSetConfig builds the instruction updating platform-wide fee config.
func (c *Client) BuildSetConfig(authority, configPDA solana.PublicKey, args SetConfigArgs) (solana.Instruction, error) {
	data, err := encodeInstructionData("set_config", args)
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		solana.NewAccountMeta(authority, true, true),
		solana.NewAccountMeta(configPDA, true, false),
	}
	return solana.NewInstruction(c.programID, accounts, data), nil
}

// InitTradeConfigArgs is the borsh-encoded body of init_trade_config.
type InitTradeConfigArgs struct {
	Collector   solana.PublicKey
	TradeFeeBps uint16
}

// BuildInitTradeConfig builds a per-collector trade-fee override account.
func (c *Client) BuildInitTradeConfig(authority, tradeConfigPDA solana.PublicKey, args InitTradeConfigArgs) (solana.Instruction, error) {
	data, err := encodeInstructionData("init_trade_config", args)
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		solana.NewAccountMeta(authority, true, true),
		solana.NewAccountMeta(tradeConfigPDA, true, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(c.programID, accounts, data), nil
}

// SetTradeConfigArgs is the borsh-encoded body of set_trade_config.
type SetTradeConfigArgs struct {
	TradeFeeBps uint16
}

// BuildSetTradeConfig builds the instruction updating a trade-fee override.
func (c *Client) BuildSetTradeConfig(authority, tradeConfigPDA solana.PublicKey, args SetTradeConfigArgs) (solana.Instruction, error) {
	data, err := encodeInstructionData("set_trade_config", args)
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		solana.NewAccountMeta(authority, true, true),
		solana.NewAccountMeta(tradeConfigPDA, true, false),
	}
	return solana.NewInstruction(c.programID, accounts, data), nil
}

// BuildWithdrawFees builds the instruction sweeping accrued platform fees
// from configPDA's vault to destinationTokenAccount.
func (c *Client) BuildWithdrawFees(authority, configPDA, feeVaultATA, destinationTokenAccount solana.PublicKey) (solana.Instruction, error) {
	data, err := encodeInstructionData("withdraw_fees", nil)
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		solana.NewAccountMeta(authority, true, true),
		solana.NewAccountMeta(configPDA, true, false),
		solana.NewAccountMeta(feeVaultATA, true, false),
		solana.NewAccountMeta(destinationTokenAccount, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}
	return solana.NewInstruction(c.programID, accounts, data), nil
}

// BuildWithdrawTradeFees builds the instruction sweeping accrued trade fees
// from tradeConfigPDA's vault to destinationTokenAccount.
func (c *Client) BuildWithdrawTradeFees(collector, tradeConfigPDA, feeVaultATA, destinationTokenAccount solana.PublicKey) (solana.Instruction, error) {
	data, err := encodeInstructionData("withdraw_trade_fees", nil)
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		solana.NewAccountMeta(collector, true, true),
		solana.NewAccountMeta(tradeConfigPDA, true, false),
		solana.NewAccountMeta(feeVaultATA, true, false),
		solana.NewAccountMeta(destinationTokenAccount, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}
	return solana.NewInstruction(c.programID, accounts, data), nil
}
