package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/intercomswap/swap-core/internal/config"
	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/recovery"
)

func recoverCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "recover", Short: "manual claim/refund recovery over stuck escrows"}
	cmd.AddCommand(recoverListClaimsCmd())
	cmd.AddCommand(recoverListRefundsCmd())
	cmd.AddCommand(recoverClaimCmd())
	cmd.AddCommand(recoverRefundCmd())
	return cmd
}

func withScanner(ctx context.Context, fn func(ctx context.Context, s *recovery.Scanner) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	deps, err := buildPeerDeps(ctx, cfg)
	if err != nil {
		return err
	}
	return fn(ctx, deps.recoveryScanner())
}

func tradesTable(header string, trades []model.Trade) {
	fmt.Println(color.New(color.FgCyan).Sprint(header))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Trade ID", "State", "Escrow PDA", "Refund After"})
	table.SetBorder(false)
	table.SetColumnSeparator(" │ ")
	for _, t := range trades {
		table.Append([]string{t.TradeID, string(t.State), t.SolEscrowPDA, fmt.Sprintf("%d", t.SolRefundAfterUnix)})
	}
	table.Render()
}

func recoverListClaimsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-claims",
		Short: "list trades with a settled preimage ready to be claimed on-chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScanner(cmd.Context(), func(ctx context.Context, s *recovery.Scanner) error {
				trades, err := s.ListOpenClaims(ctx)
				if err != nil {
					return err
				}
				tradesTable("Open claims", trades)
				return nil
			})
		},
	}
}

func recoverListRefundsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-refunds",
		Short: "list trades past their refund window with an unclaimed escrow",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScanner(cmd.Context(), func(ctx context.Context, s *recovery.Scanner) error {
				trades, err := s.ListOpenRefunds(ctx, time.Now().Unix())
				if err != nil {
					return err
				}
				tradesTable("Open refunds", trades)
				return nil
			})
		},
	}
}

func printOutcomes(outcomes []recovery.Outcome) {
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Printf("%s %s: %v\n", color.New(color.FgRed).Sprint("FAIL"), o.TradeID, o.Err)
			continue
		}
		fmt.Printf("%s %s\n", color.New(color.FgGreen).Sprint("OK"), o.TradeID)
	}
}

// filterOutcome narrows a recovery run's printed outcomes to one trade_id,
// when the operator named one on the command line. The run itself has
// already acted on every open trade.
func filterOutcome(outcomes []recovery.Outcome, tradeID string) []recovery.Outcome {
	if tradeID == "" {
		return outcomes
	}
	for _, o := range outcomes {
		if o.TradeID == tradeID {
			return []recovery.Outcome{o}
		}
	}
	return nil
}

func recoverClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim [trade_id]",
		Short: "run swaprecover_claim for every open claim; a named trade_id only narrows the printed outcome",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScanner(cmd.Context(), func(ctx context.Context, s *recovery.Scanner) error {
				outcomes, err := s.RunClaims(ctx)
				if err != nil {
					return err
				}
				if len(args) == 1 {
					outcomes = filterOutcome(outcomes, args[0])
				}
				printOutcomes(outcomes)
				return nil
			})
		},
	}
}

func recoverRefundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refund [trade_id]",
		Short: "run swaprecover_refund for every trade past its refund window; a named trade_id only narrows the printed outcome",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScanner(cmd.Context(), func(ctx context.Context, s *recovery.Scanner) error {
				outcomes, err := s.RunRefunds(ctx)
				if err != nil {
					return err
				}
				if len(args) == 1 {
					outcomes = filterOutcome(outcomes, args[0])
				}
				printOutcomes(outcomes)
				return nil
			})
		},
	}
}
