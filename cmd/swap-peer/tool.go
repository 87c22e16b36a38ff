package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/intercomswap/swap-core/internal/config"
	"github.com/intercomswap/swap-core/internal/tools"
)

func toolCmd() *cobra.Command {
	var argsJSON string
	var dryRun bool
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "tool <name>",
		Short: "dispatch a single tool call through the same executor the automation loop uses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			deps, err := buildPeerDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if err := deps.bus.Connect(cmd.Context()); err != nil {
				return err
			}
			defer deps.bus.Close()

			var toolArgs tools.Args
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &toolArgs); err != nil {
					return fmt.Errorf("parse --args: %w", err)
				}
			}

			tctx := tools.Context{AutoApprove: autoApprove || cfg.AutoApproveTools, DryRun: dryRun || cfg.DryRunDefault}
			result, err := deps.exec.Execute(cmd.Context(), args[0], toolArgs, tctx)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&argsJSON, "args", "", `tool arguments as a JSON object, e.g. '{"trade_id":"t1"}'`)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview the call without executing a mutation")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "allow mutating tools to run")
	return cmd
}
