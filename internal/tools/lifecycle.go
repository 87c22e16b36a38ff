package tools

import (
	"context"
	"os/exec"

	"github.com/intercomswap/swap-core/internal/apperr"
)

// runCommand shells out the way the teacher's testutil docker helpers do
// (exec.Command + CombinedOutput), used here for the handful of tools that
// genuinely manage host processes rather than swap-protocol state.
func runCommand(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return string(out), apperr.Transient(err, "lifecycle: %s %v failed: %s", name, args, out)
	}
	return string(out), nil
}

// composeTool builds a tool that drives one docker-compose action against
// composeFile — the shared shape behind every up/down lifecycle tool below.
func composeTool(name, composeFile string, action ...string) *Tool {
	return &Tool{Name: name, Mutating: true, Spec: ArgSpec{}, Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
		cmdArgs := append([]string{"compose", "-f", composeFile}, action...)
		out, err := runCommand("docker", cmdArgs...)
		if err != nil {
			return nil, err
		}
		return map[string]any{"output": out}, nil
	}}
}

func stackStartTool() *Tool { return composeTool("stack_start", "onchain/docker-compose.yml", "up", "-d") }
func stackStopTool() *Tool  { return composeTool("stack_stop", "onchain/docker-compose.yml", "down") }

func peerStartTool() *Tool { return composeTool("peer_start", "onchain/docker-compose.peer.yml", "up", "-d") }
func peerStopTool() *Tool  { return composeTool("peer_stop", "onchain/docker-compose.peer.yml", "down") }

func lnDockerUpTool() *Tool   { return composeTool("ln_docker_up", "onchain/docker-compose.ln.yml", "up", "-d") }
func lnDockerDownTool() *Tool { return composeTool("ln_docker_down", "onchain/docker-compose.ln.yml", "down") }

var lnRegtestInitSpec = ArgSpec{
	"node": Field{Required: true, Kind: KindString, MaxLen: 32}, // "lnd" | "cln"
}

func lnRegtestInitTool() *Tool {
	return &Tool{Name: "ln_regtest_init", Mutating: true, Spec: lnRegtestInitSpec, Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
		node := Str(args, "node")
		out, err := runCommand("onchain/scripts/ln-regtest-init.sh", node)
		if err != nil {
			return nil, err
		}
		return map[string]any{"output": out}, nil
	}}
}

func solLocalValidatorStartTool() *Tool {
	return &Tool{Name: "sol_local_validator_start", Mutating: true, Spec: ArgSpec{}, Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
		out, err := runCommand("onchain/scripts/validator-start.sh")
		if err != nil {
			return nil, err
		}
		return map[string]any{"output": out}, nil
	}}
}

func solLocalValidatorStopTool() *Tool {
	return &Tool{Name: "sol_local_validator_stop", Mutating: true, Spec: ArgSpec{}, Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
		out, err := runCommand("onchain/scripts/validator-stop.sh")
		if err != nil {
			return nil, err
		}
		return map[string]any{"output": out}, nil
	}}
}
