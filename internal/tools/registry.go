package tools

// DefaultRegistry returns every tool the action layer exposes, ready to
// pass to NewExecutor. Split out so cmd/swap-peer can list tool names
// without constructing an Executor.
func DefaultRegistry() []*Tool {
	return []*Tool{
		offerTool(),
		rfqTool(),
		quoteTool(),
		quoteAcceptTool(),
		swapInviteTool(),
		joinTool(),
		termsTool(),
		acceptTool(),
		cancelTool(),
		statusTool(),

		lnInvoiceCreateAndPostTool(),
		lnRoutePrecheckTool(),
		solEscrowInitAndPostTool(),
		lnPayAndPostVerifiedTool(),
		solClaimAndPostTool(),

		envTool(),
		scInfoTool(),
		solEscrowGetTool(),
		solConfigGetTool(),
		receiptsListTool(),

		stackStartTool(),
		stackStopTool(),
		peerStartTool(),
		peerStopTool(),
		lnDockerUpTool(),
		lnDockerDownTool(),
		lnRegtestInitTool(),
		solLocalValidatorStartTool(),
		solLocalValidatorStopTool(),

		swaprecoverClaimTool(),
		swaprecoverRefundTool(),
	}
}
