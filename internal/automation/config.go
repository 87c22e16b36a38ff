// Package automation implements C10: the single cooperative loop that scans
// the sidechannel event log and advances every trade toward a terminal
// state, one bounded tick at a time.
package automation

import "time"

// Config holds every tunable spec §4.10 names, each defaulted to the
// value spec.md gives it.
type Config struct {
	TickInterval time.Duration // default 1000ms, min 250ms

	MaxEventsPerTick int           // default 1500
	EventMaxAge      time.Duration // default 10m

	KeepaliveInterval time.Duration // default 5s
	HygieneInterval   time.Duration // default 10s

	ActionsPerTick int // default 12
	StageRetryMax  int // default 2

	TermsReplayCooldown time.Duration // default 6s
	TermsReplayMax      int           // default 40

	WaitingTermsPingInterval time.Duration // default 6s
	WaitingTermsMaxWait      time.Duration // default 3m
	LeaveOnTimeout           bool

	LNPayRetryCooldown       time.Duration // default 10s
	LNRoutePrecheckCooldown  time.Duration // default 10s
	LNRoutePrecheckWait      time.Duration // default 4s
	LNPayFailLeaveAttempts   int           // default 2
	LNPayFailLeaveMinWait    time.Duration // default 5s

	SwapLeaveCooldown    time.Duration // default 10s
	SwapLeaveCooldownMax time.Duration // default 120s

	DoneMaxAge time.Duration // default 40m

	EnableQuoteFromRFQs bool

	SolRefundWindow time.Duration // default 72h, offered as sol_refund_after_unix on TERMS
	TermsValidFor   time.Duration // default 5m, terms_valid_until_unix window
}

// DefaultConfig returns spec.md's defaults for every tunable.
func DefaultConfig() Config {
	return Config{
		TickInterval:             time.Second,
		MaxEventsPerTick:         1500,
		EventMaxAge:              10 * time.Minute,
		KeepaliveInterval:        5 * time.Second,
		HygieneInterval:          10 * time.Second,
		ActionsPerTick:           12,
		StageRetryMax:            2,
		TermsReplayCooldown:      6 * time.Second,
		TermsReplayMax:           40,
		WaitingTermsPingInterval: 6 * time.Second,
		WaitingTermsMaxWait:      3 * time.Minute,
		LeaveOnTimeout:           true,
		LNPayRetryCooldown:       10 * time.Second,
		LNRoutePrecheckCooldown:  10 * time.Second,
		LNRoutePrecheckWait:      4 * time.Second,
		LNPayFailLeaveAttempts:   2,
		LNPayFailLeaveMinWait:    5 * time.Second,
		SwapLeaveCooldown:        10 * time.Second,
		SwapLeaveCooldownMax:     120 * time.Second,
		DoneMaxAge:               40 * time.Minute,
		EnableQuoteFromRFQs:      false,
		SolRefundWindow:          72 * time.Hour,
		TermsValidFor:            5 * time.Minute,
	}
}
