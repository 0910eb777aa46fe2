package types

import "github.com/shopspring/decimal"

// ExecStatus distinguishes "nothing happened, by design" from "something broke"
type ExecStatus string

const (
	StatusExecuted ExecStatus = "EXECUTED"
	StatusRejected ExecStatus = "REJECTED" // deliberate skip (risk/validation)
	StatusFailed   ExecStatus = "FAILED"   // exchange error after retries
)

// ExecResult is the structured outcome of processing one trade signal
type ExecResult struct {
	Status   ExecStatus
	Reason   string
	Size     decimal.Decimal
	Position *Position // set only when Status == StatusExecuted
}

// Rejected builds a rejection result with a reason
func Rejected(reason string) ExecResult {
	return ExecResult{Status: StatusRejected, Reason: reason}
}

// Failed builds a failure result with a reason
func Failed(reason string) ExecResult {
	return ExecResult{Status: StatusFailed, Reason: reason}
}
