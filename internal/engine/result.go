// Package engine implements the Flow Execution Engine (spec §4.C/§4.D):
// the node executors, the iterative drive loop, the inbound router, and
// the trigger catalog. Its control-flow shape — an iterative loop handed
// a bounded step budget per tick rather than recursing per node — is
// adapted from the teacher's internal/scheduler.Scheduler tick discipline.
package engine

// Outcome tags what an executor returned (spec §4.C).
type Outcome string

const (
	OutcomeContinue      Outcome = "continue"
	OutcomeWait          Outcome = "wait"
	OutcomeComplete      Outcome = "complete"
	OutcomeFail          Outcome = "fail"
	OutcomeInputRejected Outcome = "input_rejected"
)

// ExecutionResult is what every node executor returns.
type ExecutionResult struct {
	Outcome    Outcome
	NextNodeID string // OutcomeContinue
	Reason     string // OutcomeFail, OutcomeInputRejected
	NextFlowID string // OutcomeComplete with End.NextFlow set
}

func cont(nextNodeID string) ExecutionResult {
	return ExecutionResult{Outcome: OutcomeContinue, NextNodeID: nextNodeID}
}

func wait() ExecutionResult {
	return ExecutionResult{Outcome: OutcomeWait}
}

func complete(nextFlowID string) ExecutionResult {
	return ExecutionResult{Outcome: OutcomeComplete, NextFlowID: nextFlowID}
}

func fail(reason string) ExecutionResult {
	return ExecutionResult{Outcome: OutcomeFail, Reason: reason}
}

func inputRejected(reason string) ExecutionResult {
	return ExecutionResult{Outcome: OutcomeInputRejected, Reason: reason}
}
