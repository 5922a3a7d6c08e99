package types

// ResultCode is the exit status of one execution unit. Zero means every
// scenario the unit ran passed.
type ResultCode int

const (
	ResultSuccess ResultCode = 0
	ResultFailure ResultCode = 1
)

// Succeeded reports whether the code equals the success sentinel.
func (c ResultCode) Succeeded() bool {
	return c == ResultSuccess
}

// BatchOutcome is the verdict for one mode's batch.
type BatchOutcome string

const (
	OutcomeAllSucceeded BatchOutcome = "all_succeeded"
	OutcomeSomeFailed   BatchOutcome = "some_failed"
	OutcomeAborted      BatchOutcome = "aborted"
)

// RunStatus is the verdict for a whole orchestrator run.
type RunStatus string

const (
	RunStatusPass    RunStatus = "pass"
	RunStatusFail    RunStatus = "fail"
	RunStatusAborted RunStatus = "aborted"
)

// NoneSentinel is the configuration value that disables tag filtering and
// glue hints.
const NoneSentinel = "none"
