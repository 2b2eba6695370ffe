package domain

import "fmt"

type RecoveryStep int

const (
	StepSoftReset RecoveryStep = iota + 1
	StepForceRelaunch
	StepKillAndRelaunch
)

// RecoverySteps lists the escalation order.
var RecoverySteps = []RecoveryStep{StepSoftReset, StepForceRelaunch, StepKillAndRelaunch}

func (s RecoveryStep) String() string {
	switch s {
	case StepSoftReset:
		return "soft_reset"
	case StepForceRelaunch:
		return "force_relaunch"
	case StepKillAndRelaunch:
		return "kill_and_relaunch"
	default:
		return fmt.Sprintf("step_%d", int(s))
	}
}

// EventName is the lifecycle event emitted when the step is attempted.
func (s RecoveryStep) EventName() string {
	return fmt.Sprintf("recovery_step_%d", int(s))
}

type RecoveryAttempt struct {
	Step  RecoveryStep
	Err   error // error returned by the step itself
	Alive bool  // result of the re-check after the step
}

type HealthOutcome string

const (
	OutcomeOK            HealthOutcome = "ok"
	OutcomeRecovered     HealthOutcome = "recovered"
	OutcomeUnrecoverable HealthOutcome = "unrecoverable"
)
