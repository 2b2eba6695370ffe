package domain

import "time"

const (
	EventRunStart              = "run_start"
	EventRunComplete           = "run_complete"
	EventRunAborted            = "run_aborted"
	EventRunFailed             = "run_failed"
	EventMeasurementStarted    = "measurement_started"
	EventSchedulerStarted      = "scheduler_started"
	EventEntryScheduled        = "entry_scheduled"
	EventEntryDropped          = "entry_dropped"
	EventIntervalExhausted     = "interval_exhausted"
	EventJobStarted            = "job_started"
	EventJobDone               = "job_done"
	EventJobFailed             = "job_failed"
	EventJobDispatchDegraded   = "job_dispatch_degraded"
	EventSessionCheckFailed    = "session_check_failed"
	EventRecoveryStepError     = "recovery_step_error"
	EventSessionRecovered      = "session_recovered"
	EventSessionRecoveryFailed = "session_recovery_failed"
)

// Workflow and device events.
const (
	EventAppiumConnect        = "appium_connect"
	EventAppiumReconnect      = "appium_reconnect"
	EventSessionDeadReconnect = "session_dead_reconnecting"
	EventLogcatStart          = "artifact_logcat_start"
	EventLogcatDone           = "artifact_logcat_done"
	EventLogcatFailed         = "artifact_logcat_failed"
	EventEnsureMeasurement    = "ensure_measurement_started"
	EventMeasurementRunning   = "measurement_already_running"
	EventTappingStartNow      = "tapping_start_now"
	EventOfflineModeDetected  = "offline_mode_detected"
	EventMeasurementConfirmed = "measurement_confirmed_running"
	EventInjectStart          = "inject_symptom_start"
	EventInjectDone           = "inject_symptom_done"
	EventInjectFailed         = "inject_symptom_failed"
	EventNotifyFailed         = "notify_failed"
)

// Event is one append-only lifecycle record.
type Event struct {
	ID    string         `json:"id"`
	RunID string         `json:"run_id"`
	Time  time.Time      `json:"ts"`
	Name  string         `json:"event"`
	Data  map[string]any `json:"data"`
}
