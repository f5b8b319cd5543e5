package event

import "fmt"

// Activity types distinguish the execution lane a run belongs to.
const (
	ActivityCron        = "cron"
	ActivitySubagent    = "subagent"
	ActivityInteractive = "interactive"
)

// CronRunKey builds the canonical run key for a cron job execution.
// Returns false when either identity component is missing.
func CronRunKey(jobID, sessionID string) (string, bool) {
	if jobID == "" || sessionID == "" {
		return "", false
	}
	return fmt.Sprintf("cron:%s:%s", jobID, sessionID), true
}

// SubagentRunKey builds the canonical run key for a background subagent
// run. Returns false when the run id is missing.
func SubagentRunKey(runID string) (string, bool) {
	if runID == "" {
		return "", false
	}
	return fmt.Sprintf("subagent:%s", runID), true
}
