package ethdemo

// Stage identifies where a workflow run currently is.
type Stage uint8

const (
	StageIdle Stage = iota
	StageCompiling
	StageChainStarting
	StageDeploying
	StageInvoking
	StageAwaitingConfirmations
	StageExtractingEvent
	StageReporting
	StageStopped
)

var stageNames = [...]string{
	StageIdle:                  "idle",
	StageCompiling:             "compiling",
	StageChainStarting:         "chain-starting",
	StageDeploying:             "deploying",
	StageInvoking:              "invoking",
	StageAwaitingConfirmations: "awaiting-confirmations",
	StageExtractingEvent:       "extracting-event",
	StageReporting:             "reporting",
	StageStopped:               "stopped",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// canTransition reports whether a run may move from s to next.
// The invoke segment loops back from Reporting for repeated invocations.
func (s Stage) canTransition(next Stage) bool {
	switch {
	case next == s+1:
		return true
	case s == StageReporting && next == StageInvoking:
		return true
	case s == StageCompiling && next == StageDeploying:
		// external endpoint, no chain to start
		return true
	}
	return false
}
