package migrate

// State is the phase an upgrade is in.
type State int

const (
	Idle State = iota
	CheckingVersion
	StagingCopy
	Validating
	Promoting
	Done
	Failed
)

var stateNames = [...]string{
	Idle:            "idle",
	CheckingVersion: "checking-version",
	StagingCopy:     "staging-copy",
	Validating:      "validating",
	Promoting:       "promoting",
	Done:            "done",
	Failed:          "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText encodes the state by name for JSON reports.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
