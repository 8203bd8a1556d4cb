package target

// State is a step of the per-target lifecycle. States only move forward.
type State int

const (
	Pending State = iota
	Cloned
	Rebased
	Committed
	Tagged
	BuildSubmitted
	Built
	Pushed
)

var stateNames = [...]string{
	Pending:        "PENDING",
	Cloned:         "CLONED",
	Rebased:        "REBASED",
	Committed:      "COMMITTED",
	Tagged:         "TAGGED",
	BuildSubmitted: "BUILD_SUBMITTED",
	Built:          "BUILT",
	Pushed:         "PUSHED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}
