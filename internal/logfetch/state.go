// state.go defines the states and outcomes of a log transfer.
package logfetch

import "fmt"

type State int

const (
	Idle State = iota
	AwaitingEntry
	AwaitingData
)

// Name returns the name associated with the state.
func (s State) Name() string {
	switch s {
	case Idle:
		return "Idle"
	case AwaitingEntry:
		return "AwaitingEntry"
	case AwaitingData:
		return "AwaitingData"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome is the terminal result of a transfer.
type Outcome int

const (
	Completed Outcome = iota // The log was reassembled, decoded and committed
	Empty                    // The vehicle has no log to offer
	Aborted                  // Cancelled, superseded or out of retries
	Failed                   // Local I/O or decode failure
)

func (o Outcome) Name() string {
	switch o {
	case Completed:
		return "Completed"
	case Empty:
		return "Empty"
	case Aborted:
		return "Aborted"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.Name()), nil
}

func (o *Outcome) UnmarshalText(b []byte) error {
	for _, candidate := range []Outcome{Completed, Empty, Aborted, Failed} {
		if candidate.Name() == string(b) {
			*o = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", b)
}
