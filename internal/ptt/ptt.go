// Package ptt defines the transmitter-keying and input-line boundary
// the transmit sequencer drives. Hardware backends (serial RTS/DTR,
// GPIO, parallel port, CM108 HID) live outside this repository; only
// the narrow interface the core consumes is defined here.
package ptt

// OutputType identifies which output line a Line.Set call asserts or
// deasserts.
type OutputType int

const (
	// OutputPTT keys the transmitter.
	OutputPTT OutputType = iota
	// OutputDCD drives an external data-carrier-detect indicator.
	OutputDCD
	// OutputCON drives a connected-indicator line.
	OutputCON
	// OutputSYN drives an auxiliary sync/square-wave output.
	OutputSYN
)

// InputType identifies which input line Line.Get reads.
type InputType int

const (
	// InputTXInhibit reports an external "do not transmit" interlock.
	InputTXInhibit InputType = iota
)

// Line is the PTT/line-control boundary for one radio channel. A
// no-hardware implementation (Null) is provided for tests and for running
// the core without a keyed transmitter.
type Line interface {
	// Set asserts (true) or deasserts (false) the given output line.
	Set(ot OutputType, assert bool) error
	// Get reads the given input line's current state.
	Get(it InputType) (bool, error)
}

// Null is a Line that does nothing and reports every input line as clear.
// It is the default for tests and for running the physical layer without
// a PTT backend wired in.
type Null struct{}

// Set implements Line.
func (Null) Set(OutputType, bool) error { return nil }

// Get implements Line.
func (Null) Get(InputType) (bool, error) { return false, nil }

// Recorder is a Line that records every Set call, for tests that assert
// on PTT keying sequences without a real transmitter.
type Recorder struct {
	Events []Event
}

// Event is one recorded Set call.
type Event struct {
	Type   OutputType
	Assert bool
}

// Set implements Line.
func (r *Recorder) Set(ot OutputType, assert bool) error {
	r.Events = append(r.Events, Event{Type: ot, Assert: assert})
	return nil
}

// Get implements Line.
func (r *Recorder) Get(InputType) (bool, error) { return false, nil }

// PTTWasAsserted reports whether PTT was ever keyed on during the
// recording.
func (r *Recorder) PTTWasAsserted() bool {
	for _, e := range r.Events {
		if e.Type == OutputPTT && e.Assert {
			return true
		}
	}
	return false
}
