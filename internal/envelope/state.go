package envelope

import "encoding/json"

// ExitTag distinguishes a successful completion from a failed one inside
// a Processed MessageState.
type ExitTag string

const (
	ExitSuccess ExitTag = "Success"
	ExitFailure ExitTag = "Failure"
)

// Exit is the success-or-failure result a Replier attaches to a
// Processed MessageState.
type Exit struct {
	Tag   ExitTag         `json:"tag"`
	Value json.RawMessage `json:"value,omitempty"`
	Cause string          `json:"cause,omitempty"`
}

// Succeeded builds an Exit carrying an encoded success value.
func Succeeded(value any) Exit {
	raw, err := json.Marshal(value)
	if err != nil {
		return Failed(err.Error())
	}
	return Exit{Tag: ExitSuccess, Value: raw}
}

// Failed builds an Exit carrying a failure cause.
func Failed(cause string) Exit {
	return Exit{Tag: ExitFailure, Cause: cause}
}

// StateTag distinguishes a message still awaiting a reply from one that
// has been completed.
type StateTag string

const (
	StatePending   StateTag = "Pending"
	StateProcessed StateTag = "Processed"
)

// MessageState is the variant persisted by MailboxStorage alongside each
// Entry: either still Pending, or Processed with its terminal Exit.
// Repeated application of the same terminal state is idempotent — the
// store simply overwrites the previous Processed value with an identical
// one.
type MessageState struct {
	Tag  StateTag `json:"tag"`
	Exit *Exit    `json:"exit,omitempty"`
}

// Pending is the initial state of every saved message.
func Pending() MessageState {
	return MessageState{Tag: StatePending}
}

// Processed builds a terminal state carrying exit.
func Processed(exit Exit) MessageState {
	return MessageState{Tag: StateProcessed, Exit: &exit}
}

// IsProcessed reports whether the state is terminal.
func (s MessageState) IsProcessed() bool {
	return s.Tag == StateProcessed
}
