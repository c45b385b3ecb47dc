package modification

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// States
const (
	Requested State = iota
	Accepted
	Rejected
)

var (
	stateNames = map[State]string{
		Requested: "requested",
		Accepted:  "accepted",
		Rejected:  "rejected",
	}

	// errors
	ErrInvalidState    = errors.New("modification has already been decided")
	ErrUnknownState    = errors.New("unknown modification state")
	ErrUnknownDecision = errors.New("decision must be one of: accept, reject")
)

// State is the lifecycle state of a Modification. Requested is the only non-terminal state.
type State int

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) IsTerminal() bool { return s == Accepted || s == Rejected }

func ParseState(name string) (State, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for state, sName := range stateNames {
		if sName == name {
			return state, nil
		}
	}
	return 0, errors.Wrap(ErrUnknownState, name)
}

func (s State) MarshalJSON() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, errors.Wrapf(ErrUnknownState, "%d", int(s))
	}
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	state, err := ParseState(name)
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// Decision is an admin's verdict on a Requested Modification.
type Decision int

const (
	Accept Decision = iota + 1
	Reject
)

func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accept":
		return Accept, nil
	case "reject":
		return Reject, nil
	}
	return 0, ErrUnknownDecision
}

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

// State returns the terminal State the Decision leads to.
func (d Decision) State() State {
	if d == Accept {
		return Accepted
	}
	return Rejected
}

// Modification is a member's request to change their own profile.
type Modification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   Diff      `json:"content"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"` // UTC
	DecidedAt time.Time `json:"decided_at"` // UTC
	DecidedBy string    `json:"decided_by"`
	Note      string    `json:"note"`
}

type GetFilter struct {
	ID string
	// ForUpdate locks the record until the end of the transaction.
	ForUpdate bool
}

type QueryFilter struct {
	UserID string
	State  *State
}

// DecisionRequest is what an admin submits to decide a Modification.
type DecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=accept reject"`
	Note     string `json:"note" validate:"max=500"`
}

// NotifyResult summarizes an admin digest run.
type NotifyResult struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
}
