package submission

import (
	"errors"
	"fmt"

	"rfpdesk/pkg/domain"
)

// ErrIllegalTransition is returned for an event the current phase does not
// accept. No request is made in that case.
var ErrIllegalTransition = errors.New("illegal submission transition")

// Phase is the lifecycle position of one answer.
type Phase int

const (
	Unset Phase = iota
	Generating
	Generated
	Editing
	Saved
	Submitted
	NotSubmitted
)

var phaseNames = [...]string{
	Unset:        "unset",
	Generating:   "generating",
	Generated:    "generated",
	Editing:      "editing",
	Saved:        "saved",
	Submitted:    "submitted",
	NotSubmitted: "not submitted",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Terminal reports whether the phase accepts no further events.
func (p Phase) Terminal() bool {
	return p == Submitted || p == NotSubmitted
}

type Event int

const (
	GenerateStart Event = iota
	GenerateOK
	GenerateFail
	EditStart
	EditSave
	EditCancel
	Submit
	MarkNotForMe
	Refined
)

var eventNames = [...]string{
	GenerateStart: "generate",
	GenerateOK:    "generate ok",
	GenerateFail:  "generate failed",
	EditStart:     "edit",
	EditSave:      "save",
	EditCancel:    "cancel edit",
	Submit:        "submit",
	MarkNotForMe:  "not for me",
	Refined:       "refined",
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return fmt.Sprintf("event(%d)", int(e))
	}
	return eventNames[e]
}

// State is a phase plus the phase an edit returns to when cancelled.
type State struct {
	Phase  Phase
	resume Phase
}

// At builds a State in phase p.
func At(p Phase) State {
	return State{Phase: p}
}

// FromStatus maps a server status onto a phase. Unknown statuses read as
// untouched.
func FromStatus(status domain.SubmissionStatus) State {
	switch status {
	case domain.StatusSaved:
		return At(Saved)
	case domain.StatusSubmitted:
		return At(Submitted)
	case domain.StatusNotSubmitted:
		return At(NotSubmitted)
	default:
		return At(Unset)
	}
}

// Status is the server status the phase corresponds to.
func (s State) Status() domain.SubmissionStatus {
	switch s.Phase {
	case Saved:
		return domain.StatusSaved
	case Submitted:
		return domain.StatusSubmitted
	case NotSubmitted:
		return domain.StatusNotSubmitted
	case Editing:
		return State{Phase: s.resume}.Status()
	default:
		return domain.StatusUnset
	}
}

// Transition is the only place phases change.
func Transition(s State, ev Event) (State, error) {
	p := s.Phase
	switch ev {
	case GenerateStart:
		if p == Unset {
			return At(Generating), nil
		}
	case GenerateOK:
		if p == Generating {
			return At(Generated), nil
		}
	case GenerateFail:
		if p == Generating {
			return At(Unset), nil
		}
	case EditStart:
		if p == Unset || p == Generated || p == Saved {
			return State{Phase: Editing, resume: p}, nil
		}
	case EditSave:
		if p == Editing {
			return At(Saved), nil
		}
	case EditCancel:
		if p == Editing {
			return At(s.resume), nil
		}
	case Submit:
		if !p.Terminal() && p != Generating {
			return At(Submitted), nil
		}
	case MarkNotForMe:
		if p == Unset {
			return At(NotSubmitted), nil
		}
	case Refined:
		if !p.Terminal() && p != Generating {
			return At(Saved), nil
		}
	}
	return s, fmt.Errorf("%w: %s while %s", ErrIllegalTransition, ev, p)
}
