package submission

import (
	"errors"
	"testing"

	"rfpdesk/pkg/domain"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from Phase
		ev   Event
		to   Phase
		ok   bool
	}{
		{Unset, GenerateStart, Generating, true},
		{Generating, GenerateOK, Generated, true},
		{Generating, GenerateFail, Unset, true},
		{Generated, GenerateStart, Generated, false},
		{Saved, EditStart, Editing, true},
		{Editing, EditSave, Saved, true},
		{Unset, Submit, Submitted, true},
		{Saved, Submit, Submitted, true},
		{Generating, Submit, Generating, false},
		{Submitted, Submit, Submitted, false},
		{NotSubmitted, Submit, NotSubmitted, false},
		{Unset, MarkNotForMe, NotSubmitted, true},
		{Saved, MarkNotForMe, Saved, false},
		{Submitted, MarkNotForMe, Submitted, false},
		{Submitted, EditStart, Submitted, false},
		{Generated, Refined, Saved, true},
		{NotSubmitted, Refined, NotSubmitted, false},
	}
	for _, tc := range tests {
		got, err := Transition(At(tc.from), tc.ev)
		if tc.ok && err != nil {
			t.Fatalf("%s on %s: unexpected error %v", tc.ev, tc.from, err)
		}
		if !tc.ok && !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("%s on %s: expected ErrIllegalTransition, got %v", tc.ev, tc.from, err)
		}
		if got.Phase != tc.to {
			t.Fatalf("%s on %s: got %s want %s", tc.ev, tc.from, got.Phase, tc.to)
		}
	}
}

func TestEditCancelRestoresPriorPhase(t *testing.T) {
	for _, from := range []Phase{Unset, Generated, Saved} {
		s, err := Transition(At(from), EditStart)
		if err != nil {
			t.Fatalf("edit from %s: %v", from, err)
		}
		if s.Status() != At(from).Status() {
			t.Fatalf("editing from %s reports status %q", from, s.Status())
		}
		back, err := Transition(s, EditCancel)
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if back.Phase != from {
			t.Fatalf("cancel returned %s, want %s", back.Phase, from)
		}
	}
}

func TestFromStatus(t *testing.T) {
	cases := map[domain.SubmissionStatus]Phase{
		domain.StatusUnset:        Unset,
		domain.StatusProcess:      Unset,
		domain.StatusSaved:        Saved,
		domain.StatusSubmitted:    Submitted,
		domain.StatusNotSubmitted: NotSubmitted,
	}
	for status, want := range cases {
		if got := FromStatus(status).Phase; got != want {
			t.Fatalf("FromStatus(%q) = %s, want %s", status, got, want)
		}
	}
}
