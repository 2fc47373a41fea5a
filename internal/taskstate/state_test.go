package taskstate

import (
	"testing"

	"github.com/Iron-Ham/taskscope/internal/errors"
)

func TestValidateTransition_TableListedPairsAccepted(t *testing.T) {
	allowed := []struct {
		from, to State
	}{
		{Pending, InProgress},
		{Pending, Completed},
		{InProgress, Blocked},
		{InProgress, Completed},
		{Blocked, InProgress},
		{Blocked, Completed},
	}

	for _, tt := range allowed {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if err := ValidateTransition(tt.from, tt.to); err != nil {
				t.Errorf("ValidateTransition(%s, %s) = %v, want nil", tt.from, tt.to, err)
			}
		})
	}
}

func TestValidateTransition_CompletedIsTerminal(t *testing.T) {
	for _, to := range States() {
		err := ValidateTransition(Completed, to)
		if err == nil {
			t.Errorf("ValidateTransition(completed, %s) = nil, want rejection", to)
			continue
		}
		if !errors.Is(err, errors.ErrInvalidTransition) {
			t.Errorf("error %v should match ErrInvalidTransition", err)
		}
	}
}

func TestValidateTransition_Rejections(t *testing.T) {
	rejected := []struct {
		from, to State
	}{
		{Pending, Blocked},
		{Pending, Pending},
		{InProgress, InProgress},
		{InProgress, Pending},
		{Blocked, Blocked},
		{Blocked, Pending},
		{State("archived"), Pending},
		{Pending, State("archived")},
	}

	for _, tt := range rejected {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if err == nil {
				t.Fatalf("ValidateTransition(%s, %s) = nil, want rejection", tt.from, tt.to)
			}
			var te *errors.TransitionError
			if !errors.As(err, &te) {
				t.Fatalf("error type = %T, want *TransitionError", err)
			}
			if te.From != string(tt.from) || te.To != string(tt.to) {
				t.Errorf("TransitionError From/To = %s/%s, want %s/%s", te.From, te.To, tt.from, tt.to)
			}
		})
	}
}

func TestValidateTransition_Exhaustive(t *testing.T) {
	accepted := 0
	for _, from := range States() {
		for _, to := range States() {
			if ValidateTransition(from, to) == nil {
				accepted++
			}
		}
	}
	if accepted != 6 {
		t.Errorf("accepted %d pairs, want exactly the 6 table entries", accepted)
	}
}

func TestValidateTaskTransition(t *testing.T) {
	err := ValidateTaskTransition("task-3", Pending, Blocked)
	var te *errors.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T, want *TransitionError", err)
	}
	if te.TaskID != "task-3" {
		t.Errorf("TaskID = %q, want task-3", te.TaskID)
	}
	if ValidateTaskTransition("task-3", Pending, InProgress) != nil {
		t.Error("pending -> in_progress should be accepted")
	}
}

func TestAllowedTransitions(t *testing.T) {
	got := AllowedTransitions(Blocked)
	if len(got) != 2 || got[0] != InProgress || got[1] != Completed {
		t.Errorf("AllowedTransitions(blocked) = %v", got)
	}

	// Mutating the result must not affect the table.
	got[0] = Pending
	if !CanTransition(Blocked, InProgress) {
		t.Error("table was mutated through AllowedTransitions result")
	}

	if len(AllowedTransitions(Completed)) != 0 {
		t.Error("completed should have no outgoing transitions")
	}
}

func TestParseState(t *testing.T) {
	for _, s := range States() {
		got, err := ParseState(string(s))
		if err != nil || got != s {
			t.Errorf("ParseState(%q) = %q, %v", s, got, err)
		}
	}

	_, err := ParseState("done")
	if err == nil {
		t.Fatal("ParseState(done) should fail")
	}
	if !errors.Is(err, errors.ErrUnknownState) {
		t.Errorf("error %v should wrap ErrUnknownState", err)
	}
}

func TestState_IsTerminal(t *testing.T) {
	for _, s := range States() {
		if got, want := s.IsTerminal(), s == Completed; got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, want)
		}
	}
}
