package action

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type recorder struct {
	events []string
}

// counterAction counts calls and optionally fails.
type counterAction struct {
	Name       string `json:"name"`
	FailExec   bool   `json:"fail_exec,omitempty"`
	FailRevert bool   `json:"fail_revert,omitempty"`

	executed int
	reverted int
	rec      *recorder
}

const counterTag Tag = "test_counter"

func init() {
	Register(counterTag, func() Action { return &counterAction{} })
}

func (c *counterAction) Tag() Tag         { return counterTag }
func (c *counterAction) Synopsis() string { return "count " + c.Name }

func (c *counterAction) ExecuteDescription() []Description {
	return Describe("Execute "+c.Name, "detail")
}

func (c *counterAction) RevertDescription() []Description {
	return Describe("Revert " + c.Name)
}

func (c *counterAction) Execute(context.Context) error {
	c.executed++
	if c.rec != nil {
		c.rec.events = append(c.rec.events, "execute "+c.Name)
	}
	if c.FailExec {
		return errors.New("execute " + c.Name + " failed")
	}
	return nil
}

func (c *counterAction) Revert(context.Context) error {
	c.reverted++
	if c.rec != nil {
		c.rec.events = append(c.rec.events, "revert "+c.Name)
	}
	if c.FailRevert {
		return errors.New("revert " + c.Name + " failed")
	}
	return nil
}

func TestTryExecuteTwiceRunsOnce(t *testing.T) {
	a := &counterAction{Name: "a"}
	s := NewUncompleted(a)

	for i := 0; i < 2; i++ {
		if err := s.TryExecute(context.Background()); err != nil {
			t.Fatalf("TryExecute() #%d error = %v", i+1, err)
		}
	}

	if a.executed != 1 {
		t.Errorf("executed = %d, want 1", a.executed)
	}
	if s.State() != Completed {
		t.Errorf("State() = %s, want Completed", s.State())
	}
}

func TestTryRevertUncompletedIsNoop(t *testing.T) {
	a := &counterAction{Name: "a"}
	s := NewUncompleted(a)

	if err := s.TryRevert(context.Background()); err != nil {
		t.Fatalf("TryRevert() error = %v", err)
	}
	if a.reverted != 0 {
		t.Errorf("reverted = %d, want 0", a.reverted)
	}
}

func TestFailedTransitionKeepsState(t *testing.T) {
	a := &counterAction{Name: "a", FailExec: true}
	s := NewUncompleted(a)

	err := s.TryExecute(context.Background())
	if err == nil {
		t.Fatal("TryExecute() expected error")
	}
	if s.State() != Uncompleted {
		t.Errorf("State() = %s, want Uncompleted", s.State())
	}

	var actionErr *Error
	if !errors.As(err, &actionErr) {
		t.Fatalf("error %v is not *Error", err)
	}
	if actionErr.Tag != counterTag {
		t.Errorf("Tag = %s, want %s", actionErr.Tag, counterTag)
	}

	b := &counterAction{Name: "b", FailRevert: true}
	sb := NewCompleted(b)
	if err := sb.TryRevert(context.Background()); err == nil {
		t.Fatal("TryRevert() expected error")
	}
	if sb.State() != Completed {
		t.Errorf("State() = %s, want Completed", sb.State())
	}
}

func TestDescribeFollowsState(t *testing.T) {
	s := NewCompleted(&counterAction{Name: "a"})
	if got := s.DescribeExecute(); len(got) != 0 {
		t.Errorf("DescribeExecute() on Completed = %v, want empty", got)
	}
	if got := s.DescribeRevert(); len(got) != 1 {
		t.Errorf("DescribeRevert() on Completed = %v, want one entry", got)
	}

	u := NewUncompleted(&counterAction{Name: "b"})
	if got := u.DescribeRevert(); len(got) != 0 {
		t.Errorf("DescribeRevert() on Uncompleted = %v, want empty", got)
	}
}

func TestStatefulJSONRoundTrip(t *testing.T) {
	s := Erase(NewCompleted(&counterAction{Name: "a"}))

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"action_name":"test_counter"`) {
		t.Errorf("encoded wrapper %s lacks the tag", data)
	}
	if !strings.Contains(string(data), `"state":"Completed"`) {
		t.Errorf("encoded wrapper %s lacks the state", data)
	}

	var erased Stateful[Action]
	if err := json.Unmarshal(data, &erased); err != nil {
		t.Fatalf("Unmarshal() erased error = %v", err)
	}
	if erased.State() != Completed || erased.Inner().(*counterAction).Name != "a" {
		t.Errorf("erased decode = %+v", erased)
	}

	var typed Stateful[*counterAction]
	if err := json.Unmarshal(data, &typed); err != nil {
		t.Fatalf("Unmarshal() typed error = %v", err)
	}
	if typed.Inner().Name != "a" {
		t.Errorf("typed Name = %q, want a", typed.Inner().Name)
	}
}

func TestStatefulJSONRejectsBadState(t *testing.T) {
	var s Stateful[Action]
	err := json.Unmarshal([]byte(`{"action":{"action_name":"test_counter"},"state":"Halfway"}`), &s)
	if err == nil {
		t.Fatal("Unmarshal() expected error for unknown state")
	}
}

func TestChildrenOrder(t *testing.T) {
	rec := &recorder{}
	children := Children{
		Erase(NewUncompleted(&counterAction{Name: "1", rec: rec})),
		Erase(NewUncompleted(&counterAction{Name: "2", rec: rec})),
		Erase(NewUncompleted(&counterAction{Name: "3", rec: rec})),
	}

	if err := children.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if err := children.Revert(context.Background()); err != nil {
		t.Fatalf("Revert() error = %v", err)
	}

	want := []string{"execute 1", "execute 2", "execute 3", "revert 3", "revert 2", "revert 1"}
	if strings.Join(rec.events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", rec.events, want)
	}
}

func TestChildrenExecuteFailsFast(t *testing.T) {
	rec := &recorder{}
	third := &counterAction{Name: "3", rec: rec}
	children := Children{
		Erase(NewUncompleted(&counterAction{Name: "1", rec: rec})),
		Erase(NewUncompleted(&counterAction{Name: "2", rec: rec, FailExec: true})),
		Erase(NewUncompleted(third)),
	}

	if err := children.Execute(context.Background()); err == nil {
		t.Fatal("Execute() expected error")
	}
	if third.executed != 0 {
		t.Errorf("child after failure executed %d times", third.executed)
	}
}

func TestChildrenRevertAggregates(t *testing.T) {
	children := Children{
		Erase(NewCompleted(&counterAction{Name: "1", FailRevert: true})),
		Erase(NewCompleted(&counterAction{Name: "2"})),
		Erase(NewCompleted(&counterAction{Name: "3", FailRevert: true})),
	}

	err := children.Revert(context.Background())

	var multi *MultipleChildrenError
	if !errors.As(err, &multi) {
		t.Fatalf("Revert() error = %v, want *MultipleChildrenError", err)
	}
	if len(multi.Errs) != 2 {
		t.Fatalf("len(Errs) = %d, want 2", len(multi.Errs))
	}
	if !strings.Contains(multi.Errs[0].Error(), "revert 3") || !strings.Contains(multi.Errs[1].Error(), "revert 1") {
		t.Errorf("errors out of revert order: %v", multi.Errs)
	}
	if children[1].State() != Uncompleted {
		t.Error("successful child was not reverted")
	}
}

func TestJoinErrors(t *testing.T) {
	if JoinErrors(nil) != nil {
		t.Error("JoinErrors(nil) should be nil")
	}
	single := errors.New("one")
	if JoinErrors([]error{single}) != single {
		t.Error("JoinErrors() with one error should return it unchanged")
	}
}
