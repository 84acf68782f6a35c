// Package stackpipeline drives one task's linear sequence of
// stacking, verification, and submission steps:
// VerifyBranch -> StackOnParent (if stacked) -> VerifyStack -> Submit -> Done,
// with Failed reachable from any stage.
package stackpipeline

import "github.com/othala-dev/orchd/internal/orchd/domain"

// Stage identifies one step of the pipeline.
type Stage string

const (
	StageVerifyBranch  Stage = "verify_branch"
	StageStackOnParent Stage = "stack_on_parent"
	StageVerifyStack   Stage = "verify_stack"
	StageSubmit        Stage = "submit"
	StageDone          Stage = "done"
	StageFailed        Stage = "failed"
)

// String renders stage in its wire form.
func (s Stage) String() string { return string(s) }

// State tracks one task's progress through the pipeline.
type State struct {
	TaskID       domain.TaskId
	Stage        Stage
	ParentBranch *string
	BranchName   string
	WorktreePath string
	SubmitMode   domain.SubmitMode
	Error        *string
}

// New builds a State starting at VerifyBranch.
func New(taskID domain.TaskId, branchName, worktreePath string, submitMode domain.SubmitMode, parentBranch *string) State {
	return State{
		TaskID:       taskID,
		Stage:        StageVerifyBranch,
		ParentBranch: parentBranch,
		BranchName:   branchName,
		WorktreePath: worktreePath,
		SubmitMode:   submitMode,
	}
}

// IsTerminal reports whether the pipeline has finished, successfully
// or not.
func (s *State) IsTerminal() bool {
	return s.Stage == StageDone || s.Stage == StageFailed
}

// Advance moves to the next stage after a successful step. A task
// with no parent branch skips StackOnParent and VerifyStack entirely,
// going straight from VerifyBranch to Submit. Advancing from a
// terminal stage is a no-op.
func (s *State) Advance() {
	switch s.Stage {
	case StageVerifyBranch:
		if s.ParentBranch != nil {
			s.Stage = StageStackOnParent
		} else {
			s.Stage = StageSubmit
		}
	case StageStackOnParent:
		s.Stage = StageVerifyStack
	case StageVerifyStack:
		s.Stage = StageSubmit
	case StageSubmit:
		s.Stage = StageDone
	case StageDone, StageFailed:
		// terminal, no-op
	}
}

// Fail marks the pipeline as failed with the given error.
func (s *State) Fail(err string) {
	s.Error = &err
	s.Stage = StageFailed
}

// ActionKind discriminates Action.
type ActionKind string

const (
	ActionRunVerify     ActionKind = "run_verify"
	ActionStackOnParent ActionKind = "stack_on_parent"
	ActionSubmit        ActionKind = "submit"
	ActionComplete      ActionKind = "complete"
	ActionFailed        ActionKind = "failed"
)

// Action tells the caller what to do next for one pipeline state.
type Action struct {
	Kind         ActionKind
	TaskID       domain.TaskId
	WorktreePath string
	ParentBranch string // meaningful for ActionStackOnParent
	SubmitMode   domain.SubmitMode
	Stage        Stage  // meaningful for ActionFailed
	Error        string // meaningful for ActionFailed
}

// NextAction is a pure function of state: it never mutates state or
// performs the step itself. The caller executes the action and calls
// Advance or Fail on state based on the outcome.
func NextAction(state State) Action {
	switch state.Stage {
	case StageVerifyBranch, StageVerifyStack:
		return Action{Kind: ActionRunVerify, TaskID: state.TaskID, WorktreePath: state.WorktreePath}
	case StageStackOnParent:
		parent := "main"
		if state.ParentBranch != nil {
			parent = *state.ParentBranch
		}
		return Action{Kind: ActionStackOnParent, TaskID: state.TaskID, WorktreePath: state.WorktreePath, ParentBranch: parent}
	case StageSubmit:
		return Action{Kind: ActionSubmit, TaskID: state.TaskID, WorktreePath: state.WorktreePath, SubmitMode: state.SubmitMode}
	case StageDone:
		return Action{Kind: ActionComplete, TaskID: state.TaskID}
	default: // StageFailed
		errMsg := ""
		if state.Error != nil {
			errMsg = *state.Error
		}
		return Action{Kind: ActionFailed, TaskID: state.TaskID, Stage: state.Stage, Error: errMsg}
	}
}
