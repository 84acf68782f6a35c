package agent

import "github.com/othala-dev/orchd/internal/orchd/domain"

// Adapter is the capability set each model plugs into the runner: its
// model kind, how to build the concrete command, and (optionally) a
// signal detector more specific than DetectCommonSignal.
type Adapter interface {
	Model() domain.ModelKind
	BuildCommand(request EpochRequest) AgentCommand
	DetectSignal(line string) *AgentSignal
}

// baseAdapter implements the shared BuildCommand/DetectSignal behavior
// every variant uses: clone extra_args, append the prompt, pass env
// through untouched, and fall back to the common signal detector.
type baseAdapter struct {
	model      domain.ModelKind
	executable string
}

func (a baseAdapter) Model() domain.ModelKind { return a.model }

func (a baseAdapter) BuildCommand(request EpochRequest) AgentCommand {
	args := make([]string, len(request.ExtraArgs), len(request.ExtraArgs)+1)
	copy(args, request.ExtraArgs)
	args = append(args, request.Prompt)
	return AgentCommand{Executable: a.executable, Args: args, Env: request.Env}
}

func (a baseAdapter) DetectSignal(line string) *AgentSignal { return DetectCommonSignal(line) }

// ClaudeAdapter drives the `claude` CLI.
type ClaudeAdapter struct{ baseAdapter }

// NewClaudeAdapter builds a ClaudeAdapter invoking executable (default
// "claude").
func NewClaudeAdapter(executable string) ClaudeAdapter {
	if executable == "" {
		executable = "claude"
	}
	return ClaudeAdapter{baseAdapter{model: domain.ModelClaude, executable: executable}}
}

// CodexAdapter drives the `codex` CLI.
type CodexAdapter struct{ baseAdapter }

// NewCodexAdapter builds a CodexAdapter invoking executable (default
// "codex").
func NewCodexAdapter(executable string) CodexAdapter {
	if executable == "" {
		executable = "codex"
	}
	return CodexAdapter{baseAdapter{model: domain.ModelCodex, executable: executable}}
}

// GeminiAdapter drives the `gemini` CLI.
type GeminiAdapter struct{ baseAdapter }

// NewGeminiAdapter builds a GeminiAdapter invoking executable (default
// "gemini").
func NewGeminiAdapter(executable string) GeminiAdapter {
	if executable == "" {
		executable = "gemini"
	}
	return GeminiAdapter{baseAdapter{model: domain.ModelGemini, executable: executable}}
}

// DefaultAdapterFor returns the default adapter for model, or
// UnsupportedModel if model is outside the closed ModelKind set.
func DefaultAdapterFor(model domain.ModelKind) (Adapter, error) {
	switch model {
	case domain.ModelClaude:
		return NewClaudeAdapter(""), nil
	case domain.ModelCodex:
		return NewCodexAdapter(""), nil
	case domain.ModelGemini:
		return NewGeminiAdapter(""), nil
	default:
		return nil, &Error{Kind: ErrUnsupportedModel, Model: string(model)}
	}
}
