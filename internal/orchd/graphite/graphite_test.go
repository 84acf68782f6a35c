package graphite

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateContract_AcceptsAllowedInvocations(t *testing.T) {
	require.NoError(t, validateContract(CmdCreate, []string{"create", "task/T1"}))
	require.NoError(t, validateContract(CmdRestack, []string{"restack"}))
	require.NoError(t, validateContract(CmdAddAllForConflict, []string{"add", "-A"}))
	require.NoError(t, validateContract(CmdContinueConflict, []string{"continue"}))
	require.NoError(t, validateContract(CmdLogShort, []string{"log", "short"}))
	require.NoError(t, validateContract(CmdStatus, []string{"status"}))
	require.NoError(t, validateContract(CmdSubmit, []string{"submit"}))
	require.NoError(t, validateContract(CmdSubmitStack, []string{"submit", "--stack"}))
}

func TestValidateContract_RejectsMismatchedInvocations(t *testing.T) {
	err := validateContract(CmdCreate, []string{"create", ""})
	require.Error(t, err)
	var gErr *Error
	require.ErrorAs(t, err, &gErr)
	require.Equal(t, ErrContractViolation, gErr.Kind)

	require.Error(t, validateContract(CmdRestack, []string{"restack", "--stack"}))

	// submit --stack under the plain Submit variant must be rejected.
	require.Error(t, validateContract(CmdSubmit, []string{"submit", "--stack"}))
	// and the reverse: Submit's argument vector cannot satisfy SubmitStack.
	require.Error(t, validateContract(CmdSubmitStack, []string{"submit"}))
}

func TestRunAllowed_ContractViolationNeverSpawnsSubprocess(t *testing.T) {
	cli := CLI{Binary: "/definitely/missing/gt-binary"}
	_, err := cli.RunAllowed(".", CmdRestack, "restack", "--bad-arg")
	require.Error(t, err)
	var gErr *Error
	require.ErrorAs(t, err, &gErr)
	require.Equal(t, ErrContractViolation, gErr.Kind)
}

func TestLooksLikeRestackConflict(t *testing.T) {
	require.True(t, looksLikeRestackConflict("", "CONFLICT (content): Merge conflict in src/main.go"))
	require.True(t, looksLikeRestackConflict("could not apply 123abc", "please resolve conflicts and run gt continue"))
	require.False(t, looksLikeRestackConflict("", "authentication failed: token expired"))
}

func TestLooksLikeAuthFailure(t *testing.T) {
	require.True(t, looksLikeAuthFailure("", "ERROR: Please authenticate your Graphite CLI by visiting https://app.graphite.com/activate"))
	require.True(t, looksLikeAuthFailure("", "ERROR: No auth token set. Please run `graphite auth --token <token>`."))
}

func TestParseLogShort(t *testing.T) {
	raw := "◉ main\n┃\n◯  feature/a (current)\n┃  *\n◯    feature/b\n"
	snap := ParseLogShort(raw)
	require.NotEmpty(t, snap.Nodes)
}

func TestInferDependenciesFromStack(t *testing.T) {
	raw := "main\n  feature/a\n    feature/b\n  feature/c\n"
	snap := ParseLogShort(raw)
	branchToTask := map[string]string{
		"main":       "T-main",
		"feature/a":  "T-a",
		"feature/b":  "T-b",
		"feature/c":  "T-c",
	}
	deps := InferDependenciesFromStack(snap, branchToTask)
	require.Contains(t, deps, InferredDependency{Parent: "T-main", Child: "T-a"})
	require.Contains(t, deps, InferredDependency{Parent: "T-a", Child: "T-b"})
	require.Contains(t, deps, InferredDependency{Parent: "T-main", Child: "T-c"})
}
