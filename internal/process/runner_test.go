package process

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireCommand(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

func TestExecRunner_Stdin(t *testing.T) {
	requireCommand(t, "cat")
	r := NewExecRunner(5 * time.Second)
	res, err := r.Run(context.Background(), "hello runner", "cat")
	require.NoError(t, err)
	assert.Equal(t, "hello runner", res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	requireCommand(t, "sh")
	r := NewExecRunner(5 * time.Second)
	res, err := r.Run(context.Background(), "", "sh", "-c", "echo oops >&2; exit 3")
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "oops", strings.TrimSpace(res.Stderr))
}

func TestExecRunner_Timeout(t *testing.T) {
	requireCommand(t, "sleep")
	r := NewExecRunner(100 * time.Millisecond)
	_, err := r.Run(context.Background(), "", "sleep", "5")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestExecRunner_MissingBinary(t *testing.T) {
	r := NewExecRunner(time.Second)
	_, err := r.Run(context.Background(), "", "codeindex-no-such-binary")
	assert.Error(t, err)
}
