package cmdexec

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunner_Run(t *testing.T) {
	requireShell(t)

	var log bytes.Buffer
	r := &ExecRunner{Log: &log}
	res, err := r.Run(context.Background(), Cmd{
		Name:  "sh",
		Args:  []string{"-c", "echo out; echo err >&2; echo $FLEETBUILD_TEST_VAR; cat"},
		Env:   []string{"FLEETBUILD_TEST_VAR=set"},
		Stdin: strings.NewReader("piped"),
	})
	require.NoError(t, err)
	assert.Equal(t, "out\nset\npiped", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, log.String(), "piped")
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	requireShell(t)

	res, err := NewExecRunner().Run(context.Background(), Cmd{Name: "sh", Args: []string{"-c", "echo denied >&2; exit 3"}})
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, err.Error(), "stderr: denied")
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := NewExecRunner().Run(context.Background(), Cmd{Name: "fleetbuild-no-such-binary"})
	assert.Error(t, err)
}

func TestCmd_String(t *testing.T) {
	assert.Equal(t, "git clone -b main url", Cmd{Name: "git", Args: []string{"clone", "-b", "main", "url"}}.String())
	assert.Equal(t, "git", Cmd{Name: "git"}.String())
}
