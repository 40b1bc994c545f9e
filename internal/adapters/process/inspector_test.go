package process

import (
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDAlive(t *testing.T) {
	inspector := NewInspector()

	t.Run("own process", func(t *testing.T) {
		assert.True(t, inspector.PIDAlive(os.Getpid()))
	})

	t.Run("nonsense pids", func(t *testing.T) {
		assert.False(t, inspector.PIDAlive(0))
		assert.False(t, inspector.PIDAlive(-1))
	})

	t.Run("exited process", func(t *testing.T) {
		cmd := exec.Command("true")
		require.NoError(t, cmd.Run())

		assert.False(t, inspector.PIDAlive(cmd.Process.Pid))
	})
}

func TestTerminate(t *testing.T) {
	inspector := NewInspector()

	t.Run("running process", func(t *testing.T) {
		cmd := exec.Command("sleep", "60")
		require.NoError(t, cmd.Start())

		assert.NoError(t, inspector.Terminate(cmd.Process.Pid))
		cmd.Wait()
		assert.False(t, inspector.PIDAlive(cmd.Process.Pid))
	})

	t.Run("already gone", func(t *testing.T) {
		cmd := exec.Command("true")
		require.NoError(t, cmd.Run())

		assert.NoError(t, inspector.Terminate(cmd.Process.Pid))
	})

	t.Run("nonsense pid", func(t *testing.T) {
		assert.NoError(t, inspector.Terminate(0))
	})
}
