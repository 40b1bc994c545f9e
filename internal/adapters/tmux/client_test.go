package tmux

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiln/internal/ports"
)

// fakeProcs is a canned ProcessInspector for lock ownership tests.
type fakeProcs struct {
	alive map[int]bool
}

func (f fakeProcs) PIDAlive(pid int) bool { return f.alive[pid] }

func (f fakeProcs) Terminate(int) error { return nil }

// scriptedRunner replays canned responses per tmux sub-command and
// records every invocation.
type scriptedRunner struct {
	calls     [][]string
	responses map[string][]response
}

type response struct {
	err    error
	output string
}

func (s *scriptedRunner) run(args ...string) (string, error) {
	s.calls = append(s.calls, args)
	queue := s.responses[args[0]]
	if len(queue) == 0 {
		return "", nil
	}
	next := queue[0]
	s.responses[args[0]] = queue[1:]
	return next.output, next.err
}

// callsFor returns the recorded invocations of one sub-command.
func (s *scriptedRunner) callsFor(sub string) [][]string {
	var out [][]string
	for _, call := range s.calls {
		if call[0] == sub {
			out = append(out, call)
		}
	}
	return out
}

func newTestClient(t *testing.T, script map[string][]response) (*Client, *scriptedRunner) {
	t.Helper()
	runner := &scriptedRunner{responses: script}
	client := NewClient(Options{
		DashboardKeys: []string{"[29~"},
		EscapeTimeMS:  100,
		LockPath:      filepath.Join(t.TempDir(), "nav_bindings.lock"),
		OverviewKeys:  []string{"[33~"},
	}, fakeProcs{alive: map[int]bool{}})
	client.run = runner.run
	return client, runner
}

func tmuxErr(msg string) error {
	return fmt.Errorf("tmux: exit status 1: %s", msg)
}

func TestSessionExists(t *testing.T) {
	tests := []struct {
		name       string
		probeErr   error
		want       bool
		wantErr    bool
		wantErrMsg string
	}{
		{name: "session present", probeErr: nil, want: true},
		{name: "no server running", probeErr: tmuxErr("no server running on /tmp/tmux-1000/default"), want: false},
		{name: "session not found", probeErr: tmuxErr("session not found: kiln-api"), want: false},
		{name: "cannot find session", probeErr: tmuxErr("can't find session: kiln-api"), want: false},
		{name: "real failure", probeErr: tmuxErr("unknown option -- t"), wantErr: true, wantErrMsg: "failed to probe session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, runner := newTestClient(t, map[string][]response{
				"has-session": {{err: tt.probeErr}},
			})

			got, err := client.SessionExists("kiln-api")

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrMsg)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			// Exact match marker must always be present.
			require.Len(t, runner.calls, 1)
			assert.Contains(t, runner.calls[0], "=kiln-api")
		})
	}
}

func TestEnsureSession_AlreadyExists(t *testing.T) {
	client, runner := newTestClient(t, map[string][]response{
		"has-session": {{}},
	})

	require.NoError(t, client.EnsureSession("kiln-api", "/work"))

	assert.Empty(t, runner.callsFor("new-session"), "existing session should not be recreated")
}

func TestEnsureSession_CreatesWithStartDir(t *testing.T) {
	client, runner := newTestClient(t, map[string][]response{
		// First probe misses, the readiness poll then sees the session.
		"has-session": {{err: tmuxErr("no server running")}, {}},
		"new-session": {{}},
	})

	require.NoError(t, client.EnsureSession("kiln-api", "/work"))

	created := runner.callsFor("new-session")
	require.Len(t, created, 1)
	assert.Equal(t, []string{"new-session", "-d", "-s", "kiln-api", "-c", "/work"}, created[0])
}

func TestEnsureSession_LosingCreateRaceIsFine(t *testing.T) {
	client, _ := newTestClient(t, map[string][]response{
		"has-session": {{err: tmuxErr("can't find session: kiln-api")}, {}},
		"new-session": {{err: tmuxErr("duplicate session: kiln-api")}},
	})

	assert.NoError(t, client.EnsureSession("kiln-api", ""))
}

func TestWithRetry_TransientFailuresAreRetried(t *testing.T) {
	client, runner := newTestClient(t, map[string][]response{
		"has-session": {{err: tmuxErr("no server running")}, {}},
		"new-session": {
			{err: tmuxErr("lost server")},
			{err: tmuxErr("connection refused")},
			{},
		},
	})

	require.NoError(t, client.EnsureSession("kiln-api", ""))

	assert.Len(t, runner.callsFor("new-session"), 3)
}

func TestWithRetry_PermanentFailureFailsFast(t *testing.T) {
	client, runner := newTestClient(t, map[string][]response{
		"has-session": {{err: tmuxErr("no server running")}},
		"new-session": {{err: tmuxErr("unknown command: new-sessio")}},
	})

	err := client.EnsureSession("kiln-api", "")

	require.Error(t, err)
	assert.Len(t, runner.callsFor("new-session"), 1, "permanent failures must not be retried")
}

func TestWithRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	client, runner := newTestClient(t, map[string][]response{
		"split-window": {
			{err: tmuxErr("connection refused")},
			{err: tmuxErr("connection refused")},
			{err: tmuxErr("connection refused")},
		},
	})

	_, err := client.SplitPane("kiln-api:agent-1", "")

	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrTmuxGaveUp)
	assert.Len(t, runner.callsFor("split-window"), 3)
}

func TestKillSession_MissingSessionIsNotAnError(t *testing.T) {
	client, _ := newTestClient(t, map[string][]response{
		"kill-session": {{err: tmuxErr("session not found: kiln-api")}},
	})

	assert.NoError(t, client.KillSession("kiln-api"))
}

func TestCreateWindow_ReturnsServerPrintedHandle(t *testing.T) {
	client, runner := newTestClient(t, map[string][]response{
		"new-window": {{output: "kiln-api:fix-login\n"}},
	})

	handle, err := client.CreateWindow("kiln-api", "fix-login", "/work/wt")

	require.NoError(t, err)
	assert.Equal(t, "kiln-api:fix-login", handle)

	calls := runner.callsFor("new-window")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "-P")
	assert.Contains(t, calls[0], "#{session_name}:#{window_name}")
	assert.Contains(t, calls[0], "-c")
	assert.Contains(t, calls[0], "/work/wt")
}

func TestWindowExists(t *testing.T) {
	client, _ := newTestClient(t, map[string][]response{
		"list-windows": {
			{output: "fix-login\nreview\n"},
			{output: "fix-login\nreview\n"},
		},
	})

	ok, err := client.WindowExists("kiln-api", "review")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.WindowExists("kiln-api", "gone")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListWindows_MissingSessionIsEmpty(t *testing.T) {
	client, _ := newTestClient(t, map[string][]response{
		"list-windows": {{err: tmuxErr("can't find session: kiln-api")}},
	})

	windows, err := client.ListWindows("kiln-api")

	require.NoError(t, err)
	assert.Empty(t, windows)
}

func TestSplitPane_ReturnsPaneID(t *testing.T) {
	client, runner := newTestClient(t, map[string][]response{
		"split-window": {{output: "%7\n"}},
	})

	paneID, err := client.SplitPane("kiln-api:fix-login", "/work/wt")

	require.NoError(t, err)
	assert.Equal(t, "%7", paneID)
	assert.Contains(t, runner.callsFor("split-window")[0], "#{pane_id}")
}

func TestPaneExists(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		client, _ := newTestClient(t, map[string][]response{
			"display-message": {{output: "%7\n"}},
		})
		ok, err := client.PaneExists("%7")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("gone", func(t *testing.T) {
		client, _ := newTestClient(t, map[string][]response{
			"display-message": {{err: tmuxErr("can't find pane: %7")}},
		})
		ok, err := client.PaneExists("%7")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	// A window handle resolves to its active pane, whose "%id" never
	// equals the handle itself. Resolution succeeding means alive.
	t.Run("window handle resolves to its active pane", func(t *testing.T) {
		client, _ := newTestClient(t, map[string][]response{
			"display-message": {{output: "%3\n"}},
		})
		ok, err := client.PaneExists("kiln-api:fix-login")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("window handle gone", func(t *testing.T) {
		client, _ := newTestClient(t, map[string][]response{
			"display-message": {{err: tmuxErr("can't find window: fix-login")}},
		})
		ok, err := client.PaneExists("kiln-api:fix-login")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestPanePID(t *testing.T) {
	client, _ := newTestClient(t, map[string][]response{
		"display-message": {{output: "43210\n"}},
	})

	pid, err := client.PanePID("%7")

	require.NoError(t, err)
	assert.Equal(t, 43210, pid)
}

func TestPanePID_GarbledOutput(t *testing.T) {
	client, _ := newTestClient(t, map[string][]response{
		"display-message": {{output: "not-a-pid\n"}},
	})

	_, err := client.PanePID("%7")

	assert.Error(t, err)
}

func TestSendText_SendsLiteralTextThenEnter(t *testing.T) {
	client, runner := newTestClient(t, map[string][]response{})

	require.NoError(t, client.SendText("%7", "fix the login bug; be careful"))

	calls := runner.callsFor("send-keys")
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0], "-l", "text must be sent literally")
	assert.Contains(t, calls[0], "fix the login bug; be careful")
	assert.Equal(t, "Enter", calls[1][len(calls[1])-1])
}

func TestCapture_RequestsHistoryLines(t *testing.T) {
	client, runner := newTestClient(t, map[string][]response{
		"capture-pane": {{output: "some output\n"}},
	})

	out, err := client.Capture("%7", 50)

	require.NoError(t, err)
	assert.Equal(t, "some output\n", out)

	call := runner.callsFor("capture-pane")[0]
	assert.Contains(t, strings.Join(call, " "), "-S -50")
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(errors.New("connect failed: connection refused")))
	assert.True(t, isTransient(errors.New("lost server")))
	assert.False(t, isTransient(errors.New("duplicate session: x")))
	assert.False(t, isTransient(errors.New("no server running")))
}
