//go:build unix

package invoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/scflocal/internal/history"
	"github.com/mattjoyce/scflocal/internal/invoke/mocks"
	"github.com/mattjoyce/scflocal/internal/template"
)

const runnerTemplate = `
Resources:
  default:
    Type: TencentCloud::Serverless::Namespace
    hello:
      Type: TencentCloud::Serverless::Function
      Properties:
        Runtime: Python3.6
        Handler: index.main_handler
        Timeout: 3
        Environment:
          Variables:
            EXIT_WITH: "%d"
`

// fakeInterpreterPath puts a python3 stand-in on PATH that exits with
// $EXIT_WITH.
func fakeInterpreterPath(t *testing.T) string {
	t.Helper()
	bin := t.TempDir()
	script := "#!/bin/sh\nexit \"${EXIT_WITH:-0}\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(bin, "python3"), []byte(script), 0o755))
	t.Setenv("PATH", bin)
	return bin
}

func writeTemplate(t *testing.T, exitWith int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "template.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(runnerTemplate, exitWith)), 0o600))
	return path
}

func newTestRunner(t *testing.T, hist HistoryWriter, bin string) *Runner {
	t.Helper()
	planner := &Planner{BootstrapDir: t.TempDir(), Environ: fixedEnviron("PATH=" + bin)}
	r := NewRunner(planner, NewSupervisor(SuppressWhenDebugging), hist)
	r.newID = func() string { return "inv-1" }
	return r
}

func TestInvokeRecordsSuccess(t *testing.T) {
	bin := fakeInterpreterPath(t)
	ctrl := gomock.NewController(t)
	hist := mocks.NewMockHistoryWriter(ctrl)

	var got *history.Record
	hist.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, rec *history.Record) error {
			got = rec
			return nil
		})

	path := writeTemplate(t, 0)
	res, err := newTestRunner(t, hist, bin).Invoke(context.Background(), Options{
		TemplatePath: path,
		Event:        `{}`,
		Stdout:       io.Discard,
		Stderr:       io.Discard,
	})
	require.NoError(t, err)

	assert.Equal(t, "inv-1", res.ID)
	assert.Equal(t, "default", res.Namespace)
	assert.Equal(t, "hello", res.Function)
	assert.Equal(t, "python3", res.Plan.Cmd)
	assert.Equal(t, StateCompleted, res.Outcome.State)

	require.NotNil(t, got)
	assert.Equal(t, "inv-1", got.ID)
	assert.Equal(t, history.StatusSucceeded, got.Status)
	assert.Equal(t, "python3.6", got.Runtime)
	assert.Equal(t, path, got.TemplatePath)
	assert.NotEmpty(t, got.TemplateHash)
	assert.Equal(t, res.Plan.Fingerprint(), got.PlanHash)
	assert.False(t, got.Debug)
	assert.Empty(t, got.LastError)
	assert.False(t, got.FinishedAt.Before(got.StartedAt))
}

func TestInvokeRecordsFailureStatus(t *testing.T) {
	tests := []struct {
		name       string
		exitWith   int
		wantStatus history.Status
		wantExit   int
	}{
		{name: "generic failure", exitWith: 3, wantStatus: history.StatusFailed, wantExit: 3},
		{name: "runtime mismatch", exitWith: ExitRuntimeMismatch, wantStatus: history.StatusRuntimeMismatch, wantExit: ExitRuntimeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := fakeInterpreterPath(t)
			ctrl := gomock.NewController(t)
			hist := mocks.NewMockHistoryWriter(ctrl)

			var got *history.Record
			hist.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, rec *history.Record) error {
					got = rec
					return nil
				})

			_, err := newTestRunner(t, hist, bin).Invoke(context.Background(), Options{
				TemplatePath: writeTemplate(t, tt.exitWith),
				Stdout:       io.Discard,
				Stderr:       io.Discard,
			})
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, ExitStatus(err))

			require.NotNil(t, got)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.exitWith, got.ExitCode)
			assert.Equal(t, err.Error(), got.LastError)
		})
	}
}

func TestInvokeSpawnFailureIsRecorded(t *testing.T) {
	empty := t.TempDir()
	t.Setenv("PATH", empty)

	ctrl := gomock.NewController(t)
	hist := mocks.NewMockHistoryWriter(ctrl)
	hist.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, rec *history.Record) error {
			assert.Equal(t, history.StatusSpawnFailed, rec.Status)
			return nil
		})

	res, err := newTestRunner(t, hist, empty).Invoke(context.Background(), Options{
		TemplatePath: writeTemplate(t, 0),
	})
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, "python3", spawnErr.Command)
	assert.Equal(t, StateSpawnFailed, res.Outcome.State)
}

func TestInvokeHistoryFailureDoesNotFailInvocation(t *testing.T) {
	bin := fakeInterpreterPath(t)
	ctrl := gomock.NewController(t)
	hist := mocks.NewMockHistoryWriter(ctrl)
	hist.EXPECT().Record(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	_, err := newTestRunner(t, hist, bin).Invoke(context.Background(), Options{
		TemplatePath: writeTemplate(t, 0),
		Stdout:       io.Discard,
	})
	assert.NoError(t, err)
}

func TestInvokeSelectionErrorsSpawnNothing(t *testing.T) {
	bin := fakeInterpreterPath(t)
	ctrl := gomock.NewController(t)
	// No EXPECT: any Record call fails the test.
	hist := mocks.NewMockHistoryWriter(ctrl)
	r := newTestRunner(t, hist, bin)

	_, err := r.Invoke(context.Background(), Options{TemplatePath: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template file not found")

	res, err := r.Invoke(context.Background(), Options{
		TemplatePath: writeTemplate(t, 0),
		Selector:     template.Selector{Function: "nope"},
	})
	require.ErrorIs(t, err, template.ErrInvalidSelection)
	assert.Nil(t, res.Outcome)

	_, err = r.Invoke(context.Background(), Options{
		TemplatePath: writeTemplate(t, 0),
		DebugArgs:    "--log-to-stderr",
	})
	assert.Error(t, err)
}

func TestInvokeWithoutHistory(t *testing.T) {
	bin := fakeInterpreterPath(t)
	res, err := newTestRunner(t, nil, bin).Invoke(context.Background(), Options{
		TemplatePath: writeTemplate(t, 0),
		Stdout:       io.Discard,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Outcome.ExitCode)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want history.Status
	}{
		{nil, history.StatusSucceeded},
		{ErrCancelled, history.StatusCancelled},
		{&SpawnError{Command: "node", Err: os.ErrNotExist}, history.StatusSpawnFailed},
		{&TimeoutError{Function: "f"}, history.StatusTimedOut},
		{&RuntimeMismatchError{}, history.StatusRuntimeMismatch},
		{&ExitError{Code: 2}, history.StatusFailed},
		{fmt.Errorf("wrapped: %w", &TimeoutError{}), history.StatusTimedOut},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.err), "%v", tt.err)
	}
}
