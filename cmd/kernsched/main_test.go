package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/joeycumines/go-kernsched/scenario"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScenario = `
name: demo
time_slice: 0
semaphores: {gate: 0}
threads:
  - name: waiter
    priority: 20
    start: true
    steps:
      - down: gate
      - log: released
  - name: releaser
    priority: 10
    start: true
    steps:
      - up: gate
      - log: done
`

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun(t *testing.T) {
	path := writeFile(t, `demo.yaml`, testScenario)
	trace := filepath.Join(t.TempDir(), `trace.jsonl`)

	stdout, stderr, err := execute(t, `run`, `--log-level`, `info`, `--trace`, trace, `--metrics`, `--check`, `--hz`, `1000`, path)
	require.NoError(t, err)
	assert.Contains(t, stdout, `scenario "demo": ok after `)
	assert.Contains(t, stdout, `threads      4 created, 2 exited`)
	assert.Contains(t, stdout, `ready wait   p50 `)
	assert.Contains(t, stderr, `"msg":"scenario finished"`)
	assert.Contains(t, stderr, `"boot_id":"`)

	f, err := os.Open(trace)
	require.NoError(t, err)
	defer f.Close()
	var logs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec scenario.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		if rec.Kind == scenario.KindLog {
			logs = append(logs, rec.Thread+`: `+rec.Detail)
		}
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{`waiter: released`, `releaser: done`}, logs)
}

func TestRun_traceToStdout(t *testing.T) {
	path := writeFile(t, `demo.yaml`, testScenario)
	stdout, stderr, err := execute(t, `run`, `--trace`, `-`, path)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"kind":"log","detail":"released"`)
	assert.NotContains(t, stdout, `scenario "demo"`)
	assert.Contains(t, stderr, `scenario "demo": ok`)
}

func TestRun_timeout(t *testing.T) {
	path := writeFile(t, `stuck.yaml`, `
name: stuck
semaphores: {never: 0}
threads: [{name: a, start: true, steps: [{down: never}]}]
`)
	stdout, _, err := execute(t, `run`, `--timeout`, `20ms`, path)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, stdout, `scenario "stuck": timed out after `)
}

func TestRun_flagOverridesInvalid(t *testing.T) {
	path := writeFile(t, `demo.yaml`, testScenario)
	_, _, err := execute(t, `run`, `--time-slice`, `-1`, path)
	assert.ErrorIs(t, err, scenario.ErrInvalid)
}

func TestValidate(t *testing.T) {
	path := writeFile(t, `demo.yaml`, testScenario)
	stdout, _, err := execute(t, `validate`, path)
	require.NoError(t, err)
	assert.Equal(t, path+": ok (2 threads, 1 semaphores)\n", stdout)

	path = writeFile(t, `bad.yaml`, `threads: [{name: a, start: true, steps: [{up: missing}]}]`)
	_, stderr, err := execute(t, `validate`, path)
	assert.EqualError(t, err, path+`: 1 problem(s)`)
	assert.Contains(t, stderr, `threads[0].steps[0]: unknown semaphore "missing"`)

	_, _, err = execute(t, `validate`)
	assert.Error(t, err)
}

func TestLevelFlag(t *testing.T) {
	for input, want := range map[string]logiface.Level{
		`debug`:    logiface.LevelDebug,
		`INFO`:     logiface.LevelInformational,
		`warn`:     logiface.LevelWarning,
		`error`:    logiface.LevelError,
		`emerg`:    logiface.LevelEmergency,
		`disabled`: logiface.LevelDisabled,
	} {
		var x levelFlag
		require.NoError(t, x.Set(input), input)
		assert.Equal(t, want, logiface.Level(x), input)
	}
	var x levelFlag
	assert.EqualError(t, x.Set(`loud`), `unknown log level "loud"`)
	assert.Equal(t, `level`, x.Type())

	_, _, err := execute(t, `--log-level`, `loud`, `validate`, `x.yaml`)
	assert.Error(t, err)
}
