package aria2

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igpull/pkg/batch"
	"igpull/pkg/config"
	"igpull/pkg/logger"
)

func TestArgs(t *testing.T) {
	r := New(config.DefaultConfig().Download, false, nil)

	args := r.Args("/tmp/.natgeo.aria2.txt", "/out/natgeo")

	assert.Equal(t, []string{
		"--input-file=/tmp/.natgeo.aria2.txt",
		"--dir=/out/natgeo",
		"--max-connection-per-server=4",
		"--max-concurrent-downloads=16",
		"--continue=true",
		"--auto-file-renaming=false",
		"--allow-overwrite=false",
		"--conditional-get=true",
		"--summary-interval=0",
		"--console-log-level=warn",
	}, args)

	r.Quiet = true
	assert.Equal(t, "--quiet=true", r.Args("in", "out")[9])
}

func TestRunMissingBinary(t *testing.T) {
	r := &Runner{Binary: filepath.Join(t.TempDir(), "no-such-aria2c"), log: logger.NewNopLogger()}

	assert.False(t, r.Available())
	err := r.Run(context.Background(), "in", t.TempDir())
	assert.ErrorIs(t, err, batch.ErrTransferUnavailable)
}

// fakeBinary writes a shell script standing in for aria2c
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "aria2c")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func TestRunNonZeroExit(t *testing.T) {
	log := logger.NewTestLogger()
	r := &Runner{Binary: fakeBinary(t, "echo 'errorCode=3 resource not found' >&2\nexit 3"), log: log}

	err := r.Run(context.Background(), "in", t.TempDir())

	require.Error(t, err)
	assert.NotErrorIs(t, err, batch.ErrTransferUnavailable)
	require.Len(t, log.GetMessagesByLevel("WARN"), 1)
	assert.Equal(t, "errorCode=3 resource not found", log.GetMessagesByLevel("WARN")[0].Fields["output"])
}

func TestRunFeedsQueue(t *testing.T) {
	dir := t.TempDir()
	// create every out= file named in the input file
	script := `for arg in "$@"; do
  case "$arg" in
    --input-file=*) input="${arg#--input-file=}" ;;
    --dir=*) dir="${arg#--dir=}" ;;
  esac
done
grep 'out=' "$input" | sed 's/.*out=//' | while read -r name; do
  echo data > "$dir/$name"
done`
	r := &Runner{Binary: fakeBinary(t, script), log: logger.NewNopLogger()}

	q := batch.New(dir, r, nil)
	q.Enqueue("https://cdn.example/1.jpg", "u_AAA.jpg", "AAA")
	q.Enqueue("https://cdn.example/2.jpg", "u_BBB.jpg", "BBB")

	result, err := q.Flush(context.Background(), "u")
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA", "BBB"}, result.Succeeded)
	assert.FileExists(t, filepath.Join(dir, "u_BBB.jpg"))
	assert.NoFileExists(t, q.RecoveryPath("u"))
}
