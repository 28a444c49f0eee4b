package simbricks

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportErrs(t *testing.T) {
	assert.NoError(t, ReportErrs(nil))
	assert.NoError(t, ReportErrs([]error{nil, nil}))

	other := errors.New("second")
	err := ReportErrs([]error{ErrNoApp, nil, other})
	require.Error(t, err)
	assert.Equal(t, ErrNoApp.Error()+",second", err.Error())
	assert.ErrorIs(t, err, ErrNoApp)
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, ErrUnknownKind)
}

func TestCheckDirectories(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	ok, err := CheckDirectories([]string{dir, ""})
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, err = CheckDirectories([]string{dir, file, filepath.Join(dir, "absent")})
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
	assert.Contains(t, err.Error(), "not reachable")
}

func TestCheckFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(existing, []byte("name: x\n"), 0o644))
	fresh := filepath.Join(dir, "out.yaml")

	ok, err := CheckReadableFiles([]string{existing})
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, _ = CheckReadableFiles([]string{fresh})
	assert.False(t, ok)

	ok, err = CheckOutputFiles([]string{fresh, ""})
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, _ = CheckOutputFiles([]string{filepath.Join(dir, "nodir", "out.yaml")})
	assert.False(t, ok)
}
