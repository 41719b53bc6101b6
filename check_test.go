package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/leeineian/gemboard/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCheckCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"check"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckConsistentLedger(t *testing.T) {
	dir := t.TempDir()
	l := ledger.New(ledger.NewFileStore(dir))
	l.Add(1, ledger.Standard("💎"))
	l.Add(2, ledger.Standard("👍"))

	out, err := runCheckCmd(t, "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "is consistent (2 users)")
}

func TestCheckReportsAndRepairs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reactions.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"1": {"total": 5, "emojis": {"💎": 2}}}`), 0644))

	out, err := runCheckCmd(t, "--data-dir", dir)
	require.Error(t, err)
	assert.Contains(t, out, "total 5 does not match counted 2")

	out, err = runCheckCmd(t, "--data-dir", dir, "--repair")
	require.NoError(t, err)
	assert.Contains(t, out, "Rewrote")

	l, err := ledger.Open(ledger.NewFileStore(dir))
	require.NoError(t, err)
	e, ok := l.Snapshot(1)
	require.True(t, ok)
	assert.Equal(t, 2, e.Total)
}
