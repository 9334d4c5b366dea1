package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveLog_CreateAndLast(t *testing.T) {
	s := newTestStore(t)

	last, err := s.LastSaveLog("services.xlsx")
	require.NoError(t, err)
	require.Nil(t, last)

	_, err = s.CreateSaveLog(SaveLogEntry{FileName: "services.xlsx", Rows: 3, Variant: "legacy", Shape: "positional", Attempts: 1, Status: SaveStatusOK})
	require.NoError(t, err)
	id, err := s.CreateSaveLog(SaveLogEntry{FileName: "services.xlsx", Rows: 3, Variant: "legacy", Shape: "keyed", Attempts: 3, Status: SaveStatusFailed, ErrorMessage: "disk full"})
	require.NoError(t, err)
	_, err = s.CreateSaveLog(SaveLogEntry{FileName: "other.xlsx", Rows: 1, Status: SaveStatusOK})
	require.NoError(t, err)

	last, err = s.LastSaveLog("services.xlsx")
	require.NoError(t, err)
	require.NotNil(t, last)
	require.Equal(t, id, last.ID)
	require.Equal(t, SaveStatusFailed, last.Status)
	require.Equal(t, "disk full", last.ErrorMessage)
	require.Equal(t, 3, last.Attempts)
	require.Equal(t, "keyed", last.Shape)
	require.False(t, last.CreatedAt.IsZero())
}

func TestSaveLog_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"a.xlsx", "b.xlsx", "c.xlsx"} {
		_, err := s.CreateSaveLog(SaveLogEntry{FileName: name, Status: SaveStatusOK, Attempts: 1})
		require.NoError(t, err)
	}

	logs, err := s.ListSaveLogs(2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, "c.xlsx", logs[0].FileName)
	require.Equal(t, "b.xlsx", logs[1].FileName)

	all, err := s.ListSaveLogs(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}
