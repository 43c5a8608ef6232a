package eventlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterWriteEventRotatesAndPersists(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	err = w.WriteEvent(Event{
		SessionID: "session:abc",
		Kind:      "approval.resolved",
		Detail:    map[string]any{"status": "approved"},
	})
	require.NoError(t, err)

	current := w.CurrentLogFile()
	require.NotEmpty(t, current)
	require.Equal(t, filepath.Dir(current), dir)

	files, err := ListLogFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestWriterCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
