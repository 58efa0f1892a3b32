package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domus-magna/chinaxiv-english-sub001/internal/translator"
)

func TestWriter_Approved(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(filepath.Join(dir, "approved"), filepath.Join(dir, "flagged"))

	path, err := w.WriteApproved("job1", &translator.TranslatedPaper{
		PaperID: "p1", Title: "T", Abstract: "A",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "approved", "job1.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "p1", rec.Paper.PaperID)
	assert.Empty(t, rec.QAReasons)
}

func TestWriter_FlaggedKeepsReasons(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(filepath.Join(dir, "approved"), filepath.Join(dir, "flagged"))

	reasons := []string{"han character ratio 0.310 exceeds 0.050"}
	path, err := w.WriteFlagged("job2", &translator.TranslatedPaper{PaperID: "p2"}, reasons)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "flagged", "job2.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, reasons, rec.QAReasons)
}

func TestWriter_OverwritesByJobID(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(filepath.Join(dir, "approved"), filepath.Join(dir, "flagged"))

	_, err := w.WriteApproved("job1", &translator.TranslatedPaper{PaperID: "p1", Title: "old"})
	require.NoError(t, err)
	path, err := w.WriteApproved("job1", &translator.TranslatedPaper{PaperID: "p1", Title: "new"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "new", rec.Paper.Title)
}
