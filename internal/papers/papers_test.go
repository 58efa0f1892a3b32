package papers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobID_Deterministic(t *testing.T) {
	a := JobID("chinaxiv-202101.00001")
	b := JobID("chinaxiv-202101.00001")
	c := JobID("chinaxiv-202101.00002")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 24)
}

func TestLoadRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	content := `{"id":"p1","title":"题目一","abstract":"摘要一"}

{"id":"p2","title":"题目二","abstract":"摘要二","subjects":["cs"]}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := LoadRecords(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, "题目二", got[1].Title)
	assert.Equal(t, []string{"cs"}, got[1].Subjects)
}

func TestLoadRecords_RejectsMissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"title":"no id"}`+"\n"), 0o644))

	_, err := LoadRecords(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no id")
}
