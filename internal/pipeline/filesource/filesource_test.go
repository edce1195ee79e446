package filesource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskline/duskline/internal/model"
)

func writeTestFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docs.ndjson")
	var content string
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPollReadsAllDocsThenReportsEOF(t *testing.T) {
	path := writeTestFile(t, `{"a":1}`, `{"a":2}`)
	src, err := New(path, nil)
	require.NoError(t, err)
	defer src.Finalize(context.Background())

	batch, ok, err := src.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, batch.Docs, 2)
	assert.Equal(t, float64(1), batch.Docs[0].JSON["a"])
	assert.True(t, batch.Flush)
	assert.True(t, src.EOF())

	batch, ok, err = src.Poll(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, batch)
}

func TestPollResumesFromCheckpointOffset(t *testing.T) {
	path := writeTestFile(t, `{"a":1}`, `{"a":2}`)
	first, err := New(path, nil)
	require.NoError(t, err)
	batch, _, err := first.Poll(context.Background())
	require.NoError(t, err)
	require.NoError(t, first.Finalize(context.Background()))

	checkpoint, err := model.Checkpoint{}.Apply(batch.Delta)
	require.NoError(t, err)

	resumed, err := New(path, checkpoint)
	require.NoError(t, err)
	defer resumed.Finalize(context.Background())
	assert.True(t, resumed.EOF() == false)

	batch2, ok, err := resumed.Poll(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	assert.Nil(t, batch2)
}

func TestPollSurfacesMalformedLineAsRawDoc(t *testing.T) {
	path := writeTestFile(t, `not json`)
	src, err := New(path, nil)
	require.NoError(t, err)
	defer src.Finalize(context.Background())

	batch, ok, err := src.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, batch.Docs, 1)
	assert.Nil(t, batch.Docs[0].JSON)
	assert.Equal(t, []byte("not json"), batch.Docs[0].Raw)
}

func TestNewRejectsMissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.ndjson"), nil)
	require.Error(t, err)
}

func TestSuggestTruncateIsNoOp(t *testing.T) {
	path := writeTestFile(t, `{"a":1}`)
	src, err := New(path, nil)
	require.NoError(t, err)
	defer src.Finalize(context.Background())
	assert.NoError(t, src.SuggestTruncate(context.Background(), model.Position("0")))
}
