package artifact

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunDir_SortsByCreation(t *testing.T) {
	w := NewWriter()
	project := t.TempDir()

	var names []string
	for i := 0; i < 5; i++ {
		dir, err := w.NewRunDir(project)
		require.NoError(t, err)
		assert.DirExists(t, dir)
		assert.Equal(t, filepath.Join(project, "draft"), filepath.Dir(dir))

		name := filepath.Base(dir)
		_, err = ulid.ParseStrict(name)
		require.NoError(t, err)
		names = append(names, name)
	}

	assert.True(t, sort.StringsAreSorted(names), "run dirs must sort in creation order: %v", names)
}

func TestWriteJSON(t *testing.T) {
	w := NewWriter()
	dir := t.TempDir()

	doc := map[string]interface{}{"prompt": "walk", "length": 16}
	path, err := w.WriteJSON(dir, ResolvedFile, doc)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ResolvedFile), path)

	var got map[string]interface{}
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, "walk", got["prompt"])
	assert.EqualValues(t, 16, got["length"])

	_, err = w.WriteJSON(dir, ResolvedFile, map[string]string{"prompt": "run"})
	require.NoError(t, err)
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, "run", got["prompt"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files may be left behind")
}

func TestWriteJSON_Unmarshalable(t *testing.T) {
	_, err := NewWriter().WriteJSON(t.TempDir(), RawFile, make(chan int))
	assert.Error(t, err)
}
