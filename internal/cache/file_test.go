package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bankrot-cli/internal/model"
)

func TestFileBackend_MissingFileIsEmpty(t *testing.T) {
	b := NewFileBackend(filepath.Join(t.TempDir(), "lots.json"))
	entries, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "lots.json")

	c, err := Open(ctx, NewFileBackend(path))
	require.NoError(t, err)
	lot := entry("L1", "7707083893", "А40-123/25", model.LotStatusVerified)
	lot.Lot.DebtorRawName = "ООО Ромашка"
	require.NoError(t, c.Put(lot))
	require.NoError(t, c.Flush(ctx))

	reopened, err := Open(ctx, NewFileBackend(path))
	require.NoError(t, err)
	got, ok := reopened.Get("L1")
	require.True(t, ok)
	assert.Equal(t, "ООО Ромашка", got.Lot.DebtorRawName)
	assert.Equal(t, model.LotStatusVerified, got.Lot.Status)
}

func TestFileBackend_CrashBeforeRenameKeepsPriorState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "lots.json")

	b := NewFileBackend(path)
	c, err := Open(ctx, b)
	require.NoError(t, err)
	require.NoError(t, c.Put(entry("L1", "", "А40-1/25", model.LotStatusVerified)))
	require.NoError(t, c.Flush(ctx))

	var tempSeen string
	b.rename = func(oldpath, _ string) error {
		info, err := os.Stat(oldpath)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
		tempSeen = oldpath
		return errors.New("killed before rename")
	}
	require.NoError(t, c.Put(entry("L2", "", "А40-2/25", model.LotStatusError)))
	err = c.Flush(ctx)
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)

	require.NotEmpty(t, tempSeen)
	_, statErr := os.Stat(tempSeen)
	assert.True(t, os.IsNotExist(statErr), "temp file must not be left behind")

	reloaded, err := NewFileBackend(path).Load(ctx)
	require.NoError(t, err)
	assert.Len(t, reloaded, 1)
	assert.Contains(t, reloaded, "L1")
}

func TestFileBackend_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lots.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Open(context.Background(), NewFileBackend(path))
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Contains(t, err.Error(), "decode file")
}

func TestFileBackend_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lots.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	entries, err := NewFileBackend(path).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
