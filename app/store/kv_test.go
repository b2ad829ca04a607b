package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKV_Backends(t *testing.T) {
	fileKV, err := NewFileKV(filepath.Join(t.TempDir(), "slots"))
	require.NoError(t, err)
	sqliteKV, err := NewSQLiteKV(filepath.Join(t.TempDir(), "jobsync.db"))
	require.NoError(t, err)
	defer sqliteKV.Close()

	backends := map[string]KV{"memory": NewMemoryKV(), "file": fileKV, "sqlite": sqliteKV}
	for name, kv := range backends {
		t.Run(name, func(t *testing.T) {
			_, ok, err := kv.Get(EmailKey)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Set(EmailKey, "a@example.com"))
			v, ok, err := kv.Get(EmailKey)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "a@example.com", v)

			require.NoError(t, kv.Set(EmailKey, "b@example.com"))
			v, _, err = kv.Get(EmailKey)
			require.NoError(t, err)
			assert.Equal(t, "b@example.com", v)

			require.NoError(t, kv.Set(PlanKey, ""))
			v, ok, err = kv.Get(PlanKey)
			require.NoError(t, err)
			assert.True(t, ok, "empty value is still set")
			assert.Equal(t, "", v)

			require.NoError(t, kv.Delete(EmailKey))
			require.NoError(t, kv.Delete(EmailKey), "second delete is no-op")
			_, ok, err = kv.Get(EmailKey)
			require.NoError(t, err)
			assert.False(t, ok)

			assert.Error(t, kv.Set("../escape", "x"))
		})
	}
}

func TestFileKV_NoTempLeftovers(t *testing.T) {
	loc := filepath.Join(t.TempDir(), "slots")
	kv, err := NewFileKV(loc)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, kv.Set(ProjectsKey, `[]`))
	}
	entries, err := os.ReadDir(loc)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ProjectsKey+".json", entries[0].Name())
	assert.Equal(t, "file:"+loc, kv.String())
}

func TestFileKV_Reopen(t *testing.T) {
	loc := t.TempDir()
	kv, err := NewFileKV(loc)
	require.NoError(t, err)
	require.NoError(t, kv.Set(PlanKey, "pro"))

	kv2, err := NewFileKV(loc)
	require.NoError(t, err)
	v, ok, err := kv2.Get(PlanKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "pro", v)
}

func TestSQLiteKV(t *testing.T) {
	t.Run("reopen keeps slots", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")
		kv, err := NewSQLiteKV(dbPath)
		require.NoError(t, err)
		require.NoError(t, kv.Set(PlanKey, "pro"))
		require.NoError(t, kv.Close())

		kv, err = NewSQLiteKV(dbPath)
		require.NoError(t, err)
		defer kv.Close()
		v, ok, err := kv.Get(PlanKey)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "pro", v)

		var count int
		require.NoError(t, kv.db.Get(&count, "SELECT COUNT(*) FROM slots"))
		assert.Equal(t, 1, count)
	})

	t.Run("invalid path", func(t *testing.T) {
		kv, err := NewSQLiteKV("/invalid/path/that/does/not/exist/test.db")
		assert.Error(t, err)
		assert.Nil(t, kv)
	})
}
