package storage_test

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/rosmirror/internal/events"
	"github.com/TheMichaelB/rosmirror/internal/storage"
)

func newLocalStore(t *testing.T) *storage.LocalStore {
	t.Helper()
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	store, err := storage.NewLocalStore(t.TempDir(), logger)
	require.NoError(t, err)
	return store
}

func TestAtomicWrites(t *testing.T) {
	store := newLocalStore(t)

	t.Run("concurrent writes different files", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 10)

		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				path := fmt.Sprintf("v7/7.20.4/concurrent-%d.npk", n)
				if err := store.Write(path, []byte(fmt.Sprintf("content-%d", n))); err != nil {
					errs <- err
				}
			}(i)
		}

		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("Write error: %v", err)
		}

		for i := 0; i < 10; i++ {
			data, err := store.Read(fmt.Sprintf("v7/7.20.4/concurrent-%d.npk", i))
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("content-%d", i), string(data))
		}
	})

	t.Run("write failure leaves no temp file", func(t *testing.T) {
		require.NoError(t, store.EnsureDir("blocker"))

		err := store.Write("blocker", []byte("data"))
		assert.Error(t, err)

		files, err := store.ListDir("")
		require.NoError(t, err)
		for _, file := range files {
			assert.NotContains(t, file.Name, ".tmp.", "found temp file")
		}
	})
}

func TestStreamOperations(t *testing.T) {
	store := newLocalStore(t)

	t.Run("write and read stream", func(t *testing.T) {
		content := strings.Repeat("npk", 4096)

		n, err := store.WriteStream("v6/6.49.7/all_packages-arm-6.49.7.zip", strings.NewReader(content))
		require.NoError(t, err)
		assert.Equal(t, int64(len(content)), n)

		data, err := store.Read("v6/6.49.7/all_packages-arm-6.49.7.zip")
		require.NoError(t, err)
		assert.Equal(t, content, string(data))

		info, err := store.Stat("v6/6.49.7/all_packages-arm-6.49.7.zip")
		require.NoError(t, err)
		assert.Equal(t, int64(len(content)), info.Size)
	})

	t.Run("failed stream leaves no partial file", func(t *testing.T) {
		_, err := store.WriteStream("partial.npk", &failingReader{failAt: 100})
		assert.Error(t, err)

		exists, _ := store.Exists("partial.npk")
		assert.False(t, exists)

		files, err := store.ListDir("")
		require.NoError(t, err)
		for _, file := range files {
			assert.NotContains(t, file.Name, ".tmp.")
		}
	})
}

func TestRemoveAll(t *testing.T) {
	store := newLocalStore(t)

	require.NoError(t, store.Write("v7/7.1/a.npk", make([]byte, 100)))
	require.NoError(t, store.Write("v7/7.1/b.npk", make([]byte, 50)))

	freed, err := store.RemoveAll("v7/7.1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), freed)

	exists, _ := store.Exists("v7/7.1")
	assert.False(t, exists)

	_, err = store.RemoveAll("")
	assert.ErrorIs(t, err, storage.ErrInvalidPath)
}

func TestDelete(t *testing.T) {
	store := newLocalStore(t)

	require.NoError(t, store.Write("LATEST.6", []byte("6.49.7 0\n")))
	require.NoError(t, store.Delete("LATEST.6"))
	assert.NoError(t, store.Delete("LATEST.6"), "deleting a missing file is not an error")
}

func TestPathSanitization(t *testing.T) {
	store := newLocalStore(t)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"normal path", "v7/7.20.4/routeros-7.20.4-arm.npk", false},
		{"path with dots", "v7/./7.20.4/CHANGELOG", false},
		{"parent directory traversal", "../etc/passwd", true},
		{"embedded parent traversal", "v7/../../etc/passwd", true},
		{"absolute path", "/etc/passwd", false},
		{"null bytes", "LATEST\x00.6", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Write(tt.path, []byte("test"))

			if tt.wantErr {
				assert.ErrorIs(t, err, storage.ErrInvalidPath)
				return
			}

			require.NoError(t, err)
			exists, _ := store.Exists(tt.path)
			assert.True(t, exists)

			abs, err := store.Path(tt.path)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(abs, store.BaseDir()))
		})
	}
}

// failingReader simulates IO errors during stream writing
type failingReader struct {
	read   int
	failAt int
}

func (r *failingReader) Read(p []byte) (n int, err error) {
	if r.read >= r.failAt {
		return 0, fmt.Errorf("simulated read error")
	}

	toRead := len(p)
	if r.read+toRead > r.failAt {
		toRead = r.failAt - r.read
	}

	for i := 0; i < toRead; i++ {
		p[i] = 'x'
	}

	r.read += toRead
	return toRead, nil
}

func TestAtomicFile(t *testing.T) {
	store := newLocalStore(t)

	t.Run("commit", func(t *testing.T) {
		f, err := store.Create("v7/7.20.4/routeros-7.20.4-arm.npk")
		require.NoError(t, err)
		_, err = f.Write([]byte("npk"))
		require.NoError(t, err)

		exists, _ := store.Exists("v7/7.20.4/routeros-7.20.4-arm.npk")
		assert.False(t, exists, "destination visible before commit")

		require.NoError(t, f.Commit())
		data, err := store.Read("v7/7.20.4/routeros-7.20.4-arm.npk")
		require.NoError(t, err)
		assert.Equal(t, "npk", string(data))
		f.Abort()
		exists, _ = store.Exists("v7/7.20.4/routeros-7.20.4-arm.npk")
		assert.True(t, exists, "abort after commit is a no-op")
	})

	t.Run("abort", func(t *testing.T) {
		f, err := store.Create("v7/7.20.4/routeros-7.20.4-x86.npk")
		require.NoError(t, err)
		_, _ = f.Write([]byte("partial"))
		f.Abort()

		files, err := store.ListDir("v7/7.20.4")
		require.NoError(t, err)
		for _, file := range files {
			assert.NotContains(t, file.Name, "x86")
		}
	})
}
