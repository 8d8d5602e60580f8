package artifact

import (
	"context"
	"errors"
	"testing"

	"github.com/graceinfra/shipyard/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fs,
	}
}

func payload(content string) []File {
	return []File{{Path: "dist/app", Data: []byte(content)}}
}

func TestPublishAndFetch(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Publish(ctx, "linux", "app-linux", payload("elf")))

			t.Run("producer sees its own write immediately", func(t *testing.T) {
				a, err := s.Fetch(ctx, "linux", "app-linux")
				require.NoError(t, err)
				assert.Equal(t, "linux", a.Producer)
				require.Len(t, a.Files, 1)
				assert.Equal(t, "elf", string(a.Files[0].Data))
			})

			t.Run("other jobs wait for the seal", func(t *testing.T) {
				_, err := s.Fetch(ctx, "release", "app-linux")
				var notReady *NotReadyError
				require.ErrorAs(t, err, &notReady)
				assert.Equal(t, "linux", notReady.Producer)
				assert.Equal(t, types.JobRunning, notReady.State)
			})

			s.Seal("linux", types.JobSucceeded)

			t.Run("visible after success", func(t *testing.T) {
				a, err := s.Fetch(ctx, "release", "app-linux")
				require.NoError(t, err)
				assert.Equal(t, int64(3), a.Size())
			})

			assert.Equal(t, []string{"app-linux"}, s.Produced("linux"))
		})
	}
}

func TestFetchFromFailedProducer(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Publish(ctx, "windows", "app-windows", payload("pe")))
			s.Seal("windows", types.JobFailed)

			_, err := s.Fetch(ctx, "release", "app-windows")
			var notReady *NotReadyError
			require.ErrorAs(t, err, &notReady)
			assert.Equal(t, types.JobFailed, notReady.State)
		})
	}
}

func TestPublishConflict(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Publish(ctx, "linux", "app", payload("a")))

			err := s.Publish(ctx, "windows", "app", payload("b"))
			var conflict *ConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, "linux", conflict.Producer)
			assert.Equal(t, "windows", conflict.Attempt)

			err = s.Publish(ctx, "linux", "app", payload("c"))
			assert.ErrorAs(t, err, &conflict, "write-once even for the owner")

			s.Seal("linux", types.JobSucceeded)
			a, err := s.Fetch(ctx, "other", "app")
			require.NoError(t, err)
			assert.Equal(t, "a", string(a.Files[0].Data))
		})
	}
}

func TestPublishAfterSeal(t *testing.T) {
	s := NewMemoryStore()
	s.Seal("linux", types.JobSucceeded)
	assert.Error(t, s.Publish(context.Background(), "linux", "late", payload("x")))
}

func TestFetchUnknown(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Fetch(context.Background(), "x", "missing")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestFetchGlob(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, job := range []string{"macos-x64", "macos-arm64", "linux"} {
				require.NoError(t, s.Publish(ctx, job, "app-"+job, payload(job)))
				s.Seal(job, types.JobSucceeded)
			}

			got, err := s.FetchGlob(ctx, "release", "app-macos-*")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "app-macos-arm64", got[0].Name)
			assert.Equal(t, "app-macos-x64", got[1].Name)

			_, err = s.FetchGlob(ctx, "release", "nothing-*")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFetchGlobFrom(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Publish(ctx, "a", "app-a", payload("a")))
			require.NoError(t, s.Publish(ctx, "b", "app-b", payload("b")))
			s.Seal("a", types.JobSucceeded)
			s.Seal("b", types.JobFailed)

			got, err := s.FetchGlobFrom(ctx, "release", "app-*", []string{"a"})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "app-a", got[0].Name)

			// Unfiltered, the failed producer's artifact is not readable.
			_, err = s.FetchGlob(ctx, "release", "app-*")
			var notReady *NotReadyError
			assert.ErrorAs(t, err, &notReady)

			_, err = s.FetchGlobFrom(ctx, "release", "app-*", nil)
			assert.ErrorIs(t, err, ErrNotFound, "no producers means no matches")
		})
	}
}

func TestInvalidInput(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	assert.Error(t, s.Publish(ctx, "j", "bad/name", payload("x")))
	assert.Error(t, s.Publish(ctx, "j", "ok", []File{{Path: "../escape"}}))
	assert.Error(t, s.Publish(ctx, "j", "ok", []File{{Path: "a"}, {Path: "a"}}))
	assert.Empty(t, s.Produced("j"), "rejected publishes claim nothing")
}
