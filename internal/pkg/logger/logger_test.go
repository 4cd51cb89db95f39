package logger

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetLogger resets the global logger state for testing
func resetLogger() {
	logger = nil
	initOnce = sync.Once{}
}

func TestInit(t *testing.T) {
	t.Run("should initialize with the default level", func(t *testing.T) {
		resetLogger()

		err := Init()

		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("should initialize with an explicit level", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			resetLogger()

			err := Init(WithLevel(level))

			require.NoError(t, err)
			assert.NotNil(t, logger)
		}
	})

	t.Run("should fail on an unknown level", func(t *testing.T) {
		resetLogger()

		err := Init(WithLevel("loud"))

		assert.Error(t, err)
		assert.Nil(t, logger)
	})

	t.Run("should only initialize once", func(t *testing.T) {
		resetLogger()

		require.NoError(t, Init(WithLevel("debug")))
		first := logger

		require.NoError(t, Init(WithLevel("error")))
		assert.Equal(t, first, logger)
	})
}

func TestLogFunctions(t *testing.T) {
	resetLogger()
	require.NoError(t, Init(WithLevel("debug")))

	t.Run("should log at every level without panicking", func(t *testing.T) {
		ctx := t.Context()

		assert.NotPanics(t, func() {
			Debug(ctx, "debug message", "key", "value")
			Info(ctx, "info message", "key", "value")
			Warn(ctx, "warn message", "key", "value")
			Error(ctx, "error message", "key", "value")
		})
	})

	t.Run("should tolerate awkward key-value input", func(t *testing.T) {
		ctx := t.Context()

		assert.NotPanics(t, func() {
			Info(ctx, "")
			Info(ctx, "nil value", "key", nil)
			Info(ctx, "dangling key", "key1", "value1", "key2")
		})
	})

	t.Run("should panic on Panic", func(t *testing.T) {
		assert.Panics(t, func() {
			Panic(t.Context(), "panic message", "key", "value")
		})
	})
}

func TestSync(t *testing.T) {
	t.Run("should not panic after init", func(t *testing.T) {
		resetLogger()
		require.NoError(t, Init())

		// Sync may return an error for stdout; it must not panic
		assert.NotPanics(t, func() {
			Sync()
		})
	})

	t.Run("should panic without init", func(t *testing.T) {
		resetLogger()

		assert.Panics(t, func() {
			Sync()
		})
	})
}

func TestFatal(t *testing.T) {
	t.Run("should exit with code 1", func(t *testing.T) {
		// The subprocess branch executes the Fatal call.
		if os.Getenv("TEST_FATAL_SUBPROCESS") == "1" {
			_ = Init(WithLevel("debug"))
			Fatal(context.Background(), "fatal error for test", "key", "value")
			return
		}

		cmd := exec.Command(os.Args[0], "-test.run=TestFatal")
		cmd.Env = append(os.Environ(), "TEST_FATAL_SUBPROCESS=1")

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()
		exitErr, ok := err.(*exec.ExitError)
		assert.True(t, ok, "the subprocess should exit with a non-zero status")
		assert.Equal(t, 1, exitErr.ExitCode())
		assert.Contains(t, stdout.String(), `"level":"fatal"`)
	})
}
