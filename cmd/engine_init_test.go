package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mdm-cli/internal/config"
)

func TestInitStore_SQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")

	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: dsn},
	}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck
}

func TestInitStore_SQLiteDefaultDSN(t *testing.T) {
	// When DatabaseURL is empty, initStore should default to "mdm.db".
	// Run in a temp dir so we don't create files in the project root.
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "sqlite"},
	}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, statErr := os.Stat(filepath.Join(tmpDir, "mdm.db"))
	assert.NoError(t, statErr)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "mysql"},
	}

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestIngestOptions_Default(t *testing.T) {
	cfg = &config.Config{}

	opts, err := ingestOptions("")
	require.NoError(t, err)
	assert.Nil(t, opts.Mapping)
}

func TestIngestOptions_FlagOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte("columns:\n  title_new: [\"vendor_title\"]\n"), 0o644))

	cfg = &config.Config{}

	opts, err := ingestOptions(path)
	require.NoError(t, err)
	require.NotNil(t, opts.Mapping)
	assert.Equal(t, []string{"vendor_title"}, opts.Mapping.Columns["title_new"])
}

func TestIngestOptions_ConfigFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte("columns:\n  full_name: [\"contact\"]\n"), 0o644))

	cfg = &config.Config{
		Ingest: config.IngestConfig{MappingFile: path},
	}

	opts, err := ingestOptions("")
	require.NoError(t, err)
	require.NotNil(t, opts.Mapping)
	assert.Equal(t, []string{"contact"}, opts.Mapping.Columns["full_name"])
}

func TestIngestOptions_MissingFile(t *testing.T) {
	cfg = &config.Config{}

	_, err := ingestOptions(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapping")
}

func TestProviderModel(t *testing.T) {
	cfg = &config.Config{
		Anthropic: config.AnthropicConfig{Model: "claude-haiku-4-5-20251001"},
		Gemini:    config.GeminiConfig{Model: "gemini-2.0-flash"},
	}

	assert.Equal(t, "claude-haiku-4-5-20251001", providerModel("anthropic"))
	assert.Equal(t, "gemini-2.0-flash", providerModel("gemini"))
	assert.Equal(t, "", providerModel("openai"))
}
