package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/registry"
	"main/internal/shard"
)

func TestLoadDefaults(t *testing.T) {
	loaded, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, registry.DefaultShards, loaded.Engine.RegistryShards)
	assert.Equal(t, shard.DefaultShards, loaded.Engine.Shard.Shards)
	assert.Equal(t, 90*24*time.Hour, loaded.Engine.Shard.Actor.HotCutoff)
	assert.Equal(t, time.Hour, loaded.Engine.Shard.Actor.IdleTimeout)
	assert.Equal(t, BackendMemory, loaded.Storage.Backend)
	assert.Equal(t, "0.0.0.0:8080", loaded.Server.Bind)
	assert.Equal(t, 1000, loaded.Server.MaxConnections)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"engine": {
			"actorShards": 4,
			"registryShards": 8,
			"mailboxSize": 128,
			"hotCutoffDays": 7,
			"eventLogPath": "events.log"
		},
		"storage": {"backend": "file", "filePath": "cold.jsonl"},
		"server": {"bind": "127.0.0.1:9000", "maxConnections": 5}
	}`), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, loaded.Engine.RegistryShards)
	assert.Equal(t, 4, loaded.Engine.Shard.Shards)
	assert.Equal(t, 128, loaded.Engine.Shard.Actor.MailboxSize)
	assert.Equal(t, 7*24*time.Hour, loaded.Engine.Shard.Actor.HotCutoff)
	assert.Equal(t, "events.log", loaded.Engine.EventLog.Path)
	assert.Equal(t, BackendFile, loaded.Storage.Backend)
	assert.Equal(t, "127.0.0.1:9000", loaded.Server.Bind)
	assert.Equal(t, 5, loaded.Server.MaxConnections)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()

	unknownBackend := filepath.Join(dir, "backend.json")
	require.NoError(t, os.WriteFile(unknownBackend, []byte(`{"storage": {"backend": "tape"}}`), 0o644))
	_, err := Load(unknownBackend)
	require.Error(t, err)

	fileWithoutPath := filepath.Join(dir, "file.json")
	require.NoError(t, os.WriteFile(fileWithoutPath, []byte(`{"storage": {"backend": "file"}}`), 0o644))
	_, err = Load(fileWithoutPath)
	require.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}
