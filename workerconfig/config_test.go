package workerconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "channelReadFd: 3\nchannelWriteFd: 4\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 262144, cfg.ChannelBufferSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 3, cfg.ChannelReadFD)
	assert.Equal(t, 4, cfg.ChannelWriteFD)
}

func TestLoadHonorsExplicitValues(t *testing.T) {
	path := writeConfig(t, "channelReadFd: 3\nchannelWriteFd: 4\nchannelBufferSize: 4096\nlogLevel: debug\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.ChannelBufferSize)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsOversizedBuffer(t *testing.T) {
	path := writeConfig(t, "channelReadFd: 3\nchannelWriteFd: 4\nchannelBufferSize: 999999999\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsNegativeFD(t *testing.T) {
	path := writeConfig(t, "channelReadFd: -1\nchannelWriteFd: 4\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
