package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Artifact string `json:"artifact" validate:"required"`
	Port     int    `json:"port" validate:"gte=0,lte=65535"`
	Cron     string `json:"cron"`
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	err := os.WriteFile(path, []byte(content), 0644)
	if err != nil {
		t.Fatal(err)
	}
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{
		// base config
		artifact: "output.json",
		port: 8000,
		cron: "0 3 * * *",
	}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{ port: 9000 }`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, testConfig{
		Artifact: "output.json",
		Port:     9000,
		Cron:     "0 3 * * *",
	}, cfg)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(testConfig{Artifact: "output.json", Port: 80}))
	require.Error(t, Validate(testConfig{Port: 80}))
	require.Error(t, Validate(testConfig{Artifact: "a", Port: 70000}))
}
