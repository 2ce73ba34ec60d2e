package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultWhenNoConfigFileExists(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load("qcored", dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadReadsFileValues(t *testing.T) {
	dir := t.TempDir()
	toml := `
listen_addr = "0.0.0.0:9000"
default_backend = "AWG1"
check_method = "Ramsey"
check_period = "5s"
group_order = ["0"]
calib_edges = [["S21", "Spectrum"], ["Spectrum", "Ramsey"]]

[groups]
"0" = ["Q0", "Q1"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "qcored.toml"), []byte(toml), 0o644))

	cfg, err := Load("qcored", dir)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	assert.Equal(t, "AWG1", cfg.DefaultBackend)
	assert.Equal(t, "Ramsey", cfg.CheckMethod)
	assert.Equal(t, 5*time.Second, cfg.CheckPeriod)
	assert.Equal(t, []string{"Q0", "Q1"}, cfg.Groups["0"])
	assert.Equal(t, []string{"0"}, cfg.GroupOrder)
	assert.Equal(t, [][2]string{{"S21", "Spectrum"}, {"Spectrum", "Ramsey"}}, cfg.CalibEdges)
}
