package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plain struct {
	Name string `mapstructure:"name"`
}

type withDefaults struct {
	Name    string        `mapstructure:"name"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func (w *withDefaults) SetDefaults(v *viper.Viper) {
	v.SetDefault("name", "fallback")
	v.SetDefault("timeout", 2*time.Second)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load("svc", &plain{})
	require.Error(t, err)

	var d withDefaults
	_, err = Load("svc", &d)
	require.NoError(t, err)
	assert.Equal(t, "fallback", d.Name)
	assert.Equal(t, 2*time.Second, d.Timeout)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "svc.yaml"), []byte("name: from-file\ntimeout: 5s\n"), 0o644))
	t.Chdir(dir)
	t.Setenv("SVC_NAME", "from-env")

	var d withDefaults
	v, err := Load("svc", &d)
	require.NoError(t, err)
	assert.Equal(t, "from-env", d.Name)
	assert.Equal(t, 5*time.Second, d.Timeout)
	assert.Contains(t, v.ConfigFileUsed(), "svc.yaml")
}

func TestLoadAndWatch_Reload(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "svc.yaml")
	require.NoError(t, os.WriteFile(file, []byte("name: one\n"), 0o644))
	t.Chdir(dir)

	var d withDefaults
	changed := make(chan struct{}, 4)
	_, err := LoadAndWatch("svc", &d, func() { changed <- struct{}{} })
	require.NoError(t, err)
	assert.Equal(t, "one", d.Name)

	require.NoError(t, os.WriteFile(file, []byte("name: two\n"), 0o644))
	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("no reload")
	}
}
