package flagext

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestConfigFiles(t *testing.T) {
	var files ConfigFiles

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&files, "config.file", "")
	require.NoError(t, fs.Parse([]string{"-config.file=a.yaml", "-config.file=b.yaml"}))

	require.Equal(t, ConfigFiles{"a.yaml", "b.yaml"}, files)
	require.Equal(t, "a.yaml,b.yaml", files.String())
	require.True(t, files.IsCumulative())
}

func TestTagLimits(t *testing.T) {
	t.Run("Parses comma separated pairs", func(t *testing.T) {
		var limits TagLimits
		require.NoError(t, limits.Set("io=4, cpu = 2,"))
		require.Equal(t, TagLimits{"io": 4, "cpu": 2}, limits)
		require.Equal(t, "cpu=2,io=4", limits.String())
	})

	t.Run("Repeated flags accumulate and later values win", func(t *testing.T) {
		var limits TagLimits

		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.Var(&limits, "tag-workers", "")
		require.NoError(t, fs.Parse([]string{"-tag-workers=io=4", "-tag-workers=cpu=2,io=8"}))

		require.Equal(t, TagLimits{"io": 8, "cpu": 2}, limits)
	})

	for _, value := range []string{"io", "=3", "io=many"} {
		t.Run("Rejects "+value, func(t *testing.T) {
			var limits TagLimits
			require.Error(t, limits.Set(value))
		})
	}

	t.Run("Empty limits render as an empty string", func(t *testing.T) {
		require.Equal(t, "", TagLimits(nil).String())
	})

	t.Run("Unmarshals YAML mappings and strings", func(t *testing.T) {
		var cfg struct {
			A TagLimits `yaml:"a"`
			B TagLimits `yaml:"b"`
		}
		require.NoError(t, yaml.UnmarshalStrict([]byte("a:\n  io: 3\nb: cpu=1,io=2\n"), &cfg))

		require.Equal(t, TagLimits{"io": 3}, cfg.A)
		require.Equal(t, TagLimits{"cpu": 1, "io": 2}, cfg.B)
	})
}
