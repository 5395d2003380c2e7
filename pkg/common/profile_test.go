package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfile(t *testing.T) {
	t.Run("header", func(t *testing.T) {
		vals, err := ParseProfile(strings.NewReader("wind_speed,other\n1.5,2\n2.5,3\n"))
		require.NoError(t, err)
		assert.Equal(t, []float64{1.5, 2.5}, vals)
	})

	t.Run("no header", func(t *testing.T) {
		vals, err := ParseProfile(strings.NewReader("1\n\n 2\n3\n"))
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 3}, vals)
	})

	t.Run("bad row", func(t *testing.T) {
		_, err := ParseProfile(strings.NewReader("1\nabc\n"))
		assert.ErrorContains(t, err, "row 2")
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ParseProfile(strings.NewReader("header\n"))
		assert.Error(t, err)
	})
}

func TestReadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.csv")
	require.NoError(t, os.WriteFile(path, []byte("4\n5\n"), 0o644))
	vals, err := ReadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5}, vals)

	_, err = ReadProfile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
