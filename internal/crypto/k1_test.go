package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomK1_Shape(t *testing.T) {
	k1, err := RandomK1()
	require.NoError(t, err)

	assert.Len(t, k1, 64)
	assert.Regexp(t, `^[0-9a-f]{64}$`, k1)
}

func TestRandomK1_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		k1, err := RandomK1()
		require.NoError(t, err)
		assert.False(t, seen[k1], "duplicate challenge generated")
		seen[k1] = true
	}
}

func TestValidK1(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid", "aa64c1312b25a8cfc3e92312b70934c2c8e1b9e3ea6b12f65a24b132accf6e05", true},
		{"too short", "aa64c131", false},
		{"uppercase hex", "AA64C1312B25A8CFC3E92312B70934C2C8E1B9E3EA6B12F65A24B132ACCF6E05", false},
		{"non-hex char", "zz64c1312b25a8cfc3e92312b70934c2c8e1b9e3ea6b12f65a24b132accf6e05", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidK1(tt.input))
		})
	}
}
