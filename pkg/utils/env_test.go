package utils

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvOrDefault(t *testing.T) {
	const key = "CLOSEGROUP_TEST_ENV_OR_DEFAULT"
	os.Unsetenv(key)
	require.Equal(t, "fallback", EnvOrDefault(key, "fallback"))

	os.Setenv(key, "value")
	defer os.Unsetenv(key)
	require.Equal(t, "value", EnvOrDefault(key, "fallback"))
}

func TestEnvOrDefaultInt(t *testing.T) {
	const key = "CLOSEGROUP_TEST_ENV_OR_DEFAULT_INT"
	os.Unsetenv(key)
	require.Equal(t, 7, EnvOrDefaultInt(key, 7))

	os.Setenv(key, "42")
	defer os.Unsetenv(key)
	require.Equal(t, 42, EnvOrDefaultInt(key, 7))

	os.Setenv(key, "not-a-number")
	require.Equal(t, 7, EnvOrDefaultInt(key, 7))
}

func TestEnvOrDefaultUint64(t *testing.T) {
	const key = "CLOSEGROUP_TEST_ENV_OR_DEFAULT_UINT64"
	os.Unsetenv(key)
	require.Equal(t, uint64(9), EnvOrDefaultUint64(key, 9))

	os.Setenv(key, "1024")
	defer os.Unsetenv(key)
	require.Equal(t, uint64(1024), EnvOrDefaultUint64(key, 9))
}
