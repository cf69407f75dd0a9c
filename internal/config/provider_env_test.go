package config

import (
	"context"
	"os"
	"testing"
)

// TestEnvVarProviderSatisfiesSecretProvider verifies that EnvVarProvider
// implements the SecretProvider interface at compile time.
func TestEnvVarProviderSatisfiesSecretProvider(t *testing.T) {
	var _ SecretProvider = (*EnvVarProvider)(nil)
	var _ SecretProvider = NewEnvVarProvider()
}

// TestEnvVarProviderReturnsSetVariables verifies that GetParametersBatch
// returns values for environment variables that are set.
func TestEnvVarProviderReturnsSetVariables(t *testing.T) {
	const (
		key1 = "PUSHGATE_TEST_SECRET_A"
		key2 = "PUSHGATE_TEST_SECRET_B"
		val1 = "value-alpha"
		val2 = "value-beta"
	)

	t.Setenv(key1, val1)
	t.Setenv(key2, val2)

	provider := NewEnvVarProvider()
	result, err := provider.GetParametersBatch(context.Background(), []string{key1, key2})
	if err != nil {
		t.Fatalf("GetParametersBatch returned unexpected error: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result))
	}
	if got := result[key1]; got != val1 {
		t.Errorf("result[%q] = %q, want %q", key1, got, val1)
	}
	if got := result[key2]; got != val2 {
		t.Errorf("result[%q] = %q, want %q", key2, got, val2)
	}
}

// TestEnvVarProviderOmitsMissingVariables verifies that GetParametersBatch
// silently omits keys that are not set in the environment.
func TestEnvVarProviderOmitsMissingVariables(t *testing.T) {
	const missingKey = "PUSHGATE_TEST_DEFINITELY_NOT_SET_XYZ"
	os.Unsetenv(missingKey)

	provider := NewEnvVarProvider()
	result, err := provider.GetParametersBatch(context.Background(), []string{missingKey})
	if err != nil {
		t.Fatalf("GetParametersBatch returned unexpected error: %v", err)
	}

	if len(result) != 0 {
		t.Errorf("expected empty result for missing key, got %v", result)
	}
}

// TestEnvVarProviderEmptyKeys verifies that an empty key list yields an
// empty result map.
func TestEnvVarProviderEmptyKeys(t *testing.T) {
	provider := NewEnvVarProvider()
	result, err := provider.GetParametersBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetParametersBatch returned unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected empty result, got %v", result)
	}
}
