package config

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// mockSSMClient is a configurable mock implementing the ssmClient interface.
// Each call is recorded so tests can verify batching behavior.
type mockSSMClient struct {
	values  map[string]string // path -> plaintext value
	err     error
	calls   [][]string // Names of each GetParameters call
}

func (m *mockSSMClient) GetParameters(_ context.Context, params *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	m.calls = append(m.calls, params.Names)
	if m.err != nil {
		return nil, m.err
	}

	out := &ssm.GetParametersOutput{}
	for _, name := range params.Names {
		if v, ok := m.values[name]; ok {
			out.Parameters = append(out.Parameters, ssmtypes.Parameter{
				Name:  aws.String(name),
				Value: aws.String(v),
			})
		} else {
			out.InvalidParameters = append(out.InvalidParameters, name)
		}
	}
	return out, nil
}

// TestSSMProviderSatisfiesSecretProvider verifies that SSMProvider
// implements the SecretProvider interface at compile time.
func TestSSMProviderSatisfiesSecretProvider(t *testing.T) {
	var _ SecretProvider = (*SSMProvider)(nil)
	var _ SecretProvider = NewSSMProvider("us-east-1")
}

// TestNewSSMProviderStoresRegion verifies that the constructor correctly
// stores the provided region.
func TestNewSSMProviderStoresRegion(t *testing.T) {
	provider := NewSSMProvider("eu-west-1")
	if provider.region != "eu-west-1" {
		t.Errorf("provider.region = %q, want %q", provider.region, "eu-west-1")
	}
}

// TestSSMProviderEmptyKeysReturnsEmptyMap verifies that calling
// GetParametersBatch with an empty keys slice returns an empty map without
// touching the SSM API. This is an optimization: no call is needed when
// there are no keys to resolve.
func TestSSMProviderEmptyKeysReturnsEmptyMap(t *testing.T) {
	client := &mockSSMClient{}
	provider := newSSMProviderWithClient("us-east-1", client)

	result, err := provider.GetParametersBatch(context.Background(), []string{})
	if err != nil {
		t.Fatalf("GetParametersBatch with empty keys returned unexpected error: %v", err)
	}
	if result == nil {
		t.Error("expected non-nil map, got nil")
	}
	if len(result) != 0 {
		t.Errorf("expected empty result for empty keys, got %v", result)
	}
	if len(client.calls) != 0 {
		t.Errorf("SSM client was called %d times, want 0", len(client.calls))
	}
}

// TestSSMProviderNilKeysReturnsEmptyMap verifies that calling
// GetParametersBatch with nil keys returns an empty map without error.
func TestSSMProviderNilKeysReturnsEmptyMap(t *testing.T) {
	provider := newSSMProviderWithClient("us-east-1", &mockSSMClient{})

	result, err := provider.GetParametersBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetParametersBatch with nil keys returned unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected empty result for nil keys, got %v", result)
	}
}

// TestSSMProviderSingleBatch verifies that a small key set resolves in a
// single GetParameters call with decryption enabled.
func TestSSMProviderSingleBatch(t *testing.T) {
	client := &mockSSMClient{
		values: map[string]string{
			"/prod/pushgate/database/url":   "postgres://prod",
			"/prod/pushgate/provider/key":   "server-key",
			"/prod/pushgate/security/admin": "$2a$12$hash",
		},
	}
	provider := newSSMProviderWithClient("us-east-1", client)

	keys := []string{
		"/prod/pushgate/database/url",
		"/prod/pushgate/provider/key",
		"/prod/pushgate/security/admin",
	}
	result, err := provider.GetParametersBatch(context.Background(), keys)
	if err != nil {
		t.Fatalf("GetParametersBatch returned error: %v", err)
	}

	if len(client.calls) != 1 {
		t.Fatalf("SSM client was called %d times, want 1", len(client.calls))
	}
	if len(result) != 3 {
		t.Fatalf("resolved %d parameters, want 3", len(result))
	}
	if result["/prod/pushgate/database/url"] != "postgres://prod" {
		t.Errorf("database url = %q, want resolved value", result["/prod/pushgate/database/url"])
	}
}

// TestSSMProviderBatchesAboveLimit verifies that more than 10 keys are split
// into multiple GetParameters calls, respecting the SSM API limit.
func TestSSMProviderBatchesAboveLimit(t *testing.T) {
	values := make(map[string]string)
	var keys []string
	for i := 0; i < 12; i++ {
		path := "/prod/pushgate/param" + string(rune('a'+i))
		values[path] = "value"
		keys = append(keys, path)
	}

	client := &mockSSMClient{values: values}
	provider := newSSMProviderWithClient("us-east-1", client)

	result, err := provider.GetParametersBatch(context.Background(), keys)
	if err != nil {
		t.Fatalf("GetParametersBatch returned error: %v", err)
	}

	if len(result) != 12 {
		t.Errorf("resolved %d parameters, want 12", len(result))
	}
	if len(client.calls) != 2 {
		t.Fatalf("SSM client was called %d times, want 2 (batches of 10 and 2)", len(client.calls))
	}
	if len(client.calls[0]) != ssmMaxBatchSize {
		t.Errorf("first batch size = %d, want %d", len(client.calls[0]), ssmMaxBatchSize)
	}
	if len(client.calls[1]) != 2 {
		t.Errorf("second batch size = %d, want 2", len(client.calls[1]))
	}
}

// TestSSMProviderInvalidParameters verifies that parameters SSM reports as
// invalid (not found) produce an error instead of a partial result.
func TestSSMProviderInvalidParameters(t *testing.T) {
	client := &mockSSMClient{
		values: map[string]string{
			"/prod/pushgate/exists": "value",
		},
	}
	provider := newSSMProviderWithClient("us-east-1", client)

	_, err := provider.GetParametersBatch(context.Background(), []string{
		"/prod/pushgate/exists",
		"/prod/pushgate/missing",
	})
	if err == nil {
		t.Fatal("expected error for invalid parameters, got nil")
	}
}

// TestSSMProviderClientErrorPropagates verifies that SDK errors are wrapped
// and returned to the caller.
func TestSSMProviderClientErrorPropagates(t *testing.T) {
	apiErr := errors.New("ThrottlingException")
	client := &mockSSMClient{err: apiErr}
	provider := newSSMProviderWithClient("us-east-1", client)

	_, err := provider.GetParametersBatch(context.Background(), []string{"/prod/pushgate/key"})
	if err == nil {
		t.Fatal("expected error when SSM call fails, got nil")
	}
	if !errors.Is(err, apiErr) {
		t.Errorf("error should wrap the SDK error, got: %v", err)
	}
}

// TestSSMProviderContextCancellation verifies that a cancelled context aborts
// resolution before any SSM call is made.
func TestSSMProviderContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	client := &mockSSMClient{values: map[string]string{"/dev/pushgate/test": "v"}}
	provider := newSSMProviderWithClient("us-east-1", client)

	_, err := provider.GetParametersBatch(ctx, []string{"/dev/pushgate/test"})
	if err == nil {
		t.Fatal("expected error with cancelled context, got nil")
	}
	if len(client.calls) != 0 {
		t.Errorf("SSM client was called %d times after cancellation, want 0", len(client.calls))
	}
}
