package types

import "log/slog"

// redactedPlaceholder is the string used to replace secret values in logs and serialization.
const redactedPlaceholder = "***REDACTED***"

// redactedJSON is the pre-computed JSON encoding of the redacted placeholder.
var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString is a string type that prevents accidental logging or
// serialization of sensitive values (provider API keys, DSNs, admin key
// hashes). It overrides String(), MarshalJSON(), and LogValue() to return a
// redacted placeholder, so secrets never leak through fmt functions, JSON
// output, or slog records.
//
// Use Unmask() to retrieve the raw plaintext value when it is genuinely
// needed (e.g., building an Authorization header or a connection string).
type SecretString string

// String returns a redacted placeholder instead of the raw value.
// This is invoked by fmt.Sprintf, fmt.Println, and any other function
// that uses the fmt.Stringer interface.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// LogValue implements slog.LogValuer so a SecretString passed directly as a
// slog attribute value is redacted as well.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}

// Unmask returns the raw plaintext value of the secret. Usage should be
// limited to the call sites that hand the value to a client or driver.
func (s SecretString) Unmask() string {
	return string(s)
}
