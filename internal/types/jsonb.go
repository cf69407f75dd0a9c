package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions.
// These ensure the JSONB types implement both sql.Scanner and driver.Valuer,
// catching any method signature drift at compile time rather than at runtime.
// Scan is on pointer receivers; Value is on value receivers.
var (
	_ sql.Scanner   = (*ProviderResponse)(nil)
	_ driver.Valuer = ProviderResponse(nil)
)

// ProviderResponse is the opaque structured blob returned by a push provider,
// persisted on the notifications row as JSONB. The pipeline never inspects
// its contents beyond storing and returning them.
type ProviderResponse map[string]any

// scanJSONB scans a JSONB database value into a Go pointer. It handles nil
// values, []byte, and string representations from different drivers.
func scanJSONB(dest interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (pr *ProviderResponse) Scan(value interface{}) error {
	if value == nil {
		*pr = nil
		return nil
	}
	return scanJSONB(pr, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (pr ProviderResponse) Value() (driver.Value, error) {
	if pr == nil {
		return nil, nil
	}
	return json.Marshal(pr)
}
