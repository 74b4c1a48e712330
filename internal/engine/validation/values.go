package validation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/restforge/restforge/internal/storage"
)

// CheckValue validates that a raw input value conforms to the given storage
// field type. JSON-decoded payloads are the common case, so numeric checks
// accept both native Go integers and float64 values with no fractional part.
func CheckValue(ft storage.FieldType, value interface{}) error {
	if value == nil {
		return nil
	}

	switch ft {
	case storage.TypeString, storage.TypeText:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}

	case storage.TypeInt, storage.TypeBigInt:
		switch v := value.(type) {
		case int, int32, int64:
		case float64:
			if v != float64(int64(v)) {
				return fmt.Errorf("expected integer, got %v", v)
			}
		default:
			return fmt.Errorf("expected integer, got %T", value)
		}

	case storage.TypeFloat, storage.TypeDecimal:
		switch value.(type) {
		case float32, float64, int, int32, int64:
		default:
			return fmt.Errorf("expected number, got %T", value)
		}

	case storage.TypeBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}

	case storage.TypeTimestamp, storage.TypeDate:
		switch v := value.(type) {
		case time.Time:
		case string:
			if _, err := time.Parse(time.RFC3339, v); err != nil {
				return fmt.Errorf("expected RFC3339 timestamp: %v", err)
			}
		default:
			return fmt.Errorf("expected timestamp, got %T", value)
		}

	case storage.TypeUUID:
		switch v := value.(type) {
		case uuid.UUID:
		case string:
			if _, err := uuid.Parse(v); err != nil {
				return fmt.Errorf("expected uuid: %v", err)
			}
		default:
			return fmt.Errorf("expected uuid, got %T", value)
		}

	case storage.TypeJSON:
		switch v := value.(type) {
		case map[string]interface{}, []interface{}:
		case string:
			if !json.Valid([]byte(v)) {
				return fmt.Errorf("expected valid json")
			}
		default:
			return fmt.Errorf("expected json value, got %T", value)
		}

	case storage.TypeBinary:
		switch value.(type) {
		case []byte, string:
		default:
			return fmt.Errorf("expected base64 string, got %T", value)
		}
	}

	return nil
}
