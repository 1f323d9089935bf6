package caption

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// textField is the record field carrying the generated caption.
const textField = "generated_text"

// ExtractText pulls the generated text out of a success payload. The backend
// answers with a list of records, a single record, or a bare value; all three
// are reduced to one string. When no record carries the text field the raw
// payload is returned as text.
func ExtractText(body []byte) string {
	raw := bytes.TrimSpace(body)

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return string(raw)
	}

	switch v := payload.(type) {
	case []any:
		if len(v) > 0 {
			if record, ok := v[0].(map[string]any); ok {
				if text, ok := fieldText(record); ok {
					return text
				}
			}
		}
	case map[string]any:
		if text, ok := fieldText(v); ok {
			return text
		}
	case string:
		return v
	case nil:
		return ""
	}
	return string(raw)
}

func fieldText(record map[string]any) (string, bool) {
	value, ok := record[textField]
	if !ok {
		return "", false
	}
	switch t := value.(type) {
	case string:
		return t, true
	case nil:
		return "", true
	default:
		return fmt.Sprint(t), true
	}
}
