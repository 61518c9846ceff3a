package policy

import "encoding/json"

// Placeholder replaces every redacted value.
const Placeholder = "<REDACTED>"

// sensitiveKeys are removed wherever they appear in a logged JSON object.
var sensitiveKeys = map[string]struct{}{
	"inputVariables": {},
	"participant":    {},
	"variables":      {},
}

// Redactor prepares payloads for logging. The zero value redacts.
type Redactor struct {
	Unredacted bool
}

// NewRedactor returns a redactor; unredacted disables all masking.
func NewRedactor(unredacted bool) Redactor {
	return Redactor{Unredacted: unredacted}
}

// JSON redacts a raw payload. Objects keep their shape with sensitive keys
// masked at any depth; anything that is not a JSON object is replaced whole.
func (r Redactor) JSON(raw []byte) string {
	if r.Unredacted {
		return string(raw)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return Placeholder
	}
	out, err := json.Marshal(redactMap(obj))
	if err != nil {
		return Placeholder
	}
	return string(out)
}

// Map redacts a decoded object in place and returns it.
func (r Redactor) Map(m map[string]any) map[string]any {
	if r.Unredacted || m == nil {
		return m
	}
	return redactMap(m)
}

// Text replaces free text such as agent transcripts as a whole.
func (r Redactor) Text(s string) string {
	if r.Unredacted {
		return s
	}
	return Placeholder
}

func redactMap(m map[string]any) map[string]any {
	for k, v := range m {
		if _, ok := sensitiveKeys[k]; ok {
			m[k] = Placeholder
			continue
		}
		switch tv := v.(type) {
		case map[string]any:
			m[k] = redactMap(tv)
		case []any:
			for i, item := range tv {
				if obj, ok := item.(map[string]any); ok {
					tv[i] = redactMap(obj)
				}
			}
		}
	}
	return m
}
