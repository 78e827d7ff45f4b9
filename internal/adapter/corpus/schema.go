package corpus

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// recordSchema describes one corpus record. Records that fail it are
// skipped with a warning rather than failing the whole load.
const recordSchema = `{
  "type": "object",
  "required": ["id", "title"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "title": {"type": "string"},
    "abstract": {"type": "string"},
    "claims": {"type": "array", "items": {"type": "string"}},
    "metadata": {"type": "object", "additionalProperties": {"type": "string"}}
  }
}`

func compileRecordSchema() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(recordSchema))
}

// validateRecord returns a joined description of schema violations, or
// the empty string when the record is valid.
func validateRecord(schema *gojsonschema.Schema, raw []byte) (string, error) {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return "", err
	}
	if result.Valid() {
		return "", nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return strings.Join(details, "; "), nil
}
