// Package schema serves the static, embedded description of the
// configuration fields each backend kind needs. Front ends render forms
// from it; the core never interprets the fields.
package schema

import (
	_ "embed"
	"encoding/json"

	"github.com/infimount/infimount"
	"github.com/infimount/infimount/errors"
)

//go:embed storage_schemas.json
var raw []byte

// FieldSchema describes one configuration input.
type FieldSchema struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	InputType string `json:"input_type"`
	Required  bool   `json:"required"`
	Secret    bool   `json:"secret"`
}

// KindSchema describes the form for one backend kind.
type KindSchema struct {
	ID     string               `json:"id"`
	Label  string               `json:"label"`
	Kind   infimount.SourceKind `json:"kind"`
	Fields []FieldSchema        `json:"fields"`
}

// ListStorageSchemas parses the embedded schema blob.
func ListStorageSchemas() ([]KindSchema, error) {
	var items []KindSchema
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.New("schema.load", errors.ErrUnexpected).WithMessage(err.Error())
	}
	return items, nil
}
