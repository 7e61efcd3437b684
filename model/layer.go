package model

// FieldType is the declared type of an attribute field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldInteger FieldType = "integer"
	FieldBool    FieldType = "bool"
)

// Field describes one named attribute of a layer schema.
type Field struct {
	Name string
	Type FieldType
}

// LayerInfo is the static description of a layer: its name, the reference
// frame its geometries are expressed in and its attribute schema.
type LayerInfo struct {
	Name   string
	CRS    string
	Fields []Field
}

// HasField reports whether the schema declares the named field.
func (li LayerInfo) HasField(name string) bool {
	for _, f := range li.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// FieldNames returns the schema field names in declaration order.
func (li LayerInfo) FieldNames() []string {
	out := make([]string, 0, len(li.Fields))
	for _, f := range li.Fields {
		out = append(out, f.Name)
	}
	return out
}
