package schema

// JSONSchema renders the schema as a JSON-Schema object for SCHEMA
// messages. Non-string primitives also admit "string" so a downstream
// loader can survive a value the local coercion fell back on.
func (s *Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.columns))
	for _, col := range s.columns {
		props[col.Name] = columnJSONSchema(col)
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}

func columnJSONSchema(col Column) map[string]any {
	types := make([]string, 0, 3)
	if col.Nullable {
		types = append(types, "null")
	}
	switch col.Type {
	case TypeString, TypeNull:
		types = append(types, "string")
	default:
		types = append(types, col.Type.String(), "string")
	}
	return map[string]any{"type": types}
}
