package schema

// InferRows infers a schema from sampled raw rows aligned to headers.
// Rows shorter than the header leave the trailing columns unobserved;
// unobserved and empty cells mark the column nullable. Extra fields beyond
// the header carry no column name and are ignored here (the decoder counts
// such rows as malformed).
func InferRows(headers []string, rows [][]string) *Schema {
	s := New()
	for _, h := range headers {
		s.AddColumn(Column{Name: h, Type: TypeNull})
	}

	for _, row := range rows {
		for i, h := range headers {
			col := &s.columns[s.index[h]]
			if i >= len(row) {
				col.Nullable = true
				continue
			}
			t := InferValue(row[i])
			if t == TypeNull {
				col.Nullable = true
				continue
			}
			col.Type = Merge(col.Type, t)
		}
	}
	return s
}
