package imob

// DefaultPreviewLimit bounds how many transformed rows a preview renders.
const DefaultPreviewLimit = 100

// Summary carries the counts of the last processing run.
type Summary struct {
	TotalParsed int `json:"totalParsed"`
	Duplicates  int `json:"duplicates"`
	MissingKey  int `json:"missingKey"`
	NewRows     int `json:"newRows"`
}

// PreviewColumn describes one column of the rendered rows. Derived marks
// columns the pipeline injected or computed, as opposed to pass-through
// pasted values.
type PreviewColumn struct {
	Name    string `json:"name"`
	Derived bool   `json:"derived"`
}

// Preview is a display-only, length-bounded render of the pending batch.
type Preview struct {
	Summary Summary         `json:"summary"`
	Columns []PreviewColumn `json:"columns"`
	Rows    []Record        `json:"rows"`

	// PendingRows is the full size of the pending buffer. When Truncated
	// is set, Rows is only the head of it — the operator must not mistake
	// the preview bound for the upload size.
	PendingRows int  `json:"pendingRows"`
	Truncated   bool `json:"truncated"`
}

// BuildPreview renders at most limit rows of the pending batch together
// with the run's summary counts.
func BuildPreview(pending []Record, summary Summary, limit int) *Preview {
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}

	columns := make([]PreviewColumn, 0, len(Columns)+len(DerivedColumns))
	for _, col := range Columns {
		columns = append(columns, PreviewColumn{Name: col})
	}
	for _, col := range DerivedColumns {
		columns = append(columns, PreviewColumn{Name: col, Derived: true})
	}

	rows := pending
	truncated := false
	if len(rows) > limit {
		rows = rows[:limit]
		truncated = true
	}

	return &Preview{
		Summary:     summary,
		Columns:     columns,
		Rows:        rows,
		PendingRows: len(pending),
		Truncated:   truncated,
	}
}
