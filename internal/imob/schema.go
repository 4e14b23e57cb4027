// Package imob implements the IMOB movement import pipeline: parse a pasted
// tab-separated export, reconcile it against rows already in the remote
// store, enrich each new row through the lojas reference table, coerce
// column types, and upload the result in batches.
//
// The package has no HTTP dependencies; the remote store is reached through
// the Datastore interface so the pipeline can be exercised against fakes.
package imob

// Record is a single movement row flowing through the pipeline.
//
// After Parse, every value is either a string or nil. After Transform,
// bigint columns hold int64 or nil and timestamp columns hold an ISO-8601
// string or nil; everything else stays a plain string or nil.
type Record map[string]any

const (
	// ColSeq is the business key: the domain-unique movement sequence
	// number used to detect rows that were already ingested.
	ColSeq = "SEQMOVIMENTAÇÃO"

	// ColFornecedorID is the composite identifier field. Its raw value
	// encodes a numeric loja id and free text as "<id> - <name>".
	ColFornecedorID = "ID - Fornecedor"

	// ColData is the movement date, pasted as DD/MM/YYYY with an optional
	// time part. The ano column is derived from it.
	ColData = "DATA"
)

// Columns lists the pasted columns in paste order. Every line is mapped
// onto these by position; there is no header row.
var Columns = []string{
	ColSeq, ColData, "TIPO", "DOC", "QUANTIDADE", "LOCAL", "SALDO",
	"OPERAÇÃO", ColFornecedorID, "data2", "usuario",
}

// DerivedColumns lists the columns injected or computed by Transform,
// in insert order after the pasted columns.
var DerivedColumns = []string{
	"Emp", "Produto", "ID", "fornecedor", "ano", "Coluna1", "Coluna2",
	"loja", "Segmento",
}

// InsertColumns returns the full column set of the imob table, pasted
// columns first, then derived ones.
func InsertColumns() []string {
	cols := make([]string, 0, len(Columns)+len(DerivedColumns))
	cols = append(cols, Columns...)
	cols = append(cols, DerivedColumns...)
	return cols
}

// CoercionKind selects the type rule applied to a column after the
// derivation formulas run.
type CoercionKind int

const (
	// CoerceBigintKind parses the value as a base-10 integer; anything
	// else, including the empty string, becomes nil.
	CoerceBigintKind CoercionKind = iota

	// CoerceTimestampKind parses DD/MM/YYYY with an optional HH:MM:SS
	// part into an ISO-8601 string; unparseable or semantically invalid
	// dates become nil.
	CoerceTimestampKind
)

// ColumnCoercion pairs a column with its type rule.
type ColumnCoercion struct {
	Column string
	Kind   CoercionKind
}

// Coercions is the fixed coercion table applied by Transform. It is
// declared statically so coverage of the typed columns is visible here
// rather than discovered by iterating row keys at runtime.
var Coercions = []ColumnCoercion{
	{ColSeq, CoerceBigintKind},
	{"DOC", CoerceBigintKind},
	{"QUANTIDADE", CoerceBigintKind},
	{"SALDO", CoerceBigintKind},
	{"ID", CoerceBigintKind},
	{"Emp", CoerceBigintKind},
	{"ano", CoerceBigintKind},
	{ColData, CoerceTimestampKind},
	{"data2", CoerceTimestampKind},
}
