package imob

import (
	"strconv"
	"strings"
	"time"
)

// Transform applies the derivation formulas and type coercions to the new
// records, in input order. now supplies the fallback year for rows whose
// DATA field is not slash-delimited.
//
// Transform never fails: every formula has a lenient fallback and every
// coercion degrades to nil. Input records are not mutated.
func Transform(records []Record, lookup map[string]Loja, empresa, produto string, now time.Time) []Record {
	out := make([]Record, len(records))
	for i, rec := range records {
		out[i] = transformOne(rec, lookup, empresa, produto, now)
	}
	return out
}

func transformOne(rec Record, lookup map[string]Loja, empresa, produto string, now time.Time) Record {
	row := make(Record, len(Columns)+len(DerivedColumns))
	for _, col := range Columns {
		row[col] = rec[col]
	}

	// Caller-selected classification, constant across the batch.
	row["Emp"] = empresa
	row["Produto"] = produto

	// Split the composite identifier into numeric id + free text. Without
	// the separator the id is unknown and the raw value is kept as the
	// fornecedor name.
	idFornecedor := ""
	rawFornecedor := stringValue(rec, ColFornecedorID)
	if idx := strings.Index(rawFornecedor, fornecedorSep); idx >= 0 {
		idFornecedor = strings.TrimSpace(rawFornecedor[:idx])
		row["ID"] = idFornecedor
		row["fornecedor"] = strings.TrimSpace(rawFornecedor[idx+len(fornecedorSep):])
	} else {
		row["ID"] = nil
		row["fornecedor"] = rec[ColFornecedorID]
	}

	row["ano"] = deriveAno(stringValue(rec, ColData), now)

	// Reserved for downstream consumers.
	row["Coluna1"] = nil
	row["Coluna2"] = nil

	// PROCV: resolve the id against the lojas join map. An unresolved id
	// falls back to the free-text name so the row is never blocked.
	if loja, ok := lookup[idFornecedor]; idFornecedor != "" && ok {
		row["loja"] = loja.Nome
		if loja.Segmento != nil {
			row["Segmento"] = *loja.Segmento
		} else {
			row["Segmento"] = nil
		}
	} else {
		row["loja"] = row["fornecedor"]
		row["Segmento"] = nil
	}

	for _, c := range Coercions {
		switch c.Kind {
		case CoerceBigintKind:
			row[c.Column] = CoerceBigint(row[c.Column])
		case CoerceTimestampKind:
			row[c.Column] = CoerceTimestamp(row[c.Column])
		}
	}

	return row
}

// deriveAno extracts the year from a DD/MM/YYYY-style date: the leading
// digits of the third slash-delimited segment (the segment may carry a
// trailing time part). A date without slashes defaults to the current
// calendar year; a slash-delimited date with fewer than three segments
// yields nil.
func deriveAno(data string, now time.Time) any {
	if data == "" || !strings.Contains(data, "/") {
		return strconv.Itoa(now.Year())
	}

	parts := strings.Split(data, "/")
	if len(parts) < 3 {
		return nil
	}

	year := parts[2]
	for i, r := range year {
		if r < '0' || r > '9' {
			year = year[:i]
			break
		}
	}
	if year == "" {
		return nil
	}
	return year
}
