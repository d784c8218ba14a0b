// Package query implements DDL, DML, and the SELECT execution pipeline:
// predicate pushdown, joins, grouping and aggregates, ordering, and
// projection.
package query

import "strings"

// Result is what executing one Command produces: either a plain status
// Message (DDL/DML) or a tabular result set (SELECT).
type Result struct {
	Message string
	Header  []string
	Rows    [][]string
}

// Format renders a Result the way the engine has always rendered query
// output: tab-separated columns, one header line followed by one line per
// row. A Result with no Header is just its Message.
func (r Result) Format() string {
	if r.Header == nil {
		return r.Message
	}
	var b strings.Builder
	b.WriteString(strings.Join(r.Header, "\t"))
	for _, row := range r.Rows {
		b.WriteByte('\n')
		b.WriteString(strings.Join(row, "\t"))
	}
	return b.String()
}
