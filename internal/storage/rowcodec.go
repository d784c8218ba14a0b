package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/skepadb/skepadb/internal/catalog"
	"github.com/skepadb/skepadb/internal/value"
)

// tagFor returns the single-letter row-file tag for a non-null value of the
// given kind. n is reserved for null and never returned here.
func tagFor(k value.Kind) byte {
	switch k {
	case value.KindBool:
		return 'o'
	case value.KindInt:
		return 'i'
	case value.KindBigInt:
		return 'g'
	case value.KindDecimal:
		return 'm'
	case value.KindVarChar, value.KindText:
		return 't'
	case value.KindDate:
		return 'd'
	case value.KindTimestamp:
		return 's'
	case value.KindUUID:
		return 'u'
	case value.KindJSON:
		return 'j'
	case value.KindBlob:
		return 'b'
	default:
		return 't'
	}
}

func escapeField(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "\t", "\\t", "\n", "\\n")
	return r.Replace(s)
}

func unescapeField(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 't':
				b.WriteByte('\t')
				i++
				continue
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// EncodeRow renders a row as one row-file line: "@<id>|\t<tag>:<payload>..."
func EncodeRow(r Row) string {
	var b strings.Builder
	fmt.Fprintf(&b, "@%d|", r.ID)
	for _, v := range r.Values {
		b.WriteByte('\t')
		if v.Null {
			b.WriteString("n:")
			continue
		}
		b.WriteByte(tagFor(v.Kind))
		b.WriteByte(':')
		b.WriteString(escapeField(value.ValueToString(v)))
	}
	return b.String()
}

// DecodeRow parses a row-file line back into a Row, re-typing each field
// against schema's column kinds. lineNo is used for the legacy fallback: a
// line with no "@<id>|" header is tolerated and assigned lineNo as its id.
func DecodeRow(line string, schema catalog.Schema, lineNo uint64) (Row, error) {
	var id uint64
	rest := line
	if strings.HasPrefix(line, "@") {
		if idx := strings.IndexByte(line, '|'); idx > 0 {
			n, err := strconv.ParseUint(line[1:idx], 10, 64)
			if err == nil {
				id = n
				rest = line[idx+1:]
			} else {
				id = lineNo
			}
		} else {
			id = lineNo
		}
	} else {
		id = lineNo
	}

	fields := strings.Split(rest, "\t")
	if len(fields) > 0 && fields[0] == "" {
		fields = fields[1:]
	}
	if len(fields) != len(schema.Columns) {
		return Row{}, fmt.Errorf("row has %d fields, schema has %d columns", len(fields), len(schema.Columns))
	}

	vals := make([]value.Value, len(fields))
	for i, field := range fields {
		tag, payload, ok := strings.Cut(field, ":")
		if !ok {
			return Row{}, fmt.Errorf("malformed row field '%s'", field)
		}
		col := schema.Columns[i]
		if tag == "n" {
			vals[i] = value.NullValue(col.Type.Kind)
			continue
		}
		token := unescapeField(payload)
		v, err := value.ParseValue(col.Type, token)
		if err != nil {
			return Row{}, fmt.Errorf("row field %d: %w", i, err)
		}
		vals[i] = v
	}
	return Row{ID: id, Values: vals}, nil
}
