package storage

import (
	"strconv"
	"strings"

	"github.com/skepadb/skepadb/internal/value"
)

// EncodeKeyParts builds the ordered-map key used for PK/unique/secondary
// index lookups: each component is length-prefixed so no value's content can
// ever cause two distinct tuples to collide on their encoded key.
func EncodeKeyParts(vals []value.Value) string {
	var b strings.Builder
	for _, v := range vals {
		s := value.ValueToString(v)
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
		b.WriteByte(';')
	}
	return b.String()
}

// EncodeKey is a convenience wrapper for the common single-column-or-tuple
// lookup built directly from column indices against a row.
func EncodeKey(row Row, idxs []int) string {
	vals := make([]value.Value, len(idxs))
	for i, idx := range idxs {
		vals[i] = row.Values[idx]
	}
	return EncodeKeyParts(vals)
}
