// Package value implements the engine's typed scalar model: the DataType
// tags a column's permitted values, Value holds one of them, and every Value
// has a canonical textual form used for persistence, key encoding, and
// result rendering.
package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a DataType's family. Decimal and VarChar carry extra
// parameters (precision/scale, max length) alongside the kind.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindBigInt
	KindDecimal
	KindVarChar
	KindText
	KindDate
	KindTimestamp
	KindUUID
	KindJSON
	KindBlob
)

// DataType describes a column's permitted values.
type DataType struct {
	Kind      Kind
	Precision uint32 // Decimal only
	Scale     uint32 // Decimal only
	MaxLen    int    // VarChar only
}

func Bool() DataType      { return DataType{Kind: KindBool} }
func Int() DataType       { return DataType{Kind: KindInt} }
func BigInt() DataType    { return DataType{Kind: KindBigInt} }
func Text() DataType      { return DataType{Kind: KindText} }
func Date() DataType      { return DataType{Kind: KindDate} }
func Timestamp() DataType { return DataType{Kind: KindTimestamp} }
func UUID() DataType      { return DataType{Kind: KindUUID} }
func JSON() DataType      { return DataType{Kind: KindJSON} }
func Blob() DataType      { return DataType{Kind: KindBlob} }

func Decimal(precision, scale uint32) DataType {
	return DataType{Kind: KindDecimal, Precision: precision, Scale: scale}
}

func VarChar(maxLen int) DataType {
	return DataType{Kind: KindVarChar, MaxLen: maxLen}
}

func (d DataType) Equal(o DataType) bool {
	if d.Kind != o.Kind {
		return false
	}
	switch d.Kind {
	case KindDecimal:
		return d.Precision == o.Precision && d.Scale == o.Scale
	case KindVarChar:
		return d.MaxLen == o.MaxLen
	default:
		return true
	}
}

// String renders a DataType in the catalog's persisted dtype format, e.g.
// "decimal(10,2)" or "varchar(255)".
func (d DataType) String() string {
	switch d.Kind {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindBigInt:
		return "bigint"
	case KindDecimal:
		return fmt.Sprintf("decimal(%d,%d)", d.Precision, d.Scale)
	case KindVarChar:
		return fmt.Sprintf("varchar(%d)", d.MaxLen)
	case KindText:
		return "text"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	case KindUUID:
		return "uuid"
	case KindJSON:
		return "json"
	case KindBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// ParseDataType parses the catalog's persisted dtype string back into a
// DataType. It accepts the same surface produced by DataType.String.
func ParseDataType(s string) (DataType, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	switch {
	case lower == "bool":
		return Bool(), nil
	case lower == "int":
		return Int(), nil
	case lower == "bigint":
		return BigInt(), nil
	case lower == "text":
		return Text(), nil
	case lower == "date":
		return Date(), nil
	case lower == "timestamp":
		return Timestamp(), nil
	case lower == "uuid":
		return UUID(), nil
	case lower == "json":
		return JSON(), nil
	case lower == "blob":
		return Blob(), nil
	case strings.HasPrefix(lower, "decimal(") && strings.HasSuffix(lower, ")"):
		body := lower[len("decimal(") : len(lower)-1]
		parts := strings.SplitN(body, ",", 2)
		if len(parts) != 2 {
			return DataType{}, fmt.Errorf("malformed decimal type '%s'", s)
		}
		precision, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
		if err != nil {
			return DataType{}, fmt.Errorf("malformed decimal precision in '%s'", s)
		}
		scale, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 32)
		if err != nil {
			return DataType{}, fmt.Errorf("malformed decimal scale in '%s'", s)
		}
		return Decimal(uint32(precision), uint32(scale)), nil
	case strings.HasPrefix(lower, "varchar(") && strings.HasSuffix(lower, ")"):
		body := lower[len("varchar(") : len(lower)-1]
		n, err := strconv.Atoi(strings.TrimSpace(body))
		if err != nil {
			return DataType{}, fmt.Errorf("malformed varchar length in '%s'", s)
		}
		return VarChar(n), nil
	default:
		return DataType{}, fmt.Errorf("unknown type '%s'", s)
	}
}
