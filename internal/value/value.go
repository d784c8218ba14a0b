package value

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MinBigInt and MaxBigInt bound BigInt to the engine's signed 128-bit range:
// -2^127 .. 2^127-1.
var (
	MinBigInt = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	MaxBigInt = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
)

// Value holds exactly one scalar of the kind named by its DataType. It is a
// flat tagged struct rather than an interface hierarchy: every operation
// that matters (encoding, ordering, equality) needs to see the concrete kind
// immediately, and a flat struct keeps Value usable as a plain comparable-ish
// value without type assertions at every call site.
type Value struct {
	Kind Kind

	BoolVal bool
	IntVal  int64 // Int only, signed 64-bit
	Big     *big.Int // BigInt only, signed 128-bit
	Dec     Dec
	Str     string // VarChar, Text, JSON (canonical encoding), UUID (canonical form)
	Time    time.Time
	Blob    []byte

	Null bool
}

func NullValue(kind Kind) Value { return Value{Kind: kind, Null: true} }

func BoolValue(b bool) Value   { return Value{Kind: KindBool, BoolVal: b} }
func IntValue(n int64) Value   { return Value{Kind: KindInt, IntVal: n} }

// BigIntValue wraps an arbitrary-precision integer as a BigInt value. The
// caller's big.Int is copied so later mutation of n cannot alias the Value.
func BigIntValue(n *big.Int) Value { return Value{Kind: KindBigInt, Big: new(big.Int).Set(n)} }

// BigIntValueFromInt64 is a convenience constructor for BigInt values built
// from a small literal, e.g. in tests or internal defaults.
func BigIntValueFromInt64(n int64) Value { return Value{Kind: KindBigInt, Big: big.NewInt(n)} }

func DecimalValue(d Dec) Value { return Value{Kind: KindDecimal, Dec: d} }
func VarCharValue(s string) Value { return Value{Kind: KindVarChar, Str: s} }
func TextValue(s string) Value    { return Value{Kind: KindText, Str: s} }
func BlobValue(b []byte) Value    { return Value{Kind: KindBlob, Blob: b} }

const dateLayout = "2006-01-02"
const timestampLayout = "2006-01-02 15:04:05"

// ParseScalarForKind parses a token against a bare Kind with no bounds
// checking (no decimal precision/scale, no varchar max length). It exists
// for contexts that only know a value's Kind, such as matching a WHERE
// predicate against an already-joined row set.
func ParseScalarForKind(kind Kind, token string) (Value, error) {
	switch kind {
	case KindDecimal:
		d, err := ParseDec(token)
		if err != nil {
			return Value{}, fmt.Errorf("Expected decimal but got '%s'", token)
		}
		return DecimalValue(d), nil
	case KindVarChar:
		return ParseValue(VarChar(1<<30), token)
	default:
		return ParseValue(DataType{Kind: kind}, token)
	}
}

// ParseValue parses a token against a column's declared type, producing the
// same error text the engine has always surfaced for bad literals.
func ParseValue(dt DataType, token string) (Value, error) {
	if token == "NULL" || token == "null" {
		return NullValue(dt.Kind), nil
	}
	switch dt.Kind {
	case KindBool:
		switch strings.ToLower(token) {
		case "true", "1":
			return BoolValue(true), nil
		case "false", "0":
			return BoolValue(false), nil
		}
		return Value{}, fmt.Errorf("Expected bool but got '%s'", token)
	case KindInt:
		n, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("Expected int but got '%s'", token)
		}
		return IntValue(n), nil
	case KindBigInt:
		n, ok := new(big.Int).SetString(strings.TrimSpace(token), 10)
		if !ok {
			return Value{}, fmt.Errorf("Expected bigint but got '%s'", token)
		}
		if n.Cmp(MinBigInt) < 0 || n.Cmp(MaxBigInt) > 0 {
			return Value{}, fmt.Errorf("Expected bigint but got '%s'", token)
		}
		return Value{Kind: KindBigInt, Big: n}, nil
	case KindDecimal:
		d, err := ParseDec(token)
		if err != nil {
			return Value{}, fmt.Errorf("Expected decimal but got '%s'", token)
		}
		if err := d.ValidateBounds(dt.Precision, dt.Scale); err != nil {
			return Value{}, err
		}
		return DecimalValue(d), nil
	case KindVarChar:
		if len(token) > dt.MaxLen {
			return Value{}, fmt.Errorf("Expected varchar(%d) but got length %d", dt.MaxLen, len(token))
		}
		return VarCharValue(token), nil
	case KindText:
		return TextValue(token), nil
	case KindDate:
		t, err := time.Parse(dateLayout, token)
		if err != nil {
			return Value{}, fmt.Errorf("Expected date YYYY-MM-DD but got '%s'", token)
		}
		return Value{Kind: KindDate, Time: t}, nil
	case KindTimestamp:
		normalized := strings.Replace(token, "T", " ", 1)
		t, err := time.Parse(timestampLayout, normalized)
		if err != nil {
			return Value{}, fmt.Errorf("Expected timestamp 'YYYY-MM-DD HH:MM:SS' but got '%s'", token)
		}
		return Value{Kind: KindTimestamp, Time: t}, nil
	case KindUUID:
		u, err := uuid.Parse(token)
		if err != nil {
			return Value{}, fmt.Errorf("Expected uuid but got '%s'", token)
		}
		return Value{Kind: KindUUID, Str: u.String()}, nil
	case KindJSON:
		var probe any
		if err := json.Unmarshal([]byte(token), &probe); err != nil {
			return Value{}, fmt.Errorf("Expected valid JSON but got '%s'", token)
		}
		canon, err := json.Marshal(probe)
		if err != nil {
			return Value{}, fmt.Errorf("Expected valid JSON but got '%s'", token)
		}
		return Value{Kind: KindJSON, Str: string(canon)}, nil
	case KindBlob:
		if !strings.HasPrefix(token, "0x") && !strings.HasPrefix(token, "0X") {
			return Value{}, fmt.Errorf("Expected hex blob (e.g. 0xDEADBEEF) but got '%s'", token)
		}
		raw, err := hex.DecodeString(token[2:])
		if err != nil {
			return Value{}, fmt.Errorf("Expected hex blob (e.g. 0xDEADBEEF) but got '%s'", token)
		}
		return BlobValue(raw), nil
	default:
		return Value{}, fmt.Errorf("unknown type for token '%s'", token)
	}
}

// ValueToString renders a Value in the engine's canonical textual form, used
// both for result rendering and for the key-encoding that index lookups and
// equality comparisons build on.
func ValueToString(v Value) string {
	if v.Null {
		return "null"
	}
	switch v.Kind {
	case KindBool:
		if v.BoolVal {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.IntVal, 10)
	case KindBigInt:
		return v.Big.String()
	case KindDecimal:
		return v.Dec.String()
	case KindVarChar, KindText, KindUUID, KindJSON:
		return v.Str
	case KindDate:
		return v.Time.Format(dateLayout)
	case KindTimestamp:
		return v.Time.Format(timestampLayout)
	case KindBlob:
		return "0x" + strings.ToUpper(hex.EncodeToString(v.Blob))
	default:
		return ""
	}
}

// Equal reports whether two values of the same kind represent the same
// logical datum. Two NULLs are never equal to anything, including each
// other, matching SQL null semantics used throughout constraint checking.
func Equal(a, b Value) bool {
	if a.Null || b.Null {
		return false
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindBool:
		return a.BoolVal == b.BoolVal
	case KindInt:
		return a.IntVal == b.IntVal
	case KindBigInt:
		return a.Big.Cmp(b.Big) == 0
	case KindDecimal:
		return a.Dec.Cmp(b.Dec) == 0
	case KindVarChar, KindText, KindUUID, KindJSON:
		return a.Str == b.Str
	case KindDate, KindTimestamp:
		return a.Time.Equal(b.Time)
	case KindBlob:
		return bytes.Equal(a.Blob, b.Blob)
	default:
		return false
	}
}

// CompareOrder compares two non-null values of an orderable kind, returning
// -1/0/1. It errors for kinds that don't support gt/lt/gte/lte, matching the
// original engine's restriction to numeric and temporal types.
func CompareOrder(a, b Value) (int, error) {
	if a.Kind != b.Kind {
		return 0, fmt.Errorf("cannot compare values of different types")
	}
	switch a.Kind {
	case KindInt:
		switch {
		case a.IntVal < b.IntVal:
			return -1, nil
		case a.IntVal > b.IntVal:
			return 1, nil
		default:
			return 0, nil
		}
	case KindBigInt:
		return a.Big.Cmp(b.Big), nil
	case KindDecimal:
		return a.Dec.Cmp(b.Dec), nil
	case KindDate, KindTimestamp:
		switch {
		case a.Time.Before(b.Time):
			return -1, nil
		case a.Time.After(b.Time):
			return 1, nil
		default:
			return 0, nil
		}
	default:
		return 0, fmt.Errorf("Operator gt/lt/gte/lte is only valid for int|bigint|decimal|date|timestamp columns.")
	}
}

// CompareForOrder implements ORDER BY comparison semantics: NULL always
// sorts first regardless of direction, and values of mismatched or
// unorderable types compare as equal rather than erroring.
func CompareForOrder(a, b Value, asc bool) int {
	var ord int
	switch {
	case a.Null && b.Null:
		return 0
	case a.Null:
		return -1
	case b.Null:
		return 1
	default:
		c, err := CompareOrder(a, b)
		if err != nil {
			ord = 0
		} else {
			ord = c
		}
	}
	if !asc {
		ord = -ord
	}
	return ord
}

// CompareForMinMax extends CompareOrder with the remaining kinds MIN/MAX must
// support: booleans, text-like values, UUIDs, blobs, and JSON compare by
// their canonical string form.
func CompareForMinMax(a, b Value) (int, error) {
	switch a.Kind {
	case KindBool:
		if a.BoolVal == b.BoolVal {
			return 0, nil
		}
		if !a.BoolVal {
			return -1, nil
		}
		return 1, nil
	case KindVarChar, KindText, KindUUID, KindJSON:
		return strings.Compare(a.Str, b.Str), nil
	case KindBlob:
		return bytes.Compare(a.Blob, b.Blob), nil
	default:
		return CompareOrder(a, b)
	}
}
