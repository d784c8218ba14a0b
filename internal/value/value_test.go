package value

import "testing"

func TestParseDataTypeRoundTrip(t *testing.T) {
	cases := []DataType{
		Bool(), Int(), BigInt(), Text(), Date(), Timestamp(), UUID(), JSON(), Blob(),
		Decimal(10, 2), VarChar(255),
	}
	for _, dt := range cases {
		s := dt.String()
		got, err := ParseDataType(s)
		if err != nil {
			t.Fatalf("ParseDataType(%q): %v", s, err)
		}
		if !got.Equal(dt) {
			t.Errorf("round trip %q: got %+v, want %+v", s, got, dt)
		}
	}
}

func TestParseDataTypeUnknown(t *testing.T) {
	if _, err := ParseDataType("nonsense"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestParseValueNull(t *testing.T) {
	v, err := ParseValue(Int(), "NULL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Null {
		t.Error("expected NULL token to produce a null value")
	}
	if ValueToString(v) != "null" {
		t.Errorf("expected lowercase null rendering, got %q", ValueToString(v))
	}
}

func TestParseValueInt(t *testing.T) {
	v, err := ParseValue(Int(), "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.IntVal != 42 {
		t.Errorf("expected 42, got %d", v.IntVal)
	}
	if _, err := ParseValue(Int(), "not-a-number"); err == nil {
		t.Error("expected error for invalid int literal")
	}
}

func TestParseValueIntFullRange(t *testing.T) {
	v, err := ParseValue(Int(), "3000000000")
	if err != nil {
		t.Fatalf("unexpected error parsing a value beyond 32 bits: %v", err)
	}
	if v.IntVal != 3000000000 {
		t.Errorf("expected 3000000000, got %d", v.IntVal)
	}
	v, err = ParseValue(Int(), "9223372036854775807")
	if err != nil {
		t.Fatalf("unexpected error parsing MaxInt64: %v", err)
	}
	if v.IntVal != 9223372036854775807 {
		t.Errorf("expected MaxInt64, got %d", v.IntVal)
	}
}

func TestParseValueBigIntBeyond64Bits(t *testing.T) {
	const big128 = "170141183460469231731687303715884105727" // 2^127 - 1
	v, err := ParseValue(BigInt(), big128)
	if err != nil {
		t.Fatalf("unexpected error parsing a 128-bit literal: %v", err)
	}
	if ValueToString(v) != big128 {
		t.Errorf("expected round trip of %s, got %s", big128, ValueToString(v))
	}

	const tooBig = "170141183460469231731687303715884105728" // 2^127
	if _, err := ParseValue(BigInt(), tooBig); err == nil {
		t.Error("expected a literal beyond the signed 128-bit range to be rejected")
	}
}

func TestParseValueVarCharBounds(t *testing.T) {
	if _, err := ParseValue(VarChar(3), "abcd"); err == nil {
		t.Error("expected error for varchar exceeding max length")
	}
	v, err := ParseValue(VarChar(3), "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Str != "abc" {
		t.Errorf("expected abc, got %q", v.Str)
	}
}

func TestValueToStringBool(t *testing.T) {
	v, _ := ParseValue(Bool(), "1")
	if ValueToString(v) != "true" {
		t.Errorf("expected true, got %q", ValueToString(v))
	}
	v, _ = ParseValue(Bool(), "false")
	if ValueToString(v) != "false" {
		t.Errorf("expected false, got %q", ValueToString(v))
	}
}

func TestEqualNullNeverEqual(t *testing.T) {
	a := NullValue(KindInt)
	b := NullValue(KindInt)
	if Equal(a, b) {
		t.Error("two NULLs must never be equal")
	}
}

func TestEqualSameKind(t *testing.T) {
	a := IntValue(5)
	b := IntValue(5)
	c := IntValue(6)
	if !Equal(a, b) {
		t.Error("expected equal int values to compare equal")
	}
	if Equal(a, c) {
		t.Error("expected differing int values to compare unequal")
	}
}

func TestEqualAndCompareOrderBigInt(t *testing.T) {
	a, err := ParseValue(BigInt(), "170141183460469231731687303715884105727")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ParseValue(BigInt(), "170141183460469231731687303715884105727")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, err := ParseValue(BigInt(), "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Equal(a, b) {
		t.Error("expected equal bigint values to compare equal")
	}
	if Equal(a, c) {
		t.Error("expected differing bigint values to compare unequal")
	}
	cmp, err := CompareOrder(c, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmp >= 0 {
		t.Error("expected 1 < 2^127-1")
	}
}

func TestCompareOrderMismatchedKinds(t *testing.T) {
	if _, err := CompareOrder(IntValue(1), VarCharValue("x")); err == nil {
		t.Error("expected error comparing mismatched kinds")
	}
}

func TestCompareOrderUnorderableKind(t *testing.T) {
	if _, err := CompareOrder(BoolValue(true), BoolValue(false)); err == nil {
		t.Error("expected error ordering bool values")
	}
}

func TestCompareForOrderNullsFirst(t *testing.T) {
	n := NullValue(KindInt)
	v := IntValue(1)
	if CompareForOrder(n, v, true) >= 0 {
		t.Error("expected NULL to sort before a value ascending")
	}
	if CompareForOrder(n, v, false) >= 0 {
		t.Error("expected NULL to sort first regardless of direction")
	}
}

func TestDecArithmetic(t *testing.T) {
	a, err := ParseDec("12.340")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Normalize().String() != "12.34" {
		t.Errorf("expected normalized 12.34, got %q", a.Normalize().String())
	}

	b, _ := ParseDec("0.66")
	sum := a.Add(b)
	if sum.String() != "13.000" && sum.Normalize().String() != "13" {
		t.Errorf("expected sum to normalize to 13, got %q", sum.Normalize().String())
	}
}

func TestDecCmp(t *testing.T) {
	a, _ := ParseDec("1.5")
	b, _ := ParseDec("1.50")
	if a.Cmp(b) != 0 {
		t.Error("expected 1.5 and 1.50 to compare equal at different scales")
	}
	c, _ := ParseDec("1.6")
	if a.Cmp(c) >= 0 {
		t.Error("expected 1.5 < 1.6")
	}
}

func TestDecValidateBounds(t *testing.T) {
	d, _ := ParseDec("123.45")
	if err := d.ValidateBounds(5, 2); err != nil {
		t.Errorf("expected 123.45 to fit precision 5 scale 2, got %v", err)
	}
	if err := d.ValidateBounds(4, 2); err == nil {
		t.Error("expected precision overflow error")
	}
	if err := d.ValidateBounds(5, 1); err == nil {
		t.Error("expected scale overflow error")
	}
}

func TestDecDivCount(t *testing.T) {
	sum, _ := ParseDec("10")
	avg := sum.DivCount(4, 2)
	if avg.Scale != 2 || avg.String() != "2.5" {
		t.Errorf("expected 2.5 at scale 2, got %q at scale %d", avg.String(), avg.Scale)
	}
}

func TestParseDecInvalid(t *testing.T) {
	if _, err := ParseDec(""); err == nil {
		t.Error("expected error for empty decimal literal")
	}
	if _, err := ParseDec("12.3.4"); err == nil {
		t.Error("expected error for malformed decimal literal")
	}
}
