package flake

import (
	"bytes"
	"fmt"
	"strconv"
)

// ValueKind discriminates the tagged union held in a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindMin            // sentinel: orders before every value
	KindInt
	KindFloat
	KindDecimal // arbitrary precision, normalized string form
	KindString
	KindBool
	KindBytes
	KindRef // subject reference
	KindJSON
	KindMax // sentinel: orders after every value
)

// Value is the object of a flake: a tagged union over the §3.1 object
// domain. The zero Value is null.
type Value struct {
	Kind ValueKind
	Int  int64
	Flt  float64
	Str  string
	Bool bool
	Byt  []byte
}

func Int(v int64) Value        { return Value{Kind: KindInt, Int: v} }
func Float(v float64) Value    { return Value{Kind: KindFloat, Flt: v} }
func Decimal(v string) Value   { return Value{Kind: KindDecimal, Str: v} }
func String(v string) Value    { return Value{Kind: KindString, Str: v} }
func Bool(v bool) Value        { return Value{Kind: KindBool, Bool: v} }
func Bytes(v []byte) Value     { return Value{Kind: KindBytes, Byt: v} }
func Ref(sid int64) Value      { return Value{Kind: KindRef, Int: sid} }
func JSONBlob(v string) Value  { return Value{Kind: KindJSON, Str: v} }
func MinValue() Value          { return Value{Kind: KindMin} }
func MaxValue() Value          { return Value{Kind: KindMax} }

// KindForDatatype maps a datatype id to the value kind it carries.
func KindForDatatype(dt int64) ValueKind {
	switch dt {
	case DtRef:
		return KindRef
	case DtString, DtUUID, DtURI:
		return KindString
	case DtBoolean:
		return KindBool
	case DtInstant, DtLong, DtInt:
		return KindInt
	case DtDouble, DtFloat:
		return KindFloat
	case DtBigDec:
		return KindDecimal
	case DtBytes:
		return KindBytes
	case DtJSON:
		return KindJSON
	default:
		return KindNull
	}
}

// IsRef reports whether the value is a subject reference.
func (v Value) IsRef() bool {
	return v.Kind == KindRef
}

// RefSID returns the referenced subject id. Only meaningful when IsRef.
func (v Value) RefSID() int64 {
	return v.Int
}

// Native returns the Go-native form of the value for projection.
func (v Value) Native() any {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Flt
	case KindDecimal, KindString, KindJSON:
		return v.Str
	case KindBool:
		return v.Bool
	case KindBytes:
		return v.Byt
	case KindRef:
		return v.Int
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindMin:
		return "<min>"
	case KindMax:
		return "<max>"
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Flt, 'g', -1, 64)
	case KindDecimal:
		return v.Str
	case KindString, KindJSON:
		return v.Str
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindBytes:
		return fmt.Sprintf("0x%x", v.Byt)
	case KindRef:
		return fmt.Sprintf("@%d", v.Int)
	default:
		return "?"
	}
}

// canonical is the deterministic string form used in group keys.
func (v Value) canonical() string {
	return fmt.Sprintf("%d|%s", v.Kind, v.String())
}

func (v Value) sizeBytes() int64 {
	switch v.Kind {
	case KindString, KindDecimal, KindJSON:
		return int64(len(v.Str)) + 16
	case KindBytes:
		return int64(len(v.Byt)) + 16
	default:
		return 16
	}
}

// CompareValues yields a strict total order over values of the same
// datatype. Cross-kind comparison falls back to kind rank so the order
// stays total even on malformed input; index comparators order by
// datatype id first, so same-rank comparison is the common case.
func CompareValues(a, b Value) int {
	if a.Kind == KindMin || b.Kind == KindMax {
		if a.Kind == b.Kind {
			return 0
		}
		return -1
	}
	if a.Kind == KindMax || b.Kind == KindMin {
		if a.Kind == b.Kind {
			return 0
		}
		return 1
	}
	if a.Kind != b.Kind {
		return int(a.Kind) - int(b.Kind)
	}
	switch a.Kind {
	case KindNull:
		return 0
	case KindInt, KindRef:
		return compareInt64(a.Int, b.Int)
	case KindFloat:
		switch {
		case a.Flt < b.Flt:
			return -1
		case a.Flt > b.Flt:
			return 1
		default:
			return 0
		}
	case KindDecimal:
		return compareDecimalStrings(a.Str, b.Str)
	case KindString, KindJSON:
		return compareStrings(a.Str, b.Str)
	case KindBool:
		if a.Bool == b.Bool {
			return 0
		}
		if !a.Bool {
			return -1
		}
		return 1
	case KindBytes:
		return bytes.Compare(a.Byt, b.Byt)
	default:
		return 0
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareDecimalStrings orders normalized decimal strings numerically:
// sign, then magnitude by integer-part length, then lexically digit by
// digit with fraction padding.
func compareDecimalStrings(a, b string) int {
	na, nb := parseDec(a), parseDec(b)
	if na.neg != nb.neg {
		if na.neg {
			return -1
		}
		return 1
	}
	c := compareDecMagnitude(na, nb)
	if na.neg {
		return -c
	}
	return c
}

type dec struct {
	neg  bool
	ip   string // integer digits, no leading zeros
	fp   string // fraction digits, no trailing zeros
}

func parseDec(s string) dec {
	var d dec
	if len(s) > 0 && (s[0] == '-' || s[0] == '+') {
		d.neg = s[0] == '-'
		s = s[1:]
	}
	ip := s
	if i := indexByte(s, '.'); i >= 0 {
		ip, d.fp = s[:i], s[i+1:]
	}
	for len(ip) > 1 && ip[0] == '0' {
		ip = ip[1:]
	}
	for len(d.fp) > 0 && d.fp[len(d.fp)-1] == '0' {
		d.fp = d.fp[:len(d.fp)-1]
	}
	d.ip = ip
	if d.ip == "" {
		d.ip = "0"
	}
	if d.ip == "0" && d.fp == "" {
		d.neg = false
	}
	return d
}

func compareDecMagnitude(a, b dec) int {
	if len(a.ip) != len(b.ip) {
		return len(a.ip) - len(b.ip)
	}
	if c := compareStrings(a.ip, b.ip); c != 0 {
		return c
	}
	return compareStrings(a.fp, b.fp)
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}
