package massupdate

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind 单元格值的类型标签
type Kind uint8

const (
	// KindNull 空值
	KindNull Kind = iota
	// KindString 字符串
	KindString
	// KindInt 32 位整数
	KindInt
	// KindLong 64 位整数
	KindLong
	// KindDouble 浮点数
	KindDouble
	// KindBytes 二进制数据
	KindBytes
	// KindBool 布尔值
	KindBool
)

var kindNames = [...]string{
	KindNull:   "null",
	KindString: "string",
	KindInt:    "int",
	KindLong:   "long",
	KindDouble: "double",
	KindBytes:  "bytes",
	KindBool:   "bool",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value 带类型标签的单元格值，零值为 NULL
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    []byte
}

func NullValue() Value { return Value{} }
func StringValue(s string) Value { return Value{kind: KindString, s: s} }
func IntValue(i int32) Value { return Value{kind: KindInt, i: int64(i)} }
func LongValue(i int64) Value { return Value{kind: KindLong, i: i} }
func DoubleValue(f float64) Value { return Value{kind: KindDouble, f: f} }

// BytesValue nil 切片视为 NULL
func BytesValue(b []byte) Value {
	if b == nil {
		return Value{}
	}
	return Value{kind: KindBytes, b: b}
}

func BoolValue(v bool) Value {
	if v {
		return Value{kind: KindBool, i: 1}
	}
	return Value{kind: KindBool}
}

// Kind 返回值的类型标签
func (v Value) Kind() Kind { return v.kind }

// IsNull 是否为空值
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindString:
		return strconv.Quote(v.s)
	case KindInt, KindLong:
		return strconv.FormatInt(v.i, 10)
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.b))
	case KindBool:
		return strconv.FormatBool(v.i != 0)
	}
	return v.kind.String()
}

// driverValue 转换为 database/sql 可接受的参数
func (v Value) driverValue() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt, KindLong:
		return v.i
	case KindDouble:
		return v.f
	case KindBytes:
		return v.b
	case KindBool:
		return v.i != 0
	}
	return nil
}

func (v Value) asString() (string, bool) {
	switch v.kind {
	case KindString:
		return v.s, true
	case KindBytes:
		return string(v.b), true
	}
	return "", false
}

func (v Value) asLong() (int64, bool) {
	switch v.kind {
	case KindInt, KindLong, KindBool:
		return v.i, true
	case KindDouble:
		if v.f == math.Trunc(v.f) && v.f >= math.MinInt64 && v.f < 0x1p63 {
			return int64(v.f), true
		}
	}
	return 0, false
}

func (v Value) asInt() (int32, bool) {
	l, ok := v.asLong()
	if !ok || l < math.MinInt32 || l > math.MaxInt32 {
		return 0, false
	}
	return int32(l), true
}

func (v Value) asDouble() (float64, bool) {
	switch v.kind {
	case KindDouble:
		return v.f, true
	case KindInt, KindLong:
		return float64(v.i), true
	}
	return 0, false
}

func (v Value) asBytes() ([]byte, bool) {
	switch v.kind {
	case KindBytes:
		return v.b, true
	case KindString:
		return []byte(v.s), true
	}
	return nil, false
}

// sqlite 没有原生布尔类型，0/1 整数同样接受
func (v Value) asBool() (bool, bool) {
	switch v.kind {
	case KindBool:
		return v.i != 0, true
	case KindInt, KindLong:
		if v.i == 0 || v.i == 1 {
			return v.i == 1, true
		}
	}
	return false, false
}

// valueOf 将驱动扫描出的原始值转换为 Value
func valueOf(src any) (Value, error) {
	switch x := src.(type) {
	case nil:
		return NullValue(), nil
	case int64:
		return LongValue(x), nil
	case int32:
		return IntValue(x), nil
	case int:
		return LongValue(int64(x)), nil
	case float64:
		return DoubleValue(x), nil
	case float32:
		return DoubleValue(float64(x)), nil
	case string:
		return StringValue(x), nil
	case []byte:
		return Value{kind: KindBytes, b: x}, nil
	case bool:
		return BoolValue(x), nil
	case time.Time:
		return StringValue(x.Format(time.RFC3339Nano)), nil
	}
	return Value{}, fmt.Errorf("%w: driver value of type %T", ErrUnexpectedType, src)
}
