package massupdate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueOf(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		src  any
		want Value
	}{
		{"nil", nil, NullValue()},
		{"int64", int64(42), LongValue(42)},
		{"int32", int32(7), IntValue(7)},
		{"float64", 1.5, DoubleValue(1.5)},
		{"string", "abc", StringValue("abc")},
		{"bytes", []byte{1, 2}, BytesValue([]byte{1, 2})},
		{"bool", true, BoolValue(true)},
		{"time", ts, StringValue("2026-01-02T03:04:05Z")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := valueOf(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := valueOf(struct{}{})
	assert.ErrorIs(t, err, ErrUnexpectedType)
}

func TestValue_Conversions(t *testing.T) {
	// 整数可以作为浮点数读取，整数值的浮点数也可以作为整数读取
	l, ok := DoubleValue(3).asLong()
	assert.True(t, ok)
	assert.Equal(t, int64(3), l)

	_, ok = DoubleValue(3.5).asLong()
	assert.False(t, ok)

	// float64(math.MaxInt64) 等于 2^63，已经超出 int64
	_, ok = DoubleValue(math.MaxInt64).asLong()
	assert.False(t, ok)
	l, ok = DoubleValue(math.MinInt64).asLong()
	assert.True(t, ok)
	assert.Equal(t, int64(math.MinInt64), l)

	_, ok = LongValue(1 << 40).asInt()
	assert.False(t, ok, "超出 32 位范围")

	b, ok := LongValue(1).asBool()
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = LongValue(2).asBool()
	assert.False(t, ok)

	s, ok := BytesValue([]byte("hi")).asString()
	assert.True(t, ok)
	assert.Equal(t, "hi", s)

	_, ok = StringValue("1").asLong()
	assert.False(t, ok, "字符串不做隐式数字转换")
}

func TestValue_String(t *testing.T) {
	assert.Equal(t, "NULL", NullValue().String())
	assert.Equal(t, `"a"`, StringValue("a").String())
	assert.Equal(t, "12", IntValue(12).String())
	assert.Equal(t, "true", BoolValue(true).String())
	assert.Equal(t, "bytes(3)", BytesValue([]byte("abc")).String())
	assert.True(t, BytesValue(nil).IsNull())
	assert.Equal(t, "long", KindLong.String())
}
