package massupdate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRow_Accessors(t *testing.T) {
	row := NewRow(
		[]string{"id", "name", "score", "flag", "data", "missing"},
		LongValue(7), StringValue("alice"), DoubleValue(1.25), LongValue(1), BytesValue([]byte{9}), NullValue(),
	)

	assert.Equal(t, 6, row.Len())
	assert.Equal(t, int64(7), row.GetLong(1))
	assert.Equal(t, 7, row.GetInt(1))
	assert.Equal(t, 7.0, row.GetDouble(1))
	assert.Equal(t, "alice", row.GetString(2))
	assert.Equal(t, 1.25, row.GetDouble(3))
	assert.True(t, row.GetBoolean(4))
	assert.Equal(t, []byte{9}, row.GetBytes(5))

	// 可空访问器读到 NULL 不算错误
	assert.Nil(t, row.GetNullableString(6))
	assert.Nil(t, row.GetNullableLong(6))
	assert.Nil(t, row.GetNullableInt(6))
	assert.Nil(t, row.GetNullableDouble(6))
	assert.Nil(t, row.GetNullableBoolean(6))
	assert.Nil(t, row.GetNullableBytes(6))
	assert.True(t, row.Value(6).IsNull())
	assert.NoError(t, row.Err())

	v := row.GetNullableLong(1)
	require.NotNil(t, v)
	assert.Equal(t, int64(7), *v)
}

func TestRow_NullOnNonNullableAccessor(t *testing.T) {
	row := NewRow([]string{"value"}, NullValue())

	assert.Equal(t, int64(0), row.GetLong(1))
	err := row.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNullValue)
	assert.EqualError(t, err, "column 1 (value) as long: unexpected null value")

	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 1, fe.Ordinal)
	assert.Equal(t, KindLong, fe.Expected)
}

func TestRow_FirstErrorIsSticky(t *testing.T) {
	row := NewRow([]string{"a", "b"}, StringValue("x"), LongValue(1))

	assert.Equal(t, int64(0), row.GetLong(1))
	assert.ErrorIs(t, row.Err(), ErrUnexpectedType)

	// 之后的访问返回零值，错误保持不变
	assert.Equal(t, int64(0), row.GetLong(2))
	var fe *FieldError
	require.ErrorAs(t, row.Err(), &fe)
	assert.Equal(t, 1, fe.Ordinal)
}

func TestRow_OrdinalOutOfRange(t *testing.T) {
	row := NewRow([]string{"a"}, LongValue(1))

	assert.Equal(t, "", row.GetString(0))
	assert.ErrorIs(t, row.Err(), ErrOrdinal)

	row = NewRow([]string{"a"}, LongValue(1))
	row.GetString(2)
	assert.ErrorIs(t, row.Err(), ErrOrdinal)
}

func TestRow_IntRange(t *testing.T) {
	row := NewRow([]string{"big"}, LongValue(1<<40))
	assert.Equal(t, 0, row.GetInt(1))
	assert.ErrorIs(t, row.Err(), ErrUnexpectedType)
}
