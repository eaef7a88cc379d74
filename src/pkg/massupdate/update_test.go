package massupdate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountPlaceholders(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"none", "UPDATE t SET a = 1", 0},
		{"plain", "UPDATE t SET a = ?, b = ? WHERE id = ?", 3},
		{"numbered", "UPDATE t SET a = ?2 WHERE id = ?1", 2},
		{"dollar", "UPDATE t SET a = $1, b = $3 WHERE id = $2", 3},
		{"string literal", "UPDATE t SET a = '?', b = ? WHERE c = 'it''s ?'", 1},
		{"quoted identifier", `UPDATE "weird?" SET a = ?`, 1},
		{"bracket identifier", "UPDATE [t?] SET a = ?", 1},
		{"line comment", "UPDATE t SET a = ? -- where b = ?\nWHERE id = ?", 2},
		{"block comment", "UPDATE t /* ? ? */ SET a = ?", 1},
		{"plain after numbered", "INSERT INTO t VALUES (?5, ?)", 6},
		{"numbered after plain", "UPDATE t SET a = ?, b = ? WHERE id = ?1", 2},
		{"numbered below plain", "INSERT INTO t VALUES (?, ?, ?, ?2)", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := countPlaceholders(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCountPlaceholders_Unterminated(t *testing.T) {
	_, err := countPlaceholders("UPDATE t SET a = 'oops")
	assert.Error(t, err)

	_, err = countPlaceholders("UPDATE t /* SET a = ?")
	assert.Error(t, err)

	_, err = countPlaceholders("UPDATE t SET a = ?0")
	assert.Error(t, err)
}

func TestUpdate_Bind(t *testing.T) {
	u := NewUpdate(3)
	assert.Equal(t, 3, u.Len())

	u.SetString(1, "a")
	u.SetNullableLong(2, nil)
	u.SetBoolean(3, true)

	args, err := u.args()
	require.NoError(t, err)
	assert.Equal(t, []any{"a", nil, true}, args)

	v, ok := u.Param(1)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestUpdate_Unbound(t *testing.T) {
	u := NewUpdate(2)
	u.SetLong(1, 10)

	_, err := u.args()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnbound)
	assert.EqualError(t, err, "parameter 2: parameter not bound")

	_, ok := u.Param(2)
	assert.False(t, ok)
}

func TestUpdate_OrdinalOutOfRange(t *testing.T) {
	u := NewUpdate(1)
	u.SetInt(2, 1)
	u.SetInt(1, 1)

	assert.ErrorIs(t, u.Err(), ErrOrdinal)
	_, err := u.args()
	assert.ErrorIs(t, err, ErrOrdinal)
}

func TestUpdate_Reset(t *testing.T) {
	u := NewUpdate(1)
	u.SetInt(5, 1)
	require.Error(t, u.Err())

	u.reset()
	assert.NoError(t, u.Err())
	_, ok := u.Param(1)
	assert.False(t, ok)

	u.SetValue(1, DoubleValue(2.5))
	args, err := u.args()
	require.NoError(t, err)
	assert.Equal(t, []any{2.5}, args)
}

func TestUpdate_ArgsIsCopy(t *testing.T) {
	u := NewUpdate(1)
	u.SetInt(1, 1)
	args, err := u.args()
	require.NoError(t, err)

	u.reset()
	u.SetInt(1, 2)
	assert.Equal(t, []any{int64(1)}, args)
}

func TestUpdate_BytesAreCopied(t *testing.T) {
	u := NewUpdate(2)
	buf := []byte("first")
	u.SetBytes(1, buf)
	u.SetValue(2, BytesValue(buf))
	args, err := u.args()
	require.NoError(t, err)

	copy(buf, "XXXXX")
	assert.Equal(t, []byte("first"), args[0])
	assert.Equal(t, []byte("first"), args[1])
}
