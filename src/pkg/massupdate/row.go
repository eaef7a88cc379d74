package massupdate

// Row 游标当前行，按 select 列顺序以从 1 开始的序号访问
//
// Row 在迭代之间被复用，不能在 Handler 调用结束后继续持有。
// 访问违反约定时（非空访问器读到 NULL、类型不兼容、序号越界），
// 第一个错误会被记录下来，之后所有访问器都返回零值，
// MassUpdate 在 Handler 返回后立即以 ErrRead 失败。
type Row struct {
	columns []string
	values  []Value
	err     error
}

// Len 列数
func (r *Row) Len() int { return len(r.values) }

// Columns 列名（驱动返回的顺序）
func (r *Row) Columns() []string { return r.columns }

// Err 返回第一个访问错误
func (r *Row) Err() error { return r.err }

// Value 返回原始的带标签值
func (r *Row) Value(ordinal int) Value {
	v, _ := r.cell(ordinal, KindNull, true)
	return v
}

func (r *Row) cell(ordinal int, expected Kind, nullable bool) (Value, bool) {
	if r.err != nil {
		return Value{}, false
	}
	if ordinal < 1 || ordinal > len(r.values) {
		r.fail(ordinal, expected, ErrOrdinal)
		return Value{}, false
	}
	v := r.values[ordinal-1]
	if v.IsNull() {
		if !nullable {
			r.fail(ordinal, expected, ErrNullValue)
		}
		return Value{}, false
	}
	return v, true
}

func (r *Row) fail(ordinal int, expected Kind, err error) {
	fe := &FieldError{Ordinal: ordinal, Expected: expected, Err: err}
	if ordinal >= 1 && ordinal <= len(r.columns) {
		fe.Column = r.columns[ordinal-1]
	}
	r.err = fe
}

func (r *Row) GetString(ordinal int) string {
	p := r.getString(ordinal, false)
	if p == nil {
		return ""
	}
	return *p
}

func (r *Row) GetNullableString(ordinal int) *string {
	return r.getString(ordinal, true)
}

func (r *Row) getString(ordinal int, nullable bool) *string {
	v, ok := r.cell(ordinal, KindString, nullable)
	if !ok {
		return nil
	}
	s, ok := v.asString()
	if !ok {
		r.fail(ordinal, KindString, ErrUnexpectedType)
		return nil
	}
	return &s
}

// GetInt 读取 32 位整数，超出范围视为类型不兼容
func (r *Row) GetInt(ordinal int) int {
	p := r.getInt(ordinal, false)
	if p == nil {
		return 0
	}
	return *p
}

func (r *Row) GetNullableInt(ordinal int) *int {
	return r.getInt(ordinal, true)
}

func (r *Row) getInt(ordinal int, nullable bool) *int {
	v, ok := r.cell(ordinal, KindInt, nullable)
	if !ok {
		return nil
	}
	i, ok := v.asInt()
	if !ok {
		r.fail(ordinal, KindInt, ErrUnexpectedType)
		return nil
	}
	n := int(i)
	return &n
}

func (r *Row) GetLong(ordinal int) int64 {
	p := r.getLong(ordinal, false)
	if p == nil {
		return 0
	}
	return *p
}

func (r *Row) GetNullableLong(ordinal int) *int64 {
	return r.getLong(ordinal, true)
}

func (r *Row) getLong(ordinal int, nullable bool) *int64 {
	v, ok := r.cell(ordinal, KindLong, nullable)
	if !ok {
		return nil
	}
	l, ok := v.asLong()
	if !ok {
		r.fail(ordinal, KindLong, ErrUnexpectedType)
		return nil
	}
	return &l
}

func (r *Row) GetDouble(ordinal int) float64 {
	p := r.getDouble(ordinal, false)
	if p == nil {
		return 0
	}
	return *p
}

func (r *Row) GetNullableDouble(ordinal int) *float64 {
	return r.getDouble(ordinal, true)
}

func (r *Row) getDouble(ordinal int, nullable bool) *float64 {
	v, ok := r.cell(ordinal, KindDouble, nullable)
	if !ok {
		return nil
	}
	f, ok := v.asDouble()
	if !ok {
		r.fail(ordinal, KindDouble, ErrUnexpectedType)
		return nil
	}
	return &f
}

func (r *Row) GetBytes(ordinal int) []byte {
	return r.getBytes(ordinal, false)
}

// GetNullableBytes NULL 返回 nil
func (r *Row) GetNullableBytes(ordinal int) []byte {
	return r.getBytes(ordinal, true)
}

func (r *Row) getBytes(ordinal int, nullable bool) []byte {
	v, ok := r.cell(ordinal, KindBytes, nullable)
	if !ok {
		return nil
	}
	b, ok := v.asBytes()
	if !ok {
		r.fail(ordinal, KindBytes, ErrUnexpectedType)
		return nil
	}
	return b
}

func (r *Row) GetBoolean(ordinal int) bool {
	p := r.getBool(ordinal, false)
	return p != nil && *p
}

func (r *Row) GetNullableBoolean(ordinal int) *bool {
	return r.getBool(ordinal, true)
}

func (r *Row) getBool(ordinal int, nullable bool) *bool {
	v, ok := r.cell(ordinal, KindBool, nullable)
	if !ok {
		return nil
	}
	b, ok := v.asBool()
	if !ok {
		r.fail(ordinal, KindBool, ErrUnexpectedType)
		return nil
	}
	return &b
}

// NewRow 用给定的列和值构造一行，便于在测试中直接调用 Handler
func NewRow(columns []string, values ...Value) *Row {
	return &Row{columns: columns, values: values}
}
