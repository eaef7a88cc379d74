package massupdate

import (
	"bytes"
	"fmt"
)

// Update 写语句的参数绑定器，槽位与占位符顺序一一对应，序号从 1 开始
//
// 每处理一行之前都会被重置，Handler 返回 Apply 时所有槽位都必须已绑定。
type Update struct {
	params []any
	bound  []bool
	err    error
}

func newUpdate(arity int) *Update {
	return &Update{
		params: make([]any, arity),
		bound:  make([]bool, arity),
	}
}

// NewUpdate 构造指定参数个数的绑定器，便于在测试中直接调用 Handler
func NewUpdate(arity int) *Update {
	return newUpdate(arity)
}

// Len 参数个数
func (u *Update) Len() int { return len(u.params) }

// Err 返回第一个绑定错误
func (u *Update) Err() error { return u.err }

// Param 返回已绑定的参数值，未绑定或越界时 ok 为 false
func (u *Update) Param(ordinal int) (any, bool) {
	if ordinal < 1 || ordinal > len(u.params) || !u.bound[ordinal-1] {
		return nil, false
	}
	return u.params[ordinal-1], true
}

func (u *Update) reset() {
	for i := range u.params {
		u.params[i] = nil
		u.bound[i] = false
	}
	u.err = nil
}

func (u *Update) set(ordinal int, kind Kind, v any) {
	if u.err != nil {
		return
	}
	if ordinal < 1 || ordinal > len(u.params) {
		u.err = &FieldError{Ordinal: ordinal, Expected: kind, Err: ErrOrdinal}
		return
	}
	// 字节切片在入队后仍可能被调用方复用
	if b, ok := v.([]byte); ok {
		v = bytes.Clone(b)
	}
	u.params[ordinal-1] = v
	u.bound[ordinal-1] = true
}

// args 校验所有槽位均已绑定，并返回参数的副本
func (u *Update) args() ([]any, error) {
	if u.err != nil {
		return nil, u.err
	}
	for i, ok := range u.bound {
		if !ok {
			return nil, &FieldError{Ordinal: i + 1, Err: ErrUnbound}
		}
	}
	out := make([]any, len(u.params))
	copy(out, u.params)
	return out, nil
}

func (u *Update) SetNull(ordinal int) {
	u.set(ordinal, KindNull, nil)
}

func (u *Update) SetValue(ordinal int, v Value) {
	u.set(ordinal, v.Kind(), v.driverValue())
}

func (u *Update) SetString(ordinal int, v string) {
	u.set(ordinal, KindString, v)
}

func (u *Update) SetNullableString(ordinal int, v *string) {
	if v == nil {
		u.set(ordinal, KindString, nil)
		return
	}
	u.set(ordinal, KindString, *v)
}

func (u *Update) SetInt(ordinal int, v int) {
	u.set(ordinal, KindInt, int64(v))
}

func (u *Update) SetNullableInt(ordinal int, v *int) {
	if v == nil {
		u.set(ordinal, KindInt, nil)
		return
	}
	u.set(ordinal, KindInt, int64(*v))
}

func (u *Update) SetLong(ordinal int, v int64) {
	u.set(ordinal, KindLong, v)
}

func (u *Update) SetNullableLong(ordinal int, v *int64) {
	if v == nil {
		u.set(ordinal, KindLong, nil)
		return
	}
	u.set(ordinal, KindLong, *v)
}

func (u *Update) SetDouble(ordinal int, v float64) {
	u.set(ordinal, KindDouble, v)
}

func (u *Update) SetNullableDouble(ordinal int, v *float64) {
	if v == nil {
		u.set(ordinal, KindDouble, nil)
		return
	}
	u.set(ordinal, KindDouble, *v)
}

// SetBytes nil 写入 NULL
func (u *Update) SetBytes(ordinal int, v []byte) {
	if v == nil {
		u.set(ordinal, KindBytes, nil)
		return
	}
	u.set(ordinal, KindBytes, v)
}

func (u *Update) SetBoolean(ordinal int, v bool) {
	u.set(ordinal, KindBool, v)
}

func (u *Update) SetNullableBoolean(ordinal int, v *bool) {
	if v == nil {
		u.set(ordinal, KindBool, nil)
		return
	}
	u.set(ordinal, KindBool, *v)
}

// countPlaceholders 统计 SQL 需要的参数个数（?、?NNN、$N），
// 忽略字符串字面量、引号标识符和注释中的字符。
// 与 SQLite 一致，不带序号的 ? 取目前出现过的最大序号加一。
func countPlaceholders(query string) (int, error) {
	last := 0
	n := len(query)
	for i := 0; i < n; i++ {
		switch c := query[i]; c {
		case '\'', '"', '`':
			j := i + 1
			for ; j < n; j++ {
				if query[j] == c {
					if j+1 < n && query[j+1] == c {
						j++
						continue
					}
					break
				}
			}
			if j >= n {
				return 0, fmt.Errorf("unterminated quote at offset %d", i)
			}
			i = j
		case '[':
			for i < n && query[i] != ']' {
				i++
			}
		case '-':
			if i+1 < n && query[i+1] == '-' {
				for i < n && query[i] != '\n' {
					i++
				}
			}
		case '/':
			if i+1 < n && query[i+1] == '*' {
				end := i + 2
				for end+1 < n && !(query[end] == '*' && query[end+1] == '/') {
					end++
				}
				if end+1 >= n {
					return 0, fmt.Errorf("unterminated comment at offset %d", i)
				}
				i = end + 1
			}
		case '?', '$':
			j := i + 1
			num := 0
			for j < n && query[j] >= '0' && query[j] <= '9' {
				num = num*10 + int(query[j]-'0')
				j++
			}
			switch {
			case j > i+1:
				if num == 0 {
					return 0, fmt.Errorf("placeholder index 0 at offset %d", i)
				}
				if num > last {
					last = num
				}
				i = j - 1
			case c == '?':
				last++
			}
		}
	}
	return last, nil
}
