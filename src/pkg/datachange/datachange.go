package datachange

import (
	"context"
	"time"

	"github.com/bililive-go/datachange/src/pkg/massupdate"
)

// DataChange 一个具名的数据变更步骤
type DataChange interface {
	Name() string
	Execute(ctx context.Context, dc *Context) error
}

// HandlerFactory 用步骤统一的时间构造行处理函数
type HandlerFactory func(now time.Time) massupdate.Handler

// MassUpdateChange 由单个 MassUpdate 组成的步骤
type MassUpdateChange struct {
	name       string
	spec       massupdate.Spec
	newHandler HandlerFactory
}

func NewMassUpdateChange(name string, spec massupdate.Spec, newHandler HandlerFactory) *MassUpdateChange {
	return &MassUpdateChange{
		name:       name,
		spec:       spec,
		newHandler: newHandler,
	}
}

func (c *MassUpdateChange) Name() string { return c.name }

func (c *MassUpdateChange) Execute(ctx context.Context, dc *Context) error {
	m, err := dc.PrepareMassUpdate(c.spec)
	if err != nil {
		return err
	}
	_, err = m.Execute(ctx, c.newHandler(dc.Now()))
	return err
}

type funcChange struct {
	name string
	fn   func(ctx context.Context, dc *Context) error
}

// Func 用函数定义步骤，适合一个步骤内包含多个 MassUpdate 或额外 DDL 的情况
func Func(name string, fn func(ctx context.Context, dc *Context) error) DataChange {
	return &funcChange{name: name, fn: fn}
}

func (c *funcChange) Name() string { return c.name }

func (c *funcChange) Execute(ctx context.Context, dc *Context) error {
	return c.fn(ctx, dc)
}
