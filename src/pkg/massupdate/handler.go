//go:generate go run go.uber.org/mock/mockgen -package massupdate -self_package github.com/bililive-go/datachange/src/pkg/massupdate -destination mock_handler_test.go github.com/bililive-go/datachange/src/pkg/massupdate Handler

package massupdate

import "context"

// Signal Handler 对每一行的处理结果
type Signal int

const (
	// Apply 绑定器已填充完整，加入写入批次后继续
	Apply Signal = iota
	// Skip 不写入该行，继续处理下一行
	Skip
	// Stop 丢弃当前行并终止整个 MassUpdate，剩余的行不再读取
	Stop
)

func (s Signal) String() string {
	switch s {
	case Apply:
		return "apply"
	case Skip:
		return "skip"
	case Stop:
		return "stop"
	}
	return "unknown"
}

// Handler 行转换逻辑
//
// Handle 必须只依赖输入行（以及构造时传入的参数，例如统一的 now），
// 不能在游标所在的连接上执行 I/O，写入由 MassUpdate 批量完成。
// 返回错误会使 MassUpdate 进入 Failed 状态。
type Handler interface {
	Handle(row *Row, update *Update) (Signal, error)
}

// HandlerFunc 函数形式的 Handler
type HandlerFunc func(row *Row, update *Update) (Signal, error)

func (f HandlerFunc) Handle(row *Row, update *Update) (Signal, error) {
	return f(row, update)
}

// StopOnDone 包装 Handler，ctx 结束后对下一行返回 Stop，用于外部取消（例如进程退出）
func StopOnDone(ctx context.Context, h Handler) Handler {
	return HandlerFunc(func(row *Row, update *Update) (Signal, error) {
		if ctx.Err() != nil {
			return Stop, nil
		}
		return h.Handle(row, update)
	})
}
