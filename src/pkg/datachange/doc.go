// Package datachange 定义数据变更步骤（DataChange）及其执行上下文
//
// 一个数据变更步骤是一次具名的数据迁移：读取已有的行，转换后写回。
// 步骤通过 Context 获取数据库连接、本次执行统一的时间戳，
// 以及预先配置好批大小、日志和指标的 MassUpdate。
//
// 使用示例：
//
//	change := datachange.NewMassUpdateChange("populate_stats",
//		massupdate.Spec{
//			SelectSQL:     "SELECT id, value FROM source WHERE migrated_at IS NULL",
//			UpdateSQL:     "UPDATE source SET copy = ?, migrated_at = ? WHERE id = ?",
//			RowPluralName: "sources",
//		},
//		func(now time.Time) massupdate.Handler {
//			return massupdate.HandlerFunc(func(row *massupdate.Row, u *massupdate.Update) (massupdate.Signal, error) {
//				u.SetNullableLong(1, row.GetNullableLong(2))
//				u.SetLong(2, now.UnixMilli())
//				u.SetLong(3, row.GetLong(1))
//				return massupdate.Apply, nil
//			})
//		})
//
//	result := datachange.Run(ctx, change, datachange.Options{DB: db})
//	if err := result.AsError(); err != nil {
//		// 处理失败或未完成
//	}
//
// 重入：引擎本身不防止重复处理同一行。步骤需要让 select 条件排除已处理的行，
// 或通过 Context.Watermark 记录处理位置。
package datachange
