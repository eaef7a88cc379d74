// Package massupdate 提供大表数据回填引擎
//
// 引擎从一个 select 流式读取行，逐行交给 Handler 转换，
// 再把绑定好的参数按批次写入目标语句，每个批次一个事务。
// 不需要停机窗口，不锁整张表，内存占用与表大小无关。
//
// 基本使用示例：
//
//	mu, err := massupdate.New(db, massupdate.Spec{
//	    Name:          "populate_session_stats",
//	    SelectSQL:     "SELECT id, start_time, end_time FROM live_sessions WHERE end_time > ?",
//	    SelectArgs:    []any{0},
//	    UpdateSQL:     "INSERT INTO live_session_stats (session_id, duration, created_at) VALUES (?, ?, ?)",
//	    RowPluralName: "live sessions",
//	})
//	res, err := mu.Execute(ctx, massupdate.HandlerFunc(func(row *massupdate.Row, update *massupdate.Update) (massupdate.Signal, error) {
//	    update.SetLong(1, row.GetLong(1))
//	    update.SetLong(2, row.GetLong(3)-row.GetLong(2))
//	    update.SetLong(3, now)
//	    return massupdate.Apply, nil
//	}))
//
// 重复执行同一个步骤不是幂等的，select 条件需要自行排除已经迁移过的行。
package massupdate
