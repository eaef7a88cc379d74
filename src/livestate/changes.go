package livestate

import (
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/bililive-go/datachange/src/pkg/datachange"
	"github.com/bililive-go/datachange/src/pkg/massupdate"
)

// sqlite CURRENT_TIMESTAMP 的格式
const sqliteTimestamp = "2006-01-02 15:04:05"

// BackfillRoomPlatform 为 platform 为空的直播间根据 URL 补全平台，无法识别的域名跳过
var BackfillRoomPlatform = datachange.NewMassUpdateChange("backfill_room_platform",
	massupdate.Spec{
		SelectSQL:     "SELECT id, url FROM live_rooms WHERE platform = '' ORDER BY id",
		UpdateSQL:     "UPDATE live_rooms SET platform = ?, updated_at = ? WHERE id = ?",
		RowPluralName: "rooms",
	},
	newBackfillRoomPlatformHandler,
)

func newBackfillRoomPlatformHandler(now time.Time) massupdate.Handler {
	updatedAt := now.UTC().Format(sqliteTimestamp)
	return massupdate.HandlerFunc(func(row *massupdate.Row, update *massupdate.Update) (massupdate.Signal, error) {
		platform := PlatformOf(row.GetString(2))
		if platform == "" {
			return massupdate.Skip, nil
		}
		update.SetString(1, platform)
		update.SetString(2, updatedAt)
		update.SetLong(3, row.GetLong(1))
		return massupdate.Apply, nil
	})
}

// PopulateLiveSessionStats 为已结束、尚无统计的直播会话生成统计行
//
// select 只匹配没有统计的会话，重复执行时已处理的会话不会再次读取。
// 仍在直播中的会话（end_time = 0）跳过。迁移器成功执行一次后不再运行该步骤，
// 迁移时仍在直播的会话以及之后结束的会话不在这次回填范围内，由录制端在下播时写入统计。
var PopulateLiveSessionStats = datachange.NewMassUpdateChange("populate_live_session_stats",
	massupdate.Spec{
		SelectSQL: `
			SELECT s.id, s.live_id, s.start_time, s.end_time, r.platform
			FROM live_sessions s
			LEFT JOIN live_rooms r ON r.live_id = s.live_id
			LEFT JOIN live_session_stats st ON st.session_id = s.id
			WHERE st.session_id IS NULL
			ORDER BY s.id`,
		UpdateSQL: `
			INSERT INTO live_session_stats
			(session_id, stat_uuid, live_id, platform, duration_seconds, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
		RowPluralName: "live sessions",
	},
	newPopulateLiveSessionStatsHandler,
)

func newPopulateLiveSessionStatsHandler(now time.Time) massupdate.Handler {
	stamp := now.Unix()
	return massupdate.HandlerFunc(func(row *massupdate.Row, update *massupdate.Update) (massupdate.Signal, error) {
		start, end := row.GetLong(3), row.GetLong(4)
		if end == 0 {
			return massupdate.Skip, nil
		}
		id, err := uuid.NewV4()
		if err != nil {
			return massupdate.Skip, err
		}
		platform := PlatformUnknown
		if p := row.GetNullableString(5); p != nil && *p != "" {
			platform = *p
		}

		update.SetLong(1, row.GetLong(1))
		update.SetString(2, id.String())
		update.SetString(3, row.GetString(2))
		update.SetString(4, platform)
		update.SetLong(5, max(end-start, 0))
		update.SetLong(6, stamp)
		update.SetLong(7, stamp)
		return massupdate.Apply, nil
	})
}
