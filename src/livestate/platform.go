package livestate

import (
	"net/url"
	"strings"
)

// 平台标识
const (
	PlatformBilibili = "bilibili"
	PlatformDouyin   = "douyin"
	PlatformHuya     = "huya"
	PlatformDouyu    = "douyu"
	PlatformKuaishou = "kuaishou"
	PlatformCC       = "cc"
	PlatformDev      = "dev"
	// PlatformUnknown 直播间记录缺失时统计数据使用的平台
	PlatformUnknown = "unknown"
)

var platformHosts = map[string]string{
	"live.bilibili.com": PlatformBilibili,
	"b23.tv":            PlatformBilibili,
	"live.douyin.com":   PlatformDouyin,
	"v.douyin.com":      PlatformDouyin,
	"www.huya.com":      PlatformHuya,
	"www.douyu.com":     PlatformDouyu,
	"live.kuaishou.com": PlatformKuaishou,
	"cc.163.com":        PlatformCC,
	"localhost":         PlatformDev,
	"127.0.0.1":         PlatformDev,
}

// PlatformOf 根据直播间 URL 的域名判断平台，无法识别时返回空字符串
func PlatformOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if platform, ok := platformHosts[host]; ok {
		return platform
	}
	// 移动端域名
	if rest, ok := strings.CutPrefix(host, "m."); ok {
		for _, prefix := range []string{"live.", "www.", ""} {
			if platform, ok := platformHosts[prefix+rest]; ok {
				return platform
			}
		}
	}
	return ""
}
