package configs

import "gopkg.in/yaml.v3"

// DecorateConfigNode 将硬编码的中文注释注入到配置节点树中。
func DecorateConfigNode(node *yaml.Node) {
	if node.Kind != yaml.DocumentNode || len(node.Content) == 0 {
		return
	}
	root := node.Content[0]
	if root.Kind != yaml.MappingNode {
		return
	}

	root.HeadComment = `# 这个配置文件内的注释是自动生成的，请不要手动修改。
# 需要修改注释时，请在 src/configs/config_comments.go 文件内修改。`

	setFieldComment(root, "app_data_path", "# 相对路径的数据库文件以此目录为基准", "")

	setFieldHeadComment(root, "databases", "# 需要迁移的数据库列表")
	databases := findNode(root, "databases")
	if databases != nil && databases.Kind == yaml.SequenceNode && len(databases.Content) > 0 {
		databases.Content[0].HeadComment = `# type 为已注册的数据库类型，例如 livestate
# force_backup 为 true 时非关键数据库也会在迁移前备份`
	}

	massUpdate := findNode(root, "mass_update")
	if massUpdate != nil {
		setFieldComment(massUpdate, "batch_size", "# 每个事务提交的行数，0 表示使用默认值 250", "")
		setFieldComment(massUpdate, "progress_interval", "# 进度日志间隔，例如 30s、1m，0 表示关闭", "")
	}

	setFieldHeadComment(root, "sentry", "# Sentry 错误监控配置（用于收集失败的数据变更）")
	sentryNode := findNode(root, "sentry")
	if sentryNode != nil {
		setFieldComment(sentryNode, "dsn", "# Sentry DSN，留空则禁用", "")
		setFieldComment(sentryNode, "environment", "# 环境标识：production 或 development", "")
	}

	metricsNode := findNode(root, "metrics")
	if metricsNode != nil {
		setFieldComment(metricsNode, "bind", "# prometheus 指标和进度接口的监听地址", "")
	}
}

func findNode(mapNode *yaml.Node, key string) *yaml.Node {
	for i := 0; i < len(mapNode.Content); i += 2 {
		if mapNode.Content[i].Value == key {
			return mapNode.Content[i+1]
		}
	}
	return nil
}

func setFieldComment(mapNode *yaml.Node, key, headComment, lineComment string) {
	for i := 0; i < len(mapNode.Content); i += 2 {
		k := mapNode.Content[i]
		if k.Value == key {
			if headComment != "" {
				k.HeadComment = headComment
			}
			if lineComment != "" {
				k.LineComment = lineComment
			}
			return
		}
	}
}

func setFieldHeadComment(mapNode *yaml.Node, key, headComment string) {
	for i := 0; i < len(mapNode.Content); i += 2 {
		k := mapNode.Content[i]
		if k.Value == key {
			k.HeadComment = headComment
			return
		}
	}
}
