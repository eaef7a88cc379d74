package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/alecthomas/kingpin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/bililive-go/datachange/src/configs"
	"github.com/bililive-go/datachange/src/consts"
	_ "github.com/bililive-go/datachange/src/livestate"
	"github.com/bililive-go/datachange/src/log"
	"github.com/bililive-go/datachange/src/metrics"
	"github.com/bililive-go/datachange/src/pkg/migration"
	bilisentry "github.com/bililive-go/datachange/src/pkg/sentry"
)

type cli struct {
	app *kingpin.Application
	out io.Writer

	conf        string
	envFile     string
	dbPath      string
	dbType      string
	batchSize   int
	debug       bool
	metricsBind string
	parallel    bool
	initPath    string
}

func newCLI(out io.Writer) *cli {
	c := &cli{out: out}
	c.app = kingpin.New("datachange", "Schema migrations and batched data changes for bililive-go databases.")
	c.app.Flag("config", "配置文件路径").Short('c').StringVar(&c.conf)
	c.app.Flag("env-file", ".env 文件路径，不存在时忽略").Default(".env").StringVar(&c.envFile)
	c.app.Flag("db", "数据库文件路径，设置后忽略配置文件中的数据库列表").StringVar(&c.dbPath)
	c.app.Flag("type", "数据库类型").Default(string(migration.DatabaseTypeLiveState)).StringVar(&c.dbType)

	runCmd := c.app.Command("run", "执行模式迁移和所有未完成的数据变更").Default()
	runCmd.Flag("batch-size", "每个事务提交的行数").IntVar(&c.batchSize)
	runCmd.Flag("debug", "输出调试日志").BoolVar(&c.debug)
	runCmd.Flag("metrics-bind", "prometheus 指标服务监听地址").StringVar(&c.metricsBind)
	runCmd.Flag("parallel", "多个数据库文件并行迁移").BoolVar(&c.parallel)
	runCmd.Action(c.runAction)

	c.app.Command("status", "显示数据变更的执行记录").Action(c.statusAction)
	c.app.Command("rollback", "从最近的备份恢复数据库").Action(c.rollbackAction)
	c.app.Command("steps", "列出已注册的数据库类型和数据变更步骤").Action(c.stepsAction)

	initCmd := c.app.Command("init-config", "生成带注释的默认配置文件")
	initCmd.Arg("path", "配置文件路径").Default("config.yml").StringVar(&c.initPath)
	initCmd.Action(c.initConfigAction)
	return c
}

func (c *cli) loadConfig() (*configs.Config, error) {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", c.envFile, err)
		}
	}

	var cfg *configs.Config
	if c.conf != "" {
		loaded, err := configs.NewConfigWithFile(c.conf)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = configs.NewConfig()
		// 未使用配置文件时只输出到 stderr
		cfg.Log.SaveLastLog = false
		cfg.Log.SaveEveryLog = false
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if c.dbPath != "" {
		cfg.Databases = []configs.Database{{Path: c.dbPath, Type: c.dbType}}
	}
	if c.batchSize > 0 {
		cfg.MassUpdate.BatchSize = c.batchSize
	}
	if c.debug {
		cfg.Debug = true
	}
	if c.metricsBind != "" {
		cfg.Metrics.Enable = true
		cfg.Metrics.Bind = c.metricsBind
	}
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *cli) migrationConfigs(cfg *configs.Config) ([]*migration.MigrationConfig, error) {
	out := make([]*migration.MigrationConfig, 0, len(cfg.Databases))
	for _, db := range cfg.Databases {
		schema, err := migration.GetSchema(migration.DatabaseType(db.Type))
		if err != nil {
			return nil, err
		}
		mc := &migration.MigrationConfig{
			DBPath:           db.Path,
			Schema:           schema,
			AppVersion:       consts.AppVersion,
			BatchSize:        cfg.MassUpdate.BatchSize,
			ProgressInterval: cfg.MassUpdate.ProgressInterval,
		}
		if db.ForceBackup {
			force := true
			mc.ForceBackup = &force
		}
		out = append(out, mc)
	}
	return out, nil
}

func (c *cli) runAction(*kingpin.ParseContext) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	configs.SetCurrentConfig(cfg)

	// 收到信号后正在执行的步骤在下一行停止，已经开始的批次照常提交
	interrupt, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, err := log.New(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Infof("%s Version: %s Link Start", consts.AppName, consts.AppVersion)
	logger.Debugf("%+v", consts.GetAppInfo())

	environment := cfg.Sentry.Environment
	if cfg.Debug {
		environment = "development"
	}
	if err := bilisentry.Init(cfg.Sentry.DSN, environment, consts.AppVersion); err != nil {
		logger.WithError(err).Warn("Sentry 初始化失败")
	}

	collector := metrics.NewCollector("datachange")
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector, collectors.NewGoCollector())
	if cfg.Metrics.Enable {
		srv, err := metrics.Serve(ctx, cfg.Metrics.Bind, metrics.NewRouter(collector, reg))
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer srv.Close()
	}

	mcs, err := c.migrationConfigs(cfg)
	if err != nil {
		return err
	}
	batch := migration.NewBatchMigrator()
	for _, mc := range mcs {
		mc.Observer = collector
		mc.Interrupt = interrupt
		batch.Add(mc)
	}

	result := batch.Run(ctx, c.parallel)
	for _, mc := range mcs {
		c.printResult(mc.DBPath, result.Results[mc.DBPath])
	}
	if !result.Success {
		return errors.Join(result.Errors...)
	}
	return nil
}

func (c *cli) printResult(path string, res *migration.MigrationResult) {
	if res == nil {
		fmt.Fprintf(c.out, "%s: not migrated\n", path)
		return
	}
	fmt.Fprintf(c.out, "%s: schema %d -> %d", path, res.FromVersion, res.ToVersion)
	if res.BackupPath != "" {
		fmt.Fprintf(c.out, ", backup %s", res.BackupPath)
	}
	fmt.Fprintln(c.out)

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	for _, name := range res.SkippedSteps {
		fmt.Fprintf(w, "  %s\tskipped\t\t\n", name)
	}
	for _, step := range res.Steps {
		fmt.Fprintf(w, "  %s\t%s\t%d written\t%s\n", step.Name, step.Status, step.Progress.Written, step.Duration)
	}
	w.Flush()
}

func (c *cli) statusAction(*kingpin.ParseContext) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	mcs, err := c.migrationConfigs(cfg)
	if err != nil {
		return err
	}
	ctx := context.Background()
	for _, mc := range mcs {
		m, err := migration.NewMigrator(mc)
		if err != nil {
			return err
		}
		version, dirty, err := m.GetVersion()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s: schema %d", mc.DBPath, version)
		if dirty {
			fmt.Fprint(c.out, " (dirty)")
		}
		fmt.Fprintln(c.out)

		records, err := m.Steps(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "  STEP\tSTATUS\tRUNS\tREAD\tWRITTEN\tFINISHED\tERROR")
		for _, r := range records {
			fmt.Fprintf(w, "  %s\t%s\t%d\t%d\t%d\t%s\t%s\n",
				r.Name, r.Status, r.Runs, r.Read, r.Written, r.FinishedAt.Format("2006-01-02 15:04:05"), r.Error)
		}
		w.Flush()
	}
	return nil
}

func (c *cli) rollbackAction(*kingpin.ParseContext) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	mcs, err := c.migrationConfigs(cfg)
	if err != nil {
		return err
	}
	var errs []error
	for _, mc := range mcs {
		m, err := migration.NewMigrator(mc)
		if err != nil {
			return err
		}
		if err := m.Rollback(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", mc.DBPath, err))
			continue
		}
		logrus.WithField("db_path", mc.DBPath).Info("database restored from backup")
		fmt.Fprintf(c.out, "%s: restored\n", mc.DBPath)
	}
	return errors.Join(errs...)
}

func (c *cli) stepsAction(*kingpin.ParseContext) error {
	for _, typ := range migration.ListSchemas() {
		schema, err := migration.GetSchema(typ)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s (%s): %s\n", typ, schema.Category, schema.Description)
		for i, name := range schema.StepNames() {
			fmt.Fprintf(c.out, "  %d. %s\n", i+1, name)
		}
	}
	return nil
}

func (c *cli) initConfigAction(*kingpin.ParseContext) error {
	if _, err := os.Stat(c.initPath); err == nil {
		return fmt.Errorf("%s already exists", c.initPath)
	}
	cfg := configs.NewConfig()
	cfg.File = c.initPath
	cfg.Databases = []configs.Database{{
		Path: "db/livestate.db",
		Type: string(migration.DatabaseTypeLiveState),
	}}
	if err := cfg.Marshal(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "config written to %s\n", c.initPath)
	return nil
}
