package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"teamcal/internal/capture"
	"teamcal/internal/clock"
	"teamcal/internal/config"
	"teamcal/internal/ics"
	appLog "teamcal/internal/log"
	"teamcal/internal/model"
	"teamcal/internal/nowline"
	"teamcal/internal/store/sqlite"
	"teamcal/internal/view"
	"teamcal/internal/web"
)

// flagConfig holds CLI flag values that override the config file.
type flagConfig struct {
	configPath   string
	listen       string
	database     string
	once         bool
	snapshot     string
	snapshotDate string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.database != "" {
		conf.Database = flags.database
	}

	if err := appLog.Init(conf.LogEnv, appLog.Level(strings.ToUpper(conf.LogLevel))); err != nil {
		appLog.Error("failed to init logger", err)
	}
	defer appLog.Sync()

	appLog.Info("teamcal starting", "version", "0.1.0")
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"day_start_hour", conf.DayStartHour,
		"day_end_hour", conf.DayEndHour,
		"snap_minutes", conf.SnapMinutes,
		"refresh", conf.RefreshCron,
		"database", conf.Database,
		"ics_count", len(conf.ICS),
		"once", flags.once,
		"snapshot", flags.snapshot,
	)

	if err := run(conf, flags); err != nil {
		appLog.Error("teamcal failed", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Info("teamcal exiting")
}

func run(conf *config.Config, flags flagConfig) error {
	loc, err := conf.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := sqlite.Open(conf.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	sources := make([]ics.Source, 0, len(conf.ICS))
	for _, c := range conf.ICS {
		sources = append(sources, ics.Source{ID: c.SourceID(), URL: c.URL})
	}
	cacheDir := filepath.Join(filepath.Dir(conf.Database), "ics-cache")
	importer := ics.NewImporter(ics.NewFetcher(cacheDir, nil), st, sources, loc)

	if flags.once {
		_, err := runImport(ctx, importer)
		return err
	}

	// ICS refresh on the configured schedule, plus once at startup.
	scheduler := cron.New(cron.WithLocation(loc))
	if len(sources) > 0 {
		if _, err := scheduler.AddFunc(conf.RefreshCron, func() { _, _ = runImport(ctx, importer) }); err != nil {
			return err
		}
		go func() { _, _ = runImport(ctx, importer) }()
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	clk := clock.NewSystem()
	ticker := nowline.NewTicker(clk, loc, conf.Hours(), conf.NowTick, func(ind nowline.Indicator) {
		appLog.Debug("now line", "visible", ind.Visible, "position", ind.PositionPercent)
	})
	if err := ticker.Start(); err != nil {
		return err
	}
	defer ticker.Stop()

	composer := view.Composer{
		Location:  loc,
		Hours:     conf.Hours(),
		WeekStart: conf.WeekStartDay(),
		Clock:     clk,
	}
	server := web.NewServer(conf, st, composer, ticker)

	if flags.snapshot == "" {
		return server.ListenAndServe(ctx)
	}
	return snapshot(ctx, conf, server, flags)
}

// runImport runs one ICS import and logs its outcome.
func runImport(ctx context.Context, im *ics.Importer) (ics.ImportStats, error) {
	stats, err := im.Run(ctx)
	if err != nil {
		appLog.Error("ics import finished with errors", err,
			"sources", stats.Sources, "events", stats.Events, "failures", stats.Failures)
		return stats, err
	}
	appLog.Info("ics import finished", "sources", stats.Sources, "events", stats.Events)
	return stats, nil
}

// snapshot serves until the week page has been captured, then shuts down.
func snapshot(ctx context.Context, conf *config.Config, server *web.Server, flags flagConfig) error {
	var date model.Date
	if flags.snapshotDate != "" {
		d, err := model.ParseDate(flags.snapshotDate)
		if err != nil {
			return err
		}
		date = d
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe(serveCtx) }()

	baseURL := "http://" + conf.Listen
	if err := waitHealthy(ctx, baseURL+"/health", 10*time.Second); err != nil {
		cancel()
		return errors.Join(err, <-errCh)
	}

	opts := capture.Options{
		BaseURL:    baseURL,
		Date:       date,
		OutputPath: flags.snapshot,
	}
	if conf.BasicAuth != nil {
		opts.Username = conf.BasicAuth.Username
		opts.Password = conf.BasicAuth.Password
	}
	captureErr := capture.CaptureCalendarPNG(ctx, opts)

	cancel()
	return errors.Join(captureErr, <-errCh)
}

// waitHealthy polls url until it answers 200 or timeout elapses.
func waitHealthy(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		if resp, err := http.DefaultClient.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return errors.New("server did not become healthy: " + ctx.Err().Error())
		case <-t.C:
		}
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/teamcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.database, "db", "", "SQLite database path (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one ICS import and exit")
	flag.StringVar(&cfg.snapshot, "snapshot", "", "Write a PNG of the week page to this path and exit")
	flag.StringVar(&cfg.snapshotDate, "snapshot-date", "", "Week to snapshot (YYYY-MM-DD, default today)")

	flag.Parse()

	return cfg
}
