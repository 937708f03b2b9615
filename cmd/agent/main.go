package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Hara602/inputSentry/internal/config"
	"github.com/Hara602/inputSentry/internal/recorder"
	"github.com/Hara602/inputSentry/internal/store"
	"github.com/Hara602/inputSentry/internal/sysutil"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.App{
		Name:  "inputsentry",
		Usage: "record keyboard and mouse activity to a local database",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file (yaml, toml or json)", EnvVars: []string{"INPUTSENTRY_CONFIG"}},
			&cli.StringFlag{Name: "log-level", Usage: "overrides log_level from the config"},
		},
		Before: setup,
		After: func(*cli.Context) error {
			sysutil.Log.Sync()
			return nil
		},
		Commands: []*cli.Command{
			recordCommand,
			devicesCommand,
			migrateCommand,
		},
	}
	return app.Run(os.Args)
}

var cfg *config.Config

// setup 加载配置并初始化全局日志
func setup(c *cli.Context) error {
	var err error
	cfg, err = config.Load(c.String("config"))
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	return sysutil.InitLogger(level)
}

var recordCommand = &cli.Command{
	Name:  "record",
	Usage: "capture input events until interrupted",
	Action: func(c *cli.Context) error {
		lock, err := sysutil.AcquireLock(cfg.StoragePath + ".lock")
		if err != nil {
			return err
		}
		defer lock.Release()

		// 捕获操作系统信号，优雅关闭
		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sysutil.Log.Info("input sentry starting", zap.Strings("backends", cfg.EnabledBackends))
		err = recorder.New(cfg, sysutil.Log).Run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if err != nil {
			sysutil.Log.Error("recorder failed", zap.Error(err))
			return err
		}
		sysutil.Log.Info("shutting down")
		return nil
	},
}

var devicesCommand = &cli.Command{
	Name:  "devices",
	Usage: "list input devices attached now, or recorded ones with --stored",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "stored", Usage: "list devices from the database instead"},
	},
	Action: func(c *cli.Context) error {
		if c.Bool("stored") {
			return listStoredDevices(c.Context)
		}
		return listAttachedDevices()
	},
}

var migrateCommand = &cli.Command{
	Name:  "migrate",
	Usage: "bring the database schema up to date and exit",
	Action: func(c *cli.Context) error {
		st, err := store.Open(cfg.StoragePath, sysutil.Log)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(c.Context); err != nil {
			return err
		}
		v, err := st.SchemaVersion(c.Context)
		if err != nil {
			return err
		}
		sysutil.Log.Info("schema up to date", zap.String("path", cfg.StoragePath), zap.Int("version", v))
		return nil
	},
}

func listStoredDevices(ctx context.Context) error {
	st, err := store.Open(cfg.StoragePath, sysutil.Log)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	devices, err := st.LoadDevices(ctx)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Name", "Capabilities", "First seen", "Last seen", "Retired"})
	for _, d := range devices {
		retired := ""
		if d.RetiredAt != nil {
			retired = d.RetiredAt.Local().Format("2006-01-02 15:04:05")
		}
		t.AppendRow(table.Row{
			d.ID,
			d.Name,
			d.Capabilities.String(),
			d.FirstSeen.Local().Format("2006-01-02 15:04:05"),
			d.LastSeen.Local().Format("2006-01-02 15:04:05"),
			retired,
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}
