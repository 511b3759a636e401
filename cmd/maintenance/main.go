// Command maintenance drives maintenance windows from operational scripts.
//
//	maintenance [--config file.ini] status
//	maintenance enable --actor U [--mode M] [--reason R] [--minutes N] [--force]
//	maintenance disable --actor U
//	maintenance user add --username U --password P [--role R]
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"go_maintenance/internal/cache"
	"go_maintenance/internal/config"
	"go_maintenance/internal/db"
	"go_maintenance/internal/logx"
	"go_maintenance/internal/maintenance/lifecycle"
	"go_maintenance/internal/maintenance/store"
	"go_maintenance/internal/maintenance/wincache"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// Exit codes
const (
	exitOK            = 0
	exitActive        = 1
	exitAlreadyActive = 2
	exitApproveFailed = 3
	exitCloseFailed   = 4
	exitUsage         = 64
	exitUnavailable   = 69
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("maintenance", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	configPath := fs.String("config", "", "INI config file (environment variables take precedence)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: maintenance [--config file] status|enable|disable|user add")
		return exitUsage
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromINI(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitUnavailable
	}
	logger := logx.Setup(cfg.Log.Level, cfg.Log.Format)
	logger.Logger.SetOutput(stderr)

	if err := db.InitMySQL(cfg.MySQL.DSN); err != nil {
		fmt.Fprintf(stderr, "Failed to initialize MySQL: %v\n", err)
		return exitUnavailable
	}
	defer db.Close()

	if err := cache.InitRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		// the server cache still expires by TTL, so the command can proceed
		logger.WithError(err).Warn("redis unavailable, running servers will pick up changes on cache expiry")
	}
	defer cache.Close()

	windows := store.New(db.GetDB())
	return newApp(windows, invalidatorFor(cfg, windows, logger), logger, stdout, stderr).dispatch(fs.Args())
}

// invalidatorFor returns the shared cache when servers use Redis. An in-process
// cache lives in the server and cannot be reached from here.
func invalidatorFor(cfg *config.Config, s *store.Store, logger *logrus.Entry) lifecycle.Invalidator {
	if !cache.Enabled() {
		return nil
	}
	return wincache.New(&wincache.Config{
		Backend: wincache.NewRedisBackend(cache.Client, cfg.Maintenance.CacheKey),
		Loader:  s,
		TTL:     time.Duration(cfg.Maintenance.CacheTTLSec) * time.Second,
		Logger:  logger,
	})
}
