// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/elastic/gosigar"
	"github.com/ethereum/go-ethereum/common/fdlimit"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/stakemesh/stakemesh/genesis"
	"github.com/stakemesh/stakemesh/log"
	"github.com/stakemesh/stakemesh/lvldb"
	meshrt "github.com/stakemesh/stakemesh/runtime"
)

// applyFlags overrides cfg with the flags given on the command line.
func applyFlags(ctx *cli.Context, cfg *Config) {
	if ctx.IsSet(dataDirFlag.Name) {
		cfg.DataDir = ctx.String(dataDirFlag.Name)
	}
	if ctx.IsSet(cacheFlag.Name) {
		cfg.Cache = ctx.Int(cacheFlag.Name)
	}
	if ctx.IsSet(genesisFlag.Name) {
		cfg.Genesis = ctx.String(genesisFlag.Name)
	}
	if ctx.IsSet(scenarioFlag.Name) {
		cfg.Scenario = ctx.String(scenarioFlag.Name)
	}
	if ctx.IsSet(verbosityFlag.Name) {
		cfg.Log.Level = ctx.String(verbosityFlag.Name)
	}
	if ctx.IsSet(jsonLogsFlag.Name) {
		cfg.Log.JSON = ctx.Bool(jsonLogsFlag.Name)
	}
	if ctx.IsSet(enableMetricsFlag.Name) {
		cfg.Metrics.Enabled = ctx.Bool(enableMetricsFlag.Name)
	}
	if ctx.IsSet(metricsAddrFlag.Name) {
		cfg.Metrics.Addr = ctx.String(metricsAddrFlag.Name)
	}
	if ctx.IsSet(enableAdminFlag.Name) {
		cfg.Admin.Enabled = ctx.Bool(enableAdminFlag.Name)
	}
	if ctx.IsSet(adminAddrFlag.Name) {
		cfg.Admin.Addr = ctx.String(adminAddrFlag.Name)
	}
}

func readConfig(ctx *cli.Context) (*Config, error) {
	cfg, err := loadConfig(ctx.String(configFlag.Name))
	if err != nil {
		return nil, err
	}
	applyFlags(ctx, cfg)
	return cfg, cfg.validate()
}

// initLogger installs the root handler and returns the level the admin
// API adjusts.
func initLogger(w io.Writer, cfg *Config) (*slog.LevelVar, error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logLevel := new(slog.LevelVar)
	logLevel.Set(level)

	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	log.SetDefault(log.NewHandler(w, logLevel, cfg.Log.JSON, color && !cfg.Log.JSON))
	return logLevel, nil
}

func handleExitSignal() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		exitSignalCh := make(chan os.Signal, 1)
		signal.Notify(exitSignalCh, os.Interrupt, syscall.SIGTERM)

		sig := <-exitSignalCh
		logger.Info("exit signal received", "signal", sig)
		cancel()
	}()
	return ctx
}

func openMainDB(cfg *Config) (*lvldb.LevelDB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "create data dir [%v]", cfg.DataDir)
	}
	cacheMB := normalizeCacheSize(cfg.Cache)
	logger.Debug("cache size(MB)", "size", cacheMB)

	// Ensure Go's GC ignores the database cache for trigger percentage
	gogc := math.Max(20, math.Min(100, 100/(float64(cacheMB)/1024)))
	logger.Debug("sanitize Go's GC trigger", "percent", int(gogc))
	debug.SetGCPercent(int(gogc))

	fdCache := suggestFDCache()
	logger.Debug("fd cache", "n", fdCache)

	dir := filepath.Join(cfg.DataDir, "main.db")
	db, err := lvldb.New(dir, lvldb.Options{
		CacheSize:              cacheMB,
		OpenFilesCacheCapacity: fdCache,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open chain database [%v]", dir)
	}
	return db, nil
}

func normalizeCacheSize(sizeMB int) int {
	if sizeMB < 128 {
		sizeMB = 128
	}

	var mem gosigar.Mem
	if err := mem.Get(); err != nil {
		logger.Warn("failed to get total mem:", "err", err)
	} else {
		// limit to 1/2 os physical ram
		limitMB := int(mem.Total / 1024 / 1024 / 2)
		if sizeMB > limitMB {
			sizeMB = limitMB
			logger.Warn("cache size(MB) limited", "limit", limitMB)
		}
	}
	return sizeMB
}

func suggestFDCache() int {
	limit, err := fdlimit.Current()
	if err != nil {
		logger.Warn("failed to get fd limit", "err", err)
		return 16
	}
	if limit <= 1024 {
		logger.Warn("low fd limit, increase it if possible", "limit", limit)
	}
	return min(limit/2, 5120)
}

// loadGenesis reads the genesis spec file, or the dev network when no file
// is configured.
func loadGenesis(cfg *Config) (*genesis.Builder, error) {
	var (
		spec *genesis.Spec
		err  error
	)
	if cfg.Genesis == "" {
		spec = genesis.NewDevnet(genesis.DevLaunchTime)
	} else if spec, err = genesis.Load(cfg.Genesis); err != nil {
		return nil, err
	}
	return genesis.New(spec)
}

// initRuntime opens the runtime over db and commits the genesis when the
// database is empty.
func initRuntime(db *lvldb.LevelDB, cfg *Config) (*meshrt.Runtime, error) {
	rt, err := meshrt.New(db, &cfg.Chain)
	if err != nil {
		return nil, err
	}
	head, ok, err := rt.Best()
	if err != nil {
		return nil, err
	}
	if ok {
		logger.Info("resuming chain", "best", head.Number, "digest", head.Digest.AbbrevString())
		return rt, nil
	}

	b, err := loadGenesis(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "genesis")
	}
	res, err := b.Build(rt)
	if err != nil {
		return nil, errors.Wrap(err, "build genesis")
	}
	logger.Info("genesis committed", "digest", res.Head.Digest.AbbrevString(), "events", len(res.Events))
	return rt, nil
}

// copy from go-ethereum
func defaultDataDir() string {
	// Try to place the data folder in the user's home dir
	if home := homeDir(); home != "" {
		switch runtime.GOOS {
		case "darwin":
			return filepath.Join(home, "Library", "Application Support", "io.stakemesh")
		case "windows":
			return filepath.Join(home, "AppData", "Roaming", "io.stakemesh")
		default:
			return filepath.Join(home, ".stakemesh")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}
