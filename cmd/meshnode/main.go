// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gopkg.in/cheggaaa/pb.v1"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/stakemesh/stakemesh/admin"
	"github.com/stakemesh/stakemesh/log"
	"github.com/stakemesh/stakemesh/lvldb"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/metrics"
	"github.com/stakemesh/stakemesh/node"
	meshrt "github.com/stakemesh/stakemesh/runtime"
)

var (
	version   string
	gitCommit string
	gitTag    string

	logger = log.WithContext("pkg", "meshnode")
)

func fullVersion() string {
	versionMeta := "release"
	if gitTag == "" {
		versionMeta = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", version, gitCommit, versionMeta)
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fullVersion()
	app.Name = "meshnode"
	app.Usage = "Node of a permissioned NPoS settlement chain"
	app.Copyright = "2025 The stakemesh developers"
	app.Commands = []cli.Command{
		{
			Name:  "run",
			Usage: "produce blocks every block interval",
			Flags: []cli.Flag{
				configFlag,
				dataDirFlag,
				cacheFlag,
				genesisFlag,
				scenarioFlag,
				verbosityFlag,
				jsonLogsFlag,
				enableMetricsFlag,
				metricsAddrFlag,
				enableAdminFlag,
				adminAddrFlag,
				blocksFlag,
			},
			Action: runAction,
		},
		{
			Name:  "simulate",
			Usage: "apply a scenario on an in-memory chain and print the events of every block",
			Flags: []cli.Flag{
				configFlag,
				genesisFlag,
				scenarioFlag,
				verbosityFlag,
				jsonLogsFlag,
				blocksFlag,
			},
			Action: simulateAction,
		},
		{
			Name:   "dump-config",
			Usage:  "print the node configuration",
			Flags:  []cli.Flag{configFlag},
			Action: dumpConfigAction,
		},
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAction(ctx *cli.Context) error {
	cfg, err := readConfig(ctx)
	if err != nil {
		return err
	}
	logLevel, err := initLogger(os.Stderr, cfg)
	if err != nil {
		return err
	}
	defer func() { logger.Info("exited") }()

	if cfg.Metrics.Enabled {
		metrics.Enable()
		url, stop, err := startMetricsServer(cfg.Metrics.Addr)
		if err != nil {
			return err
		}
		defer func() { logger.Info("stopping metrics server..."); stop() }()
		logger.Info("metrics server started", "url", url)
	}

	db, err := openMainDB(cfg)
	if err != nil {
		return err
	}
	defer func() { logger.Info("closing main database..."); db.Close() }()

	rt, err := initRuntime(db, cfg)
	if err != nil {
		return err
	}
	scenario, err := loadScenario(cfg)
	if err != nil {
		return err
	}

	feed := admin.NewFeed()
	if cfg.Admin.Enabled {
		url, stop, err := admin.StartServer(cfg.Admin.Addr, logLevel, rt, feed)
		if err != nil {
			return err
		}
		defer func() { logger.Info("stopping admin server..."); stop() }()
		logger.Info("admin server started", "url", url)
	}

	return node.New(rt, node.Options{
		Interval:   time.Duration(cfg.Chain.BlockInterval) * time.Second,
		Until:      mesh.BlockNumber(ctx.Uint64(blocksFlag.Name)),
		Scenario:   scenario,
		CheckClock: true,
		OnBlock:    feed.Publish,
	}).Run(handleExitSignal())
}

func simulateAction(ctx *cli.Context) error {
	cfg, err := readConfig(ctx)
	if err != nil {
		return err
	}
	if _, err := initLogger(os.Stderr, cfg); err != nil {
		return err
	}

	db, err := lvldb.NewMem()
	if err != nil {
		return err
	}
	defer db.Close()

	rt, err := initRuntime(db, cfg)
	if err != nil {
		return err
	}
	scenario, err := loadScenario(cfg)
	if err != nil {
		return err
	}

	until := max(mesh.BlockNumber(ctx.Uint64(blocksFlag.Name)), scenario.Last())
	if until == 0 {
		until = mesh.BlockNumber(cfg.Chain.EraLength())
	}

	out := newBlockPrinter(ctx.App.Writer)
	onBlock := out.print
	if isatty.IsTerminal(os.Stderr.Fd()) {
		head, _, err := rt.Best()
		if err != nil {
			return err
		}
		bar := pb.New64(int64(until)).Set64(int64(head.Number)).SetMaxWidth(90)
		bar.Output = os.Stderr
		bar.Start()
		defer bar.Finish()
		onBlock = func(res *meshrt.Result) {
			out.print(res)
			bar.Increment()
		}
	}
	return node.New(rt, node.Options{
		Until:    until,
		Scenario: scenario,
		OnBlock:  onBlock,
	}).Run(handleExitSignal())
}

func dumpConfigAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx.String(configFlag.Name))
	if err != nil {
		return err
	}
	data, err := cfg.marshal()
	if err != nil {
		return err
	}
	_, err = ctx.App.Writer.Write(data)
	return err
}

func loadScenario(cfg *Config) (*node.Scenario, error) {
	if cfg.Scenario == "" {
		return nil, nil
	}
	return node.LoadScenario(cfg.Scenario)
}

func startMetricsServer(addr string) (string, func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, errors.Wrapf(err, "listen metrics addr [%v]", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: time.Second, ReadTimeout: 5 * time.Second}

	var g errgroup.Group
	g.Go(func() error {
		if err := srv.Serve(listener); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	return "http://" + listener.Addr().String() + "/metrics", func() {
		srv.Shutdown(context.Background())
		if err := g.Wait(); err != nil {
			logger.Warn("metrics server stopped", "err", err)
		}
	}, nil
}

// blockPrinter writes one JSON document per block.
type blockPrinter struct {
	enc *json.Encoder
}

func newBlockPrinter(w io.Writer) *blockPrinter {
	return &blockPrinter{enc: json.NewEncoder(w)}
}

func (p *blockPrinter) print(res *meshrt.Result) {
	if err := p.enc.Encode(node.Summarize(res)); err != nil {
		logger.Warn("failed to print block", "number", res.Head.Number, "err", err)
	}
}
