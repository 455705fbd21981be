// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package admin serves the node administration API: the log level and
// the chain head.
package admin

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/stakemesh/stakemesh/log"
	"github.com/stakemesh/stakemesh/metrics"
)

var (
	logger = log.WithContext("pkg", "admin")

	metricFeedDropped = metrics.LazyCounter("admin_feed_dropped_total", "Blocks not delivered to slow subscribers.")
)

// HTTPHandler routes /admin/loglevel, /admin/head and, when feed is set,
// the websocket /admin/subscriptions/block.
func HTTPHandler(logLevel *slog.LevelVar, chain Chain, feed *Feed) http.Handler {
	api := mux.NewRouter()
	sub := api.PathPrefix("/admin").Subrouter()
	sub.Path("/loglevel").Methods(http.MethodGet).HandlerFunc(getLogLevelHandler(logLevel))
	sub.Path("/loglevel").Methods(http.MethodPost).HandlerFunc(postLogLevelHandler(logLevel))
	sub.Path("/head").Methods(http.MethodGet).HandlerFunc(headHandler(chain))
	api.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// websocket connections are hijacked, keep them off the compressor
	router := mux.NewRouter()
	if feed != nil {
		router.Path("/admin/subscriptions/block").Methods(http.MethodGet).HandlerFunc(feed.handle)
	}
	router.PathPrefix("/").Handler(handlers.CompressHandler(api))
	return router
}

// StartServer serves the admin API on addr. It returns the base URL and a
// function that stops the server.
func StartServer(addr string, logLevel *slog.LevelVar, chain Chain, feed *Feed) (string, func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, errors.Wrapf(err, "listen admin API addr [%v]", addr)
	}

	srv := &http.Server{
		Handler:           HTTPHandler(logLevel, chain, feed),
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
	}
	var g errgroup.Group
	g.Go(func() error {
		if err := srv.Serve(listener); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	return "http://" + listener.Addr().String() + "/admin", func() {
		srv.Close()
		if err := g.Wait(); err != nil {
			logger.Warn("admin server stopped", "err", err)
		}
	}, nil
}
