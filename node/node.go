// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package node produces blocks on top of a runtime: it picks the author
// from the session set, includes scripted extrinsics and paces blocks by
// the block interval.
package node

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/stakemesh/stakemesh/log"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/metrics"
	"github.com/stakemesh/stakemesh/runtime"
)

var (
	logger = log.WithContext("pkg", "node")

	metricBestBlock = metrics.LazyGauge("best_block", "Number of the best block.")
)

// Options for Node.
type Options struct {
	// Interval between blocks. Zero produces blocks back to back.
	Interval time.Duration
	// Until stops Run once this block is committed. Zero runs until the
	// context is canceled.
	Until    mesh.BlockNumber
	Scenario *Scenario
	// CheckClock compares the local clock with NTP while running.
	CheckClock bool
	// OnBlock, when set, sees every committed block.
	OnBlock func(res *runtime.Result)
}

// Node is the local block producer.
type Node struct {
	rt *runtime.Runtime
	op Options
}

// New is a factory for Node.
func New(rt *runtime.Runtime, op Options) *Node {
	return &Node{rt: rt, op: op}
}

// Run produces blocks until the parent context is canceled or Until is
// reached.
func (n *Node) Run(ctx context.Context) error {
	head, ok, err := n.rt.Best()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("no genesis")
	}
	logger.Info("block production started", "best", head.Number, "interval", n.op.Interval)

	if n.op.CheckClock {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go n.houseKeeping(ctx)
	}

	var ticker <-chan time.Time
	if n.op.Interval > 0 {
		t := time.NewTicker(n.op.Interval)
		defer t.Stop()
		ticker = t.C
	}

	for n.op.Until == 0 || head.Number < n.op.Until {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		res, err := n.Produce()
		if err != nil {
			return err
		}
		head = res.Head
	}
	logger.Info("block production finished", "best", head.Number)
	return nil
}

// Produce applies the next block.
func (n *Node) Produce() (*runtime.Result, error) {
	head, ok, err := n.rt.Best()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("no genesis")
	}
	number := head.Number + 1

	author, err := n.author(number)
	if err != nil {
		return nil, err
	}
	res, err := n.rt.ApplyBlock(&runtime.Block{
		Number:     number,
		Timestamp:  head.Timestamp + mesh.Moment(n.rt.Config().BlockInterval*1000),
		Author:     author,
		Extrinsics: n.op.Scenario.At(number),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "apply block %d", number)
	}

	failed := 0
	for _, o := range res.Outcomes {
		if o.Err != nil {
			failed++
			logger.Debug("extrinsic failed", "block", number, "index", o.Index, "call", o.Call, "err", o.Err)
		}
	}
	metricBestBlock().Set(int64(number))
	logger.Info("📦 new block",
		"number", number,
		"author", author,
		"extrinsics", len(res.Outcomes),
		"failed", failed,
		"events", len(res.Events),
		"digest", res.Head.Digest.AbbrevString(),
	)
	if n.op.OnBlock != nil {
		n.op.OnBlock(res)
	}
	return res, nil
}

// author rotates through the current session set.
func (n *Node) author(number mesh.BlockNumber) (author mesh.AccountID, err error) {
	err = n.rt.View(func(m *runtime.Modules) error {
		set, err := m.Session.Validators()
		if err != nil {
			return err
		}
		if len(set) == 0 {
			return errors.New("empty validator set")
		}
		author = set[int(number)%len(set)]
		return nil
	})
	return
}
