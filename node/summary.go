// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/runtime"
)

type OutcomeSummary struct {
	Index uint32 `json:"index"`
	Call  string `json:"call"`
	Error string `json:"error,omitempty"`
}

type EventSummary struct {
	Module string         `json:"module"`
	Name   string         `json:"name"`
	Topics []mesh.Bytes32 `json:"topics,omitempty"`
	Data   hexutil.Bytes  `json:"data"`
}

// BlockSummary is the JSON form of a committed block. Event payloads stay
// RLP encoded.
type BlockSummary struct {
	Number    mesh.BlockNumber `json:"number"`
	Timestamp mesh.Moment      `json:"timestamp"`
	Digest    mesh.Bytes32     `json:"digest"`
	Outcomes  []OutcomeSummary `json:"outcomes,omitempty"`
	Events    []EventSummary   `json:"events"`
}

// Summarize converts a block result for JSON output.
func Summarize(res *runtime.Result) *BlockSummary {
	s := &BlockSummary{
		Number:    res.Head.Number,
		Timestamp: res.Head.Timestamp,
		Digest:    res.Head.Digest,
		Events:    make([]EventSummary, 0, len(res.Events)),
	}
	for _, o := range res.Outcomes {
		out := OutcomeSummary{Index: o.Index, Call: o.Call}
		if o.Err != nil {
			out.Error = o.Err.Error()
		}
		s.Outcomes = append(s.Outcomes, out)
	}
	for _, ev := range res.Events {
		s.Events = append(s.Events, EventSummary{
			Module: ev.Module,
			Name:   ev.Name,
			Topics: ev.Topics,
			Data:   ev.Data,
		})
	}
	return s
}
