// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package runtime

import (
	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/metrics"
)

var (
	metricBlocksApplied = metrics.LazyCounter("blocks_applied_total", "Blocks committed.")
	metricApplyDuration = metrics.LazyHistogram("block_apply_duration_ms", "Time to apply and commit a block.", metrics.BucketApplyMillis)
	metricExtrinsics    = metrics.LazyCounterVec("extrinsics_total", "Dispatched extrinsics.", "call", "result")
	metricTasks         = metrics.LazyCounterVec("scheduled_tasks_total", "Dispatched scheduled tasks.", "call", "result")
	metricEra           = metrics.LazyGauge("era", "Current era index.")
	metricElected       = metrics.LazyGauge("elected_validators", "Size of the last elected validator set.")
	metricSlotStake     = metrics.LazyGauge("slot_stake", "Lowest backing of the last elected set.")
	metricEvents        = metrics.LazyCounterVec("events_total", "Emitted events.", "module", "name")
)

// observeEvents counts the events of interest of a committed block:
// slashes, instructions and receipts.
func observeEvents(evs []*events.Event) {
	for _, ev := range evs {
		switch ev.Module + "." + ev.Name {
		case "staking.Slash", "staking.SlashCancelled", "staking.StakingElection",
			"settlement.InstructionCreated", "settlement.InstructionExecuted",
			"settlement.InstructionFailed", "settlement.InstructionRejected",
			"settlement.ReceiptClaimed", "settlement.ReceiptUnclaimed":
			metricEvents().AddWithLabels(1, ev.Module, ev.Name)
		}
	}
}
