// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package types

import "github.com/stakemesh/stakemesh/builtin/reverts"

var (
	ErrNotController      = reverts.New(reverts.Authorization, Module, "not a controller")
	ErrNotStash           = reverts.New(reverts.Authorization, Module, "not a stash")
	ErrNotPermissioned    = reverts.New(reverts.Authorization, Module, "validator not permissioned")
	ErrMissingCDD         = reverts.New(reverts.Authorization, Module, "nominator without valid cdd claim")
	ErrAlreadyBonded      = reverts.New(reverts.State, Module, "stash already bonded")
	ErrAlreadyPaired      = reverts.New(reverts.State, Module, "controller already paired")
	ErrEmptyTargets       = reverts.New(reverts.State, Module, "empty targets")
	ErrInvalidSlashIndex  = reverts.New(reverts.State, Module, "invalid slash index")
	ErrNotSortedAndUnique = reverts.New(reverts.State, Module, "slash indices not sorted and unique")
	ErrNoMoreChunks       = reverts.New(reverts.Capacity, Module, "too many unlocking chunks")
	ErrInsufficientValue  = reverts.New(reverts.Amount, Module, "bond below minimum balance")
)
