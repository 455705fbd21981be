// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package reverts defines the errors a dispatched call may fail with. They
// are deterministic and observable: the dispatcher reverts the call and
// records the error, while any other error is an infrastructure failure.
package reverts

import (
	"errors"
	"fmt"
)

// Kind classifies a revert.
type Kind uint8

const (
	Authorization Kind = iota + 1
	State
	Capacity
	Amount
	Timing
	Receipt
	Election
	Execution
)

var kindNames = map[Kind]string{
	Authorization: "authorization",
	State:         "state",
	Capacity:      "capacity",
	Amount:        "amount",
	Timing:        "timing",
	Receipt:       "receipt",
	Election:      "election",
	Execution:     "execution",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is a dispatch error raised by a runtime module.
type Error struct {
	Kind    Kind
	Module  string
	Message string
}

// New creates a revert. Modules declare them once as sentinels and compare
// with errors.Is.
func New(kind Kind, module, message string) *Error {
	return &Error{Kind: kind, Module: module, Message: message}
}

func (e *Error) Error() string {
	return e.Module + ": " + e.Message
}

// Is matches by value so sentinels survive being decoded from a receipt or
// event.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return *e == *t
}

// IsRevert reports whether err is, or wraps, a revert.
func IsRevert(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// KindOf returns the kind of the wrapped revert, zero if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Wrapf annotates a revert with detail while keeping it matchable.
func Wrapf(err *Error, format string, args ...any) error {
	return &detailed{base: err, detail: fmt.Sprintf(format, args...)}
}

type detailed struct {
	base   *Error
	detail string
}

func (d *detailed) Error() string {
	return d.base.Error() + " (" + d.detail + ")"
}

func (d *detailed) Unwrap() error {
	return d.base
}
