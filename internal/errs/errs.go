//
// Copyright (c) 2012-2018 Red Hat, Inc.
// This program and the accompanying materials are made
// available under the terms of the Eclipse Public License 2.0
// which is available at https://www.eclipse.org/legal/epl-2.0/
//
// SPDX-License-Identifier: EPL-2.0
//
// Contributors:
//   Red Hat, Inc. - initial API and implementation
//

// Package errs defines the error kinds shared by the synchronizer and the
// gallery API, so that a single switch at each boundary (pass summary,
// HTTP response mapping) can decide what to do with a failure without
// string-matching error messages.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of the propagation policy.
type Kind int

const (
	// Unknown is the zero value; never returned by this package's own
	// constructors, but matched against when wrapping a foreign error.
	Unknown Kind = iota
	UpstreamUnavailable
	UpstreamMalformed
	AssetIntegrityMismatch
	StoreIO
	ConfigInvalid
	RequestMalformed
	NotFound
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case UpstreamUnavailable:
		return "UpstreamUnavailable"
	case UpstreamMalformed:
		return "UpstreamMalformed"
	case AssetIntegrityMismatch:
		return "AssetIntegrityMismatch"
	case StoreIO:
		return "StoreIO"
	case ConfigInvalid:
		return "ConfigInvalid"
	case RequestMalformed:
		return "RequestMalformed"
	case NotFound:
		return "NotFound"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error is a Kind-tagged error that wraps an underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given kind and operation label. Returns nil if err
// is nil, so call sites can do `return errs.New(..., err)` unconditionally.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or any error it wraps) was tagged with kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err if it (or a wrapped error) is an *Error,
// else Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
