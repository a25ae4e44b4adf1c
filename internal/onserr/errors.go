// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package onserr carries the error family shared by every OpenNaaS-facing
// component. Three kinds exist: NotFound (the target row or upstream object is
// absent), NotAvailable (the target exists but its state forbids the
// operation), and the general ONS failure covering transport and persistence.
// The GENI delegate maps these onto SearchFailed, AlreadyExists and
// GeneralError respectively.
package onserr

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotFound marks errors about a missing resource, endpoint or slice.
	ErrNotFound = errors.New("not found")
	// ErrNotAvailable marks errors about a resource in a state that forbids
	// the requested operation.
	ErrNotAvailable = errors.New("not available")
)

// New returns a general ONS error.
func New(msg string) error {
	return errors.New("ons: " + msg)
}

// Errorf returns a general ONS error with a formatted message.
func Errorf(format string, args ...any) error {
	return errors.Errorf("ons: "+format, args...)
}

// Wrap annotates err as a general ONS failure. Returns nil if err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, "ons: "+msg)
}

// Wrapf annotates err as a general ONS failure with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "ons: "+format, args...)
}

// NotFoundf returns an error satisfying IsNotFound.
func NotFoundf(format string, args ...any) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}

// NotAvailablef returns an error satisfying IsNotAvailable.
func NotAvailablef(format string, args ...any) error {
	return errors.Wrapf(ErrNotAvailable, format, args...)
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNotAvailable reports whether err is a NotAvailable error.
func IsNotAvailable(err error) bool {
	return errors.Is(err, ErrNotAvailable)
}
