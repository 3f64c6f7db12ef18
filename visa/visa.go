// SPDX-License-Identifier: GPL-3.0-or-later

// Package visa describes the subset of the native VISA driver ABI used by
// package instr and provides loaders binding it from a shared library.
//
// The [Driver] interface has one method per driver entry point. Platform
// adapters bind the entry points from the vendor library at runtime using
// purego (darwin, linux) or [golang.org/x/sys/windows] (windows), so the
// module builds without cgo and without a VISA installation.
//
// Use [FuncDriver] in tests to script driver behavior.
package visa

import (
	"bytes"
	"errors"
	"fmt"
)

// Session is a VISA session or object handle (ViSession).
type Session uint32

// Status is a VISA completion code (ViStatus). Negative values are errors.
type Status int32

// Attribute identifies a VISA attribute (ViAttr).
type Attribute uint32

// Completion and error codes used by this module.
const (
	StatusSuccess         Status = 0
	StatusSuccessTermChar Status = 0x3FFF0005
	StatusSuccessMaxCount Status = 0x3FFF0006

	// The error codes are defined as 0xBFFFxxxx by the VISA headers.
	StatusErrorInvalidResourceName Status = -1073807342 // 0xBFFF0012
	StatusErrorTimeout             Status = -1073807339 // 0xBFFF0015
	StatusErrorResourceNotFound    Status = -1073807343 // 0xBFFF0011
)

// Attributes used by this module.
const (
	AttrSendEndEnabled  Attribute = 0x3FFF0016
	AttrTermChar        Attribute = 0x3FFF0018
	AttrTimeoutValue    Attribute = 0x3FFF001A
	AttrTermCharEnabled Attribute = 0x3FFF0038
)

// TimeoutInfinite disables the I/O timeout when used as [AttrTimeoutValue].
const TimeoutInfinite = 0xFFFFFFFF

// StatusDescSize is the size of the buffer passed to [Driver.StatusDesc].
//
// The VISA specification requires at least 256 bytes.
const StatusDescSize = 512

// Failed returns whether the status is an error code.
func (s Status) Failed() bool {
	return s < 0
}

// ErrUnsupportedPlatform indicates that no driver binary name is known
// for the running operating system and pointer width.
var ErrUnsupportedPlatform = errors.New("visa: unsupported platform")

// Driver is the native VISA call surface.
//
// Methods mirror the C entry points one to one and return the raw
// [Status]. Serializing calls, when the vendor library requires it,
// is the library's own responsibility.
type Driver interface {
	// OpenDefaultRM opens the default resource manager session (viOpenDefaultRM).
	OpenDefaultRM(session *Session) Status

	// Open opens a session to the named resource (viOpen).
	Open(rm Session, resource string, mode uint32, timeout uint32, vi *Session) Status

	// Clear performs an IEEE 488.1-style clear of the device (viClear).
	Clear(vi Session) Status

	// Read reads at most len(buf) bytes (viRead).
	Read(vi Session, buf []byte, count *uint32) Status

	// Write writes buf (viWrite).
	Write(vi Session, buf []byte, count *uint32) Status

	// GetAttribute reads an attribute into state (viGetAttribute).
	GetAttribute(vi Session, attr Attribute, state *uint64) Status

	// SetAttribute writes an attribute (viSetAttribute).
	SetAttribute(vi Session, attr Attribute, state uint64) Status

	// StatusDesc writes a NUL-terminated description of status into desc
	// (viStatusDesc). The desc buffer holds at least [StatusDescSize] bytes.
	StatusDesc(vi Session, status Status, desc []byte) Status

	// Close closes a session or object (viClose).
	Close(vi Session) Status
}

// Describe returns the driver's description of status, or false when
// the driver cannot provide one.
func Describe(driver Driver, vi Session, status Status) (string, bool) {
	buf := make([]byte, StatusDescSize)
	if driver.StatusDesc(vi, status, buf) != StatusSuccess {
		return "", false
	}
	if idx := bytes.IndexByte(buf, 0); idx >= 0 {
		buf = buf[:idx]
	}
	desc := string(bytes.TrimSpace(buf))
	return desc, desc != ""
}

// Error is a failed [Status] plus the driver's description of it.
type Error struct {
	// Status is the failed status.
	Status Status

	// Description is the driver's text, or empty when unavailable.
	Description string
}

// NewError returns an [*Error] for status, asking driver for a description.
func NewError(driver Driver, vi Session, status Status) *Error {
	desc, _ := Describe(driver, vi, status)
	return &Error{Status: status, Description: desc}
}

// Error implements error.
func (e *Error) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("visa: status %#x", uint32(e.Status))
	}
	return fmt.Sprintf("visa: %s (status %#x)", e.Description, uint32(e.Status))
}
