// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds small networking helpers shared by the relay
// server and the local bridge.
package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, use of a closed connection, broken pipe, or
// connection reset. These show up on the surviving side of a teardown
// when a terminal disconnects or the upstream link drops, and should
// be logged as lifecycle events rather than errors.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
