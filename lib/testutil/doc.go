// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds shared test helpers. The channel helpers wrap
// the select-with-timeout pattern so that tests never hang forever on
// a channel that a broken implementation fails to service.
package testutil
