// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package audit records a structured event for each downstream tool call
// the gateway dispatches: the call a `run` request makes, and each call a
// `code` script makes. The initialize handshake, tools/list, `find`, and
// the `code` request itself produce no event. Events are
// newline-delimited JSON, written through an Auditor to stdout or a
// configured file.
package audit
