// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package audit

import "context"

// BackendInfo identifies the downstream provider an audited call is
// bound for, attached to a call's context by the connection manager
// before dispatch so the auditor can label events without threading
// an extra parameter through every call site.
type BackendInfo struct {
	BackendName string
}

type backendInfoKey struct{}

// WithBackendInfo returns a derived context carrying info.
func WithBackendInfo(ctx context.Context, info *BackendInfo) context.Context {
	return context.WithValue(ctx, backendInfoKey{}, info)
}

// BackendInfoFromContext retrieves the BackendInfo attached by
// WithBackendInfo, if any.
func BackendInfoFromContext(ctx context.Context) (*BackendInfo, bool) {
	info, ok := ctx.Value(backendInfoKey{}).(*BackendInfo)
	return info, ok
}
