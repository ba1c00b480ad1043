// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package identity exposes the signed-in user to the workflow components.
//
// Credential issuance and verification belong to an external identity
// provider; docchat only needs the resulting user id.
package identity

import "strings"

// Provider reports the current user id. ok is false when nobody is signed in.
type Provider interface {
	UserID() (id string, ok bool)
}

// Static is a Provider backed by a fixed user id (config or --user flag).
// The empty Static is "signed out".
type Static string

// UserID implements Provider.
func (s Static) UserID() (string, bool) {
	id := strings.TrimSpace(string(s))
	return id, id != ""
}

// Anonymous never has a user.
var Anonymous Provider = Static("")
