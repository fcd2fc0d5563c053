/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil contains assertions shared by tests of admission components.
package testutil

type tHelper interface {
	Helper()
}
