//go:build tools
// +build tools

// Package tools tracks build-time tool dependencies (mockgen for go generate).
package backend

import (
	_ "go.uber.org/mock/mockgen"
)
