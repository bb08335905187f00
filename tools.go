//go:build tools

// Package tools pins the versions of the lint and vulnerability scanners.
package tools

import (
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
	_ "golang.org/x/vuln/cmd/govulncheck"
)
