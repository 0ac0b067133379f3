//go:build tools

// Package tools pins development tool dependencies.
package tools

import (
	_ "gotest.tools/gotestsum"
)
