//go:build tools

package main

import (
	_ "gotest.tools/gotestsum"
)
