// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command longevity-relay runs the chat relay backend. It accepts the same
// flags as "longevity relay".
package main

import (
	"os"

	"github.com/ayseljafar/Longevity-check/internal/cli"
)

func main() {
	os.Exit(cli.ExecuteArgs(append([]string{"relay"}, os.Args[1:]...)))
}
