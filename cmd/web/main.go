// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command longevity-web runs the browser frontend. It accepts the same flags
// as "longevity web".
package main

import (
	"os"

	"github.com/ayseljafar/Longevity-check/internal/cli"
)

func main() {
	os.Exit(cli.ExecuteArgs(append([]string{"web"}, os.Args[1:]...)))
}
