// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import "github.com/hashicorp/go-unarchive/cmd"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// main starts the unarchive cli
func main() {
	cmd.Run(version, commit, date)
}
