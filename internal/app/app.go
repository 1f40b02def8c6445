// Package app defines application-wide types, constants, and context
// that are shared across multiple commands.
package app

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"os"
	"path/filepath"
)

// Name is the name of the application executable.
var Name = filepath.Base(os.Args[0])

// Context represents the application context that can be accessed from all commands.
type Context struct {
	Timestamp string // Timestamp is the timestamp when the application was started.
	OutputDir string // OutputDir is the directory where the application will write output files.
	Version   string // Version is the version of the application.
	Debug     bool   // Debug is true if the application is running in debug mode.
}

// Flag names for flags defined in the root command, but sometimes used in subcommands.
const (
	FlagDebugName     = "debug"
	FlagLogStdOutName = "log-stdout"
	FlagOutputDirName = "output"
	FlagConfigName    = "config"
)
