package util

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"os/user"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandUser(t *testing.T) {
	usr, err := user.Current()
	assert.NoError(t, err)
	assert.Equal(t, usr.HomeDir, ExpandUser("~"))
	assert.Equal(t, "not-a-tilde-path", ExpandUser("not-a-tilde-path"))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-5, 0, 100))
	assert.Equal(t, 100.0, Clamp(500, 0, 100))
	assert.Equal(t, 42.0, Clamp(42, 0, 100))
}

func TestClampInt(t *testing.T) {
	assert.Equal(t, 2, ClampInt(1, 2, 8))
	assert.Equal(t, 8, ClampInt(20, 2, 8))
	assert.Equal(t, 5, ClampInt(5, 2, 8))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, Round2(1.2349))
	assert.Equal(t, 1.24, Round2(1.2351))
	assert.Equal(t, -1.23, Round2(-1.2349))
}
