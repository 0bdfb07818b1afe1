// Package db provides the persistence contract and its MySQL implementation.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package db

import (
	"database/sql/driver"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pixelvault/pixelvault/cmn"
)

func TestWrapQueryErrClassifiesConnectivity(t *testing.T) {
	err := wrapQueryErr(driver.ErrBadConn, "get media")
	assert.True(t, cmn.Is(err, cmn.KindChannel))

	err = wrapQueryErr(&net.OpError{Op: "dial", Err: errors.New("connection refused")}, "get media")
	assert.True(t, cmn.Is(err, cmn.KindChannel))

	err = wrapQueryErr(errors.New("Incorrect syntax"), "get media")
	assert.True(t, cmn.Is(err, cmn.KindBackend))
}
