// Package cmn provides common low-level types and utilities shared by all pixelvault services.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package cmn

import "github.com/sirupsen/logrus"

// Log is the process-wide structured logger. Every service wraps it with
// WithField("component", ...) rather than constructing its own logger.
var Log = logrus.StandardLogger()

// Component returns a logger entry tagged with the owning service name.
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
