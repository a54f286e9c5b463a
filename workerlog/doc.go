// Package workerlog centralizes the structured-logging conventions used
// across the worker: every logger carries a "component" field naming the
// package it belongs to, mirroring the logrus.WithFields(...) idiom the rest
// of this codebase's ancestry uses for every log line (see the original
// av/rtp package this module grew out of).
package workerlog
