// Package logtest holds logger.Logger doubles shared by package tests
package logtest

import (
	"fmt"
	"sync"

	"gitlab.com/nevasik7/alerting/logger"
)

// Noop is a logger that does nothing
type Noop struct{}

func (n *Noop) Debug(msg string)                          {}
func (n *Noop) Debugf(format string, args ...interface{}) {}
func (n *Noop) Info(msg string)                           {}
func (n *Noop) Infof(format string, args ...interface{})  {}
func (n *Noop) Warn(msg string)                           {}
func (n *Noop) Warnf(format string, args ...interface{})  {}
func (n *Noop) Error(msg string)                          {}
func (n *Noop) Errorf(format string, args ...interface{}) {}
func (n *Noop) Fatal(msg string)                          {}
func (n *Noop) Fatalf(format string, args ...interface{}) {}
func (n *Noop) Panic(msg string)                          {}
func (n *Noop) Panicf(format string, args ...interface{}) {}
func (n *Noop) WithField(key string, value interface{}) logger.Logger {
	return n
}
func (n *Noop) WithFields(fields map[string]interface{}) logger.Logger {
	return n
}

func New() logger.Logger {
	return &Noop{}
}

// Capture keeps formatted warn/error lines so tests can assert on reported failures
type Capture struct {
	Noop
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (c *Capture) Errorf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, fmt.Sprintf(format, args...))
}

func (c *Capture) Warnf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warns = append(c.warns, fmt.Sprintf(format, args...))
}

func (c *Capture) WithField(string, interface{}) logger.Logger { return c }

func (c *Capture) WithFields(map[string]interface{}) logger.Logger { return c }

func (c *Capture) Errors() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.errors...)
}

func (c *Capture) Warns() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.warns...)
}
