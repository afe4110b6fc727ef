package logger

import (
	"fmt"
	"strings"
	"sync"
)

// TestLogEntry is one captured log record.
type TestLogEntry struct {
	Severity string
	Message  string
	Metadata map[string]interface{}
}

// TestLogger captures log records in memory so tests can assert on them.
// Loggers derived via With or WithPrefix share the same capture buffer.
type TestLogger struct {
	mu       *sync.Mutex
	logs     *[]TestLogEntry
	metadata map[string]interface{}
	prefixes []string
}

var _ Logger = (*TestLogger)(nil)

func (c *TestLogger) With(metadata map[string]interface{}) Logger {
	kv := make(map[string]interface{})
	for k, v := range c.metadata {
		kv[k] = v
	}
	for k, v := range metadata {
		kv[k] = v
	}
	return &TestLogger{mu: c.mu, logs: c.logs, metadata: kv, prefixes: c.prefixes}
}

func (c *TestLogger) WithPrefix(prefix string) Logger {
	prefixes := make([]string, len(c.prefixes))
	copy(prefixes, c.prefixes)
	prefixes = append(prefixes, prefix)
	return &TestLogger{mu: c.mu, logs: c.logs, metadata: c.metadata, prefixes: prefixes}
}

func (c *TestLogger) IsLevelEnabled(level LogLevel) bool {
	return true
}

func (c *TestLogger) log(severity string, msg string, args ...interface{}) {
	formatted := fmt.Sprintf(msg, args...)
	if len(c.prefixes) > 0 {
		formatted = strings.Join(c.prefixes, " ") + " " + formatted
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.logs = append(*c.logs, TestLogEntry{severity, formatted, c.metadata})
}

func (c *TestLogger) Trace(msg string, args ...interface{}) {
	c.log("TRACE", msg, args...)
}

func (c *TestLogger) Debug(msg string, args ...interface{}) {
	c.log("DEBUG", msg, args...)
}

func (c *TestLogger) Info(msg string, args ...interface{}) {
	c.log("INFO", msg, args...)
}

func (c *TestLogger) Warn(msg string, args ...interface{}) {
	c.log("WARNING", msg, args...)
}

func (c *TestLogger) Error(msg string, args ...interface{}) {
	c.log("ERROR", msg, args...)
}

// Fatal records the entry but does not exit, so tests can assert on it.
func (c *TestLogger) Fatal(msg string, args ...interface{}) {
	c.log("FATAL", msg, args...)
}

// Logs returns a copy of the captured entries.
func (c *TestLogger) Logs() []TestLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TestLogEntry, len(*c.logs))
	copy(out, *c.logs)
	return out
}

// NewTestLogger returns a new Logger instance useful for testing
func NewTestLogger() *TestLogger {
	logs := make([]TestLogEntry, 0)
	return &TestLogger{mu: &sync.Mutex{}, logs: &logs}
}
