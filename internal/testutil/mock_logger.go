// Package testutil provides test helpers shared across BOMMesh packages.
package testutil

import (
	"strings"
	"sync"

	"github.com/turtacn/BOMMesh/internal/infrastructure/monitoring/logging"
)

// LogMessage is one recorded entry. Fields include those bound with With.
type LogMessage struct {
	Level   string
	Message string
	Fields  []logging.Field
}

// Field returns the value of the last field named key.
func (l LogMessage) Field(key string) (interface{}, bool) {
	for i := len(l.Fields) - 1; i >= 0; i-- {
		if l.Fields[i].Key == key {
			return l.Fields[i].Value, true
		}
	}
	return nil, false
}

type logSink struct {
	mu      sync.Mutex
	entries []LogMessage
}

// MockLogger records entries in memory. Loggers derived through With and
// Named share the parent's record.
type MockLogger struct {
	sink  *logSink
	name  string
	bound []logging.Field
}

func NewMockLogger() *MockLogger {
	return &MockLogger{sink: &logSink{}}
}

func (m *MockLogger) record(level, msg string, fields []logging.Field) {
	all := make([]logging.Field, 0, len(m.bound)+len(fields)+1)
	if m.name != "" {
		all = append(all, logging.String("logger", m.name))
	}
	all = append(append(all, m.bound...), fields...)

	m.sink.mu.Lock()
	m.sink.entries = append(m.sink.entries, LogMessage{Level: level, Message: msg, Fields: all})
	m.sink.mu.Unlock()
}

func (m *MockLogger) Debug(msg string, fields ...logging.Field) { m.record("debug", msg, fields) }
func (m *MockLogger) Info(msg string, fields ...logging.Field)  { m.record("info", msg, fields) }
func (m *MockLogger) Warn(msg string, fields ...logging.Field)  { m.record("warn", msg, fields) }
func (m *MockLogger) Error(msg string, fields ...logging.Field) { m.record("error", msg, fields) }

// Fatal records at "fatal" and does not exit.
func (m *MockLogger) Fatal(msg string, fields ...logging.Field) { m.record("fatal", msg, fields) }

func (m *MockLogger) With(fields ...logging.Field) logging.Logger {
	bound := append(append([]logging.Field{}, m.bound...), fields...)
	return &MockLogger{sink: m.sink, name: m.name, bound: bound}
}

func (m *MockLogger) Named(name string) logging.Logger {
	if m.name != "" {
		name = m.name + "." + name
	}
	return &MockLogger{sink: m.sink, name: name, bound: m.bound}
}

// GetMessages returns a snapshot of the record.
func (m *MockLogger) GetMessages() []LogMessage {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	return append([]LogMessage(nil), m.sink.entries...)
}

func (m *MockLogger) Clear() {
	m.sink.mu.Lock()
	m.sink.entries = nil
	m.sink.mu.Unlock()
}

// Find returns entries at level whose message satisfies match.
func (m *MockLogger) Find(level string, match func(msg string) bool) []LogMessage {
	var out []LogMessage
	for _, e := range m.GetMessages() {
		if e.Level == level && match(e.Message) {
			out = append(out, e)
		}
	}
	return out
}

func (m *MockLogger) HasMessage(level, msg string) bool {
	return len(m.Find(level, func(s string) bool { return s == msg })) > 0
}

func (m *MockLogger) HasMessageContaining(level, substr string) bool {
	return len(m.Find(level, func(s string) bool { return strings.Contains(s, substr) })) > 0
}

func (m *MockLogger) CountLevel(level string) int {
	return len(m.Find(level, func(string) bool { return true }))
}

var _ logging.Logger = (*MockLogger)(nil)
