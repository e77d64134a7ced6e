// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

var levelRank = map[LogLevel]int{
	DEBUG: 0,
	INFO:  1,
	WARN:  2,
	ERROR: 3,
}

// ParseLevel converts a level name to a LogLevel. Unknown names map to INFO.
func ParseLevel(s string) LogLevel {
	lvl := LogLevel(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelRank[lvl]; ok {
		return lvl
	}
	return INFO
}

// Logger provides structured logging scoped to a component
type Logger struct {
	Component  string
	InstanceID string
	Container  string

	minLevel LogLevel
	out      *log.Logger
	mu       sync.RWMutex
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id"`
	Container  string                 `json:"container"`
	TaskID     string                 `json:"task_id,omitempty"`
	RoleID     string                 `json:"role_id,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// New creates a new Logger for the specified component
func New(component string) *Logger {
	// Get instance ID from environment (set during deployment)
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	// Get container name from hostname
	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
		minLevel:   ParseLevel(os.Getenv("LOG_LEVEL")),
		out:        log.New(os.Stdout, "", 0),
	}
}

// NewWithWriter creates a Logger that writes to w instead of stdout.
func NewWithWriter(component string, w io.Writer) *Logger {
	l := New(component)
	l.out = log.New(w, "", 0)
	return l
}

// Discard returns a Logger that drops every entry.
func Discard() *Logger {
	return NewWithWriter("discard", io.Discard)
}

// With returns a copy of the logger for a different component that shares
// the same output and level.
func (l *Logger) With(component string) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Logger{
		Component:  component,
		InstanceID: l.InstanceID,
		Container:  l.Container,
		minLevel:   l.minLevel,
		out:        l.out,
	}
}

// SetLevel changes the minimum level written.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// Enabled reports whether entries at level are written.
func (l *Logger) Enabled(level LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return levelRank[level] >= levelRank[l.minLevel]
}

// Log creates a structured log entry and writes it to the output
func (l *Logger) Log(level LogLevel, taskID, roleID, message string, fields map[string]interface{}) {
	if l == nil || !l.Enabled(level) {
		return
	}

	entry := LogEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		Container:  l.Container,
		TaskID:     taskID,
		RoleID:     roleID,
		Message:    message,
		Fields:     fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	l.out.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(taskID, roleID, message string, fields map[string]interface{}) {
	l.Log(INFO, taskID, roleID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(taskID, roleID, message string, fields map[string]interface{}) {
	l.Log(ERROR, taskID, roleID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(taskID, roleID, message string, fields map[string]interface{}) {
	l.Log(WARN, taskID, roleID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(taskID, roleID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, taskID, roleID, message, fields)
}

// InfoWithDuration logs an info message with duration field
func (l *Logger) InfoWithDuration(taskID, roleID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(taskID, roleID, message, fields)
}

// ErrorWithCode logs an error with status code
func (l *Logger) ErrorWithCode(taskID, roleID, message string, statusCode int, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["status_code"] = statusCode
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(taskID, roleID, message, fields)
}
