package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	defaultMaxFileSize = 100 * 1024 * 1024
	defaultMaxFiles    = 10
	activeLogName      = "audit.log"
)

// FileLogger appends audit events as newline-delimited JSON, rotating
// by size. It is the archive backend; queries go through DBLogger.
type FileLogger struct {
	eventKinds
	basePath string
	rotate   bool
	maxSize  int64
	maxFiles int

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// FileLoggerConfig configures the file logger.
type FileLoggerConfig struct {
	BasePath string
	Rotate   bool
	MaxSize  int64 // bytes before rotation
	MaxFiles int   // rotated files to keep
}

// DefaultFileLoggerConfig returns the production defaults.
func DefaultFileLoggerConfig() FileLoggerConfig {
	return FileLoggerConfig{
		BasePath: "/var/log/formhive/audit",
		Rotate:   true,
		MaxSize:  defaultMaxFileSize,
		MaxFiles: defaultMaxFiles,
	}
}

// NewFileLogger creates a file audit logger, creating the log directory
// as needed.
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	logger := &FileLogger{
		basePath: config.BasePath,
		rotate:   config.Rotate,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
	}
	logger.eventKinds = eventKinds{sink: logger.Log}

	if logger.maxSize <= 0 {
		logger.maxSize = defaultMaxFileSize
	}
	if logger.maxFiles <= 0 {
		logger.maxFiles = defaultMaxFiles
	}

	if err := logger.openLogFile(); err != nil {
		return nil, err
	}
	return logger, nil
}

// Log appends the event, rotating first when the active file is full.
func (l *FileLogger) Log(ctx context.Context, event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotate && l.file != nil {
		if info, err := l.file.Stat(); err == nil && info.Size() >= l.maxSize {
			if err := l.openLogFile(); err != nil {
				return fmt.Errorf("failed to rotate log file: %w", err)
			}
		}
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// openLogFile opens the active log, rotating it out first if it has
// already reached the size limit. Caller holds mu (or is constructing).
func (l *FileLogger) openLogFile() error {
	filename := filepath.Join(l.basePath, activeLogName)

	if l.rotate {
		if info, err := os.Stat(filename); err == nil && info.Size() >= l.maxSize {
			if err := l.rotateFile(); err != nil {
				return fmt.Errorf("failed to rotate log file: %w", err)
			}
		}
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}

	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

// rotateFile renames the active log to a timestamped name and prunes
// old rotations past the retention limit.
func (l *FileLogger) rotateFile() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	active := filepath.Join(l.basePath, activeLogName)
	rotated := filepath.Join(l.basePath,
		fmt.Sprintf("audit-%s.log", time.Now().Format("2006-01-02-15-04-05")))

	if err := os.Rename(active, rotated); err != nil {
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	if err := l.pruneRotated(); err != nil {
		// Pruning failure must not block the write path.
		fmt.Fprintf(os.Stderr, "failed to cleanup old audit logs: %v\n", err)
	}
	return nil
}

// pruneRotated deletes the oldest rotated files beyond maxFiles. The
// timestamped names sort chronologically.
func (l *FileLogger) pruneRotated() error {
	files, err := filepath.Glob(filepath.Join(l.basePath, "audit-*.log"))
	if err != nil {
		return err
	}
	if len(files) <= l.maxFiles {
		return nil
	}

	sort.Strings(files)
	for _, file := range files[:len(files)-l.maxFiles] {
		if err := os.Remove(file); err != nil {
			fmt.Fprintf(os.Stderr, "failed to remove old audit log %s: %v\n", file, err)
		}
	}
	return nil
}

// ReadLogs reads up to count events from the active log file; count <= 0
// reads everything.
func (l *FileLogger) ReadLogs(count int) ([]*AuditEvent, error) {
	file, err := os.Open(filepath.Join(l.basePath, activeLogName))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var events []*AuditEvent
	decoder := json.NewDecoder(file)
	for {
		var event AuditEvent
		if err := decoder.Decode(&event); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode audit log entry: %w", err)
		}
		events = append(events, &event)
		if count > 0 && len(events) >= count {
			break
		}
	}
	return events, nil
}

// Close flushes and closes the active log file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
