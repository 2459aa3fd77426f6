package audit

import (
	"context"
	"fmt"
	"sync"
)

// MultiLogger fans each event out to several backends, typically a
// DBLogger for querying plus a FileLogger for tamper-evident archive.
type MultiLogger struct {
	eventKinds
	loggers []Logger
	async   bool
	wg      sync.WaitGroup
	errChan chan error
}

// NewMultiLogger creates a fan-out logger. Delivery is asynchronous by
// default so audit writes stay off the request path.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{
		loggers: loggers,
		async:   true,
		errChan: make(chan error, len(loggers)),
	}
	m.eventKinds = eventKinds{sink: m.Log}
	return m
}

// SetAsync switches between asynchronous and synchronous delivery.
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// Log delivers the event to every backend.
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	if len(m.loggers) == 0 {
		return nil
	}
	if m.async {
		return m.logAsync(ctx, event)
	}
	return m.logSync(ctx, event)
}

// logSync writes to every backend even when one fails, returning the
// first failure.
func (m *MultiLogger) logSync(ctx context.Context, event *AuditEvent) error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// logAsync writes in the background; failures are collected on a
// bounded channel and read via GetErrors.
func (m *MultiLogger) logAsync(ctx context.Context, event *AuditEvent) error {
	for _, logger := range m.loggers {
		m.wg.Add(1)
		go func(l Logger) {
			defer m.wg.Done()
			if err := l.Log(ctx, event); err != nil {
				select {
				case m.errChan <- err:
				default:
					// Channel full, drop the error.
				}
			}
		}(logger)
	}
	return nil
}

// Wait blocks until all in-flight async writes finish.
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// GetErrors drains and returns the errors collected from async writes.
func (m *MultiLogger) GetErrors() []error {
	var errors []error
	for {
		select {
		case err := <-m.errChan:
			errors = append(errors, err)
		default:
			return errors
		}
	}
}

// Close waits for pending writes and closes every backend.
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close logger: %w", err)
		}
	}

	close(m.errChan)
	return firstErr
}
