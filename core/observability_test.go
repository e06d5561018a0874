package core

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: copyTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: copyTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func TestObserver_RecordsSuccess(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	observer := Observer{Logger: logger, Metrics: metrics}

	observer.Observe(context.Background(), time.Now(), "lazy.run", nil, map[string]any{
		"task_id": "Ev1",
		"kind":    "message",
	})

	if len(metrics.counters) != 1 || metrics.counters[0].name != "slack_dispatch.lazy.run.total" {
		t.Fatalf("expected run counter, got %+v", metrics.counters)
	}
	if metrics.counters[0].tags["status"] != "success" || metrics.counters[0].tags["kind"] != "message" {
		t.Fatalf("unexpected counter tags: %+v", metrics.counters[0].tags)
	}
	if len(metrics.histograms) != 1 || metrics.histograms[0].name != "slack_dispatch.lazy.run.duration_ms" {
		t.Fatalf("expected duration histogram, got %+v", metrics.histograms)
	}

	records := logger.snapshot()
	if len(records) != 1 || records[0].level != "debug" {
		t.Fatalf("expected one debug log, got %+v", records)
	}
	if records[0].fields["task_id"] != "Ev1" {
		t.Fatalf("expected task id field, got %+v", records[0].fields)
	}
}

func TestObserver_RecordsFailureAsError(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	observer := Observer{Logger: logger, Metrics: metrics, Prefix: "test"}

	observer.Observe(context.Background(), time.Now(), "dispatch", stderrors.New("queue full"), nil)

	if metrics.counters[0].name != "test.dispatch.total" || metrics.counters[0].tags["status"] != "failure" {
		t.Fatalf("unexpected failure counter: %+v", metrics.counters[0])
	}
	records := logger.snapshot()
	if len(records) != 1 || records[0].level != "error" || records[0].msg != "dispatch failed" {
		t.Fatalf("expected failure log, got %+v", records)
	}
	if records[0].fields["error"] != "queue full" {
		t.Fatalf("expected error field, got %+v", records[0].fields)
	}
}

func TestObserver_ZeroValueIsSafe(t *testing.T) {
	Observer{}.Observe(context.Background(), time.Now(), "noop", nil, nil)
	LogWithLevel(context.Background(), nil, "info", "ignored", nil)
}

func TestLogFields_SortsKeys(t *testing.T) {
	args := LogFields(map[string]any{"b": 2, "a": 1})
	if len(args) != 4 || args[0] != "a" || args[2] != "b" {
		t.Fatalf("expected sorted pairs, got %v", args)
	}
}
