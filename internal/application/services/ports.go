package services

import (
	"time"

	"github.com/mshogin/reasonguard/internal/domain/models"
)

// Logger is the logging surface the application layer needs.
// logging.StructuredLogger satisfies it.
type Logger interface {
	Debug(message string, fields ...map[string]interface{})
	Info(message string, fields ...map[string]interface{})
	Warn(message string, fields ...map[string]interface{})
	Error(message string, err error, fields ...map[string]interface{})
}

// MetricsRecorder receives pipeline events. metrics.Collector satisfies it.
type MetricsRecorder interface {
	RecordAnalysis(classification models.Classification, families int, elapsed time.Duration)
	RecordGateDecision(decision models.Decision)
	RecordOverride()
	RecordAgentRun(role string, valid bool, attempts int)
	RecordLLMCall(provider string, elapsed time.Duration, err error)
	RecordEmbeddingFailure()
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...map[string]interface{})        {}
func (nopLogger) Info(string, ...map[string]interface{})         {}
func (nopLogger) Warn(string, ...map[string]interface{})         {}
func (nopLogger) Error(string, error, ...map[string]interface{}) {}

type nopRecorder struct{}

// NopRecorder returns a MetricsRecorder that discards everything.
func NopRecorder() MetricsRecorder { return nopRecorder{} }

func (nopRecorder) RecordAnalysis(models.Classification, int, time.Duration) {}
func (nopRecorder) RecordGateDecision(models.Decision)                      {}
func (nopRecorder) RecordOverride()                                         {}
func (nopRecorder) RecordAgentRun(string, bool, int)                        {}
func (nopRecorder) RecordLLMCall(string, time.Duration, error)              {}
func (nopRecorder) RecordEmbeddingFailure()                                 {}
