// Package auditlog provides the run engine's two logging responsibilities
// (spec §2's L15 row, supplemented in SPEC_FULL.md §4.14 since spec.md
// never gives it its own subsection): a structured, level-routed process
// logger adapted from common/logging.go's OutputSplitter idiom, and a
// RedactionHook that scrubs known-sensitive field names before any entry
// is formatted. The persisted RunEvent stream itself is written
// transactionally by runworker.Manager; this package only supplies the
// logger those writes are logged through.
package auditlog

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes error-level entries to stderr and everything else
// to stdout, adapted directly from common.OutputSplitter.
type OutputSplitter struct{}

func (s *OutputSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// sensitiveFields lists the field names redacted from every log entry
// before formatting, regardless of level.
var sensitiveFields = map[string]bool{
	"lm_api_key":       true,
	"api_key":          true,
	"authorization":    true,
	"x-api-key":        true,
	"password":         true,
	"bearer_token":     true,
	"tenant_secret":    true,
}

const redactedPlaceholder = "***redacted***"

// RedactionHook scrubs sensitive field values from every log entry
// logrus fires it for, so LM provider API keys and tenant secrets never
// reach stdout/stderr even if a caller accidentally logs them.
type RedactionHook struct{}

// Levels returns every log level; redaction must apply regardless of
// severity.
func (RedactionHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire scrubs entry.Data in place for any key in sensitiveFields.
func (RedactionHook) Fire(entry *logrus.Entry) error {
	for key := range entry.Data {
		if sensitiveFields[normalizeFieldName(key)] {
			entry.Data[key] = redactedPlaceholder
		}
	}
	return nil
}

func normalizeFieldName(key string) string {
	out := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// New builds a logrus.Logger configured with OutputSplitter routing and
// RedactionHook scrubbing, the logger every package in this module should
// use for process-level (not per-run-event) logging.
func New() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&OutputSplitter{})
	logger.AddHook(RedactionHook{})
	return logger
}
