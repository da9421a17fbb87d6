package auditlog

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestRedactionHookScrubsKnownSensitiveFields(t *testing.T) {
	entry := &logrus.Entry{Data: logrus.Fields{
		"lm_api_key": "sk-super-secret",
		"run_id":     42,
	}}
	if err := (RedactionHook{}).Fire(entry); err != nil {
		t.Fatal(err)
	}
	if entry.Data["lm_api_key"] != redactedPlaceholder {
		t.Fatalf("expected lm_api_key redacted, got %v", entry.Data["lm_api_key"])
	}
	if entry.Data["run_id"] != 42 {
		t.Fatalf("expected non-sensitive field untouched, got %v", entry.Data["run_id"])
	}
}

func TestRedactionHookIsCaseInsensitive(t *testing.T) {
	entry := &logrus.Entry{Data: logrus.Fields{"API_Key": "sk-secret"}}
	if err := (RedactionHook{}).Fire(entry); err != nil {
		t.Fatal(err)
	}
	if entry.Data["API_Key"] != redactedPlaceholder {
		t.Fatalf("expected case-insensitive redaction, got %v", entry.Data["API_Key"])
	}
}

func TestOutputSplitterRoutesErrorLevelToStderr(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	origStderr := os.Stderr
	os.Stderr = w
	line := []byte("level=error msg=\"boom\"\n")
	splitter := &OutputSplitter{}
	n, err := splitter.Write(line)
	os.Stderr = origStderr
	w.Close()
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("expected bytes written")
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, line) {
		t.Fatalf("expected the error line on stderr, got %q", got)
	}
}
