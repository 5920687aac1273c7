package logging

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDebugfGated(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	SetVerbose(false)
	Debugf("hidden %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}

	SetVerbose(true)
	defer SetVerbose(false)
	Debugf("shown %d", 2)
	if !strings.Contains(buf.String(), "[DEBUG] shown 2") {
		t.Errorf("expected debug line, got %q", buf.String())
	}
}

func TestInputDebugf(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	SetInputDebug(true)
	defer SetInputDebug(false)
	InputDebugf("combo %v", []string{"ctrl", "c"})
	if !strings.Contains(buf.String(), "[DEBUG] input: combo [ctrl c]") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestSetupWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "lanshare.log")
	closer := Setup(Options{File: path})
	defer log.SetOutput(os.Stderr)

	log.Printf("[INFO] hello file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "[INFO] hello file") {
		t.Errorf("log file missing line: %q", data)
	}
}
