package monitoring

import (
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")

	if !called {
		t.Error("custom logger was not called")
	}

	// nil installs a no-op logger
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("no-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
}

func TestDebugf_GatedByVerbose(t *testing.T) {
	original := Logf
	originalVerbose := Verbose
	defer func() {
		Logf = original
		Verbose = originalVerbose
	}()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})

	Verbose = false
	Debugf("suppressed")
	if called {
		t.Error("Debugf fired with Verbose off")
	}

	Verbose = true
	Debugf("emitted")
	if !called {
		t.Error("Debugf did not fire with Verbose on")
	}
}
