package errors

import (
	"bytes"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"testing"
)

func TestSyncError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *SyncError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(CategoryConfig, SeverityFatal, "remote not set"),
			expected: "config (fatal): remote not set",
		},
		{
			name:     "error with cause",
			err:      Wrap(fmt.Errorf("unexpected EOF"), CategoryConfig, SeverityFatal, "failed to load state"),
			expected: "config (fatal): failed to load state: unexpected EOF",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := test.err.Error()
			if result != test.expected {
				t.Errorf("Error() = %q, want %q", result, test.expected)
			}
		})
	}
}

func TestSyncError_WithContext(t *testing.T) {
	err := New(CategoryTransport, SeverityWarning, "pull failed").
		WithContext("remote", "s3://bucket/cfg.tar.zst").
		WithContext("operation", "pull")

	if err.Context["remote"] != "s3://bucket/cfg.tar.zst" {
		t.Errorf("Context[remote] = %v", err.Context["remote"])
	}
	if err.Context["operation"] != "pull" {
		t.Errorf("Context[operation] = %v", err.Context["operation"])
	}
}

func TestClassificationThroughWrapping(t *testing.T) {
	base := TransportFailed("fetch version tag", "s3://b/k", fmt.Errorf("exit status 255"))
	wrapped := fmt.Errorf("cycle: %w", base)

	tests := []struct {
		name     string
		err      error
		category ErrorCategory
		expected bool
	}{
		{"direct transport error", base, CategoryTransport, true},
		{"wrapped transport error", wrapped, CategoryTransport, true},
		{"wrong category", wrapped, CategoryConfig, false},
		{"standard error", fmt.Errorf("plain"), CategoryTransport, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsCategory(test.err, test.category); got != test.expected {
				t.Errorf("IsCategory() = %v, want %v", got, test.expected)
			}
		})
	}

	if !IsRetryable(wrapped) {
		t.Error("transport errors should be retryable through wrapping")
	}
	if GetCategory(fmt.Errorf("plain")) != CategoryInternal {
		t.Error("unclassified errors should report internal category")
	}
}

func TestConvenienceFunctions(t *testing.T) {
	t.Run("UnsupportedScheme", func(t *testing.T) {
		err := UnsupportedScheme("ftp")
		if err.Category != CategoryUnsupportedScheme {
			t.Errorf("Category = %v", err.Category)
		}
		if err.Retryable {
			t.Error("unsupported scheme must never be retryable")
		}
		if err.Message != "protocol not supported: ftp" {
			t.Errorf("Message = %q", err.Message)
		}
	})

	t.Run("ActivationFailed", func(t *testing.T) {
		cause := fmt.Errorf("exit status 1")
		err := ActivationFailed("nodeA", cause)
		if err.Category != CategoryActivation {
			t.Errorf("Category = %v", err.Category)
		}
		if !err.Retryable {
			t.Error("activation failures are retried by the next cycle")
		}
		if !stdErrors.Is(err, cause) {
			t.Error("cause should be reachable")
		}
	})

	t.Run("ManifestMissing", func(t *testing.T) {
		err := ManifestMissing("/tmp/src", "flake.nix")
		if err.Category != CategoryValidation {
			t.Errorf("Category = %v", err.Category)
		}
		if err.Context["marker"] != "flake.nix" {
			t.Errorf("Context[marker] = %v", err.Context["marker"])
		}
	})
}

func TestCLIErrorAdapter_ExitCodes(t *testing.T) {
	a := NewCLIErrorAdapter(false, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	tests := []struct {
		err  error
		code int
	}{
		{nil, 0},
		{fmt.Errorf("plain"), 1},
		{ManifestMissing("d", "flake.nix"), 2},
		{ConfigRequired("remote"), 7},
		{TransportFailed("pull", "s3://b/k", fmt.Errorf("x")), 8},
		{UnsupportedScheme("ftp"), 9},
		{ActivationFailed("c", fmt.Errorf("x")), 11},
		{DaemonError("lock held", nil), 12},
	}
	for _, tt := range tests {
		if got := a.ExitCodeFor(tt.err); got != tt.code {
			t.Errorf("ExitCodeFor(%v) = %d, want %d", tt.err, got, tt.code)
		}
	}
}

func TestCLIErrorAdapter_Handle(t *testing.T) {
	var out bytes.Buffer
	a := NewCLIErrorAdapter(false, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))).WithOutput(&out)

	code := a.Handle(ConfigRequired("remote"))
	if code != 7 {
		t.Fatalf("code = %d", code)
	}
	if out.String() != "remote not set\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestCLIErrorAdapter_FormatCarriesReason(t *testing.T) {
	a := NewCLIErrorAdapter(false, nil)
	got := a.FormatError(ValidationFailed("dst", "/tmp/x already exists"))
	if got != "invalid dst: /tmp/x already exists" {
		t.Errorf("FormatError = %q", got)
	}
}
