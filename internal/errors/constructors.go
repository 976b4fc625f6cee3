package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *SyncError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found: "+path).
		WithContext("path", path)
}

func ConfigRequired(field string) *SyncError {
	return New(CategoryConfig, SeverityFatal, field+" not set").
		WithContext("field", field)
}

func ConfigInvalid(field, reason string) *SyncError {
	return New(CategoryConfig, SeverityFatal, "invalid "+field+": "+reason).
		WithContext("field", field).
		WithContext("reason", reason)
}

// StateInvalid reports a persisted state record that exists but cannot be used.
func StateInvalid(path string, cause error) *SyncError {
	return Wrap(cause, CategoryConfig, SeverityFatal, "persisted state unreadable or invalid").
		WithContext("path", path)
}

// Validation errors

func ManifestMissing(dir, marker string) *SyncError {
	return New(CategoryValidation, SeverityFatal, "not a valid configuration source: "+marker+" missing in "+dir).
		WithContext("dir", dir).
		WithContext("marker", marker)
}

func ValidationFailed(field, reason string) *SyncError {
	return New(CategoryValidation, SeverityFatal, "invalid "+field+": "+reason).
		WithContext("field", field).
		WithContext("reason", reason)
}

// Transport errors

func UnsupportedScheme(scheme string) *SyncError {
	return New(CategoryUnsupportedScheme, SeverityFatal, "protocol not supported: "+scheme).
		WithContext("scheme", scheme)
}

func UnsupportedOperation(scheme, op string) *SyncError {
	return New(CategoryUnsupportedScheme, SeverityFatal, op+" not supported for "+scheme+" remotes").
		WithContext("scheme", scheme).
		WithContext("operation", op)
}

func TransportFailed(op, remote string, cause error) *SyncError {
	return WrapRetryable(cause, CategoryTransport, SeverityWarning, op+" failed").
		WithContext("operation", op).
		WithContext("remote", remote)
}

// Activation errors

func ActivationFailed(configuration string, cause error) *SyncError {
	return WrapRetryable(cause, CategoryActivation, SeverityError, "activation failed").
		WithContext("configuration", configuration)
}

// Runtime errors

func FilesystemError(operation string, cause error) *SyncError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "filesystem operation failed").
		WithContext("operation", operation)
}

func DaemonError(message string, cause error) *SyncError {
	return Wrap(cause, CategoryDaemon, SeverityFatal, message)
}

func InternalError(message string, cause error) *SyncError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
