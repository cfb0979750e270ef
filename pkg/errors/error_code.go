package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidRecord    ErrorCode = 100
	ErrCodeMissingField     ErrorCode = 101
	ErrCodeInvalidField     ErrorCode = 102
	ErrCodeInvalidTimestamp ErrorCode = 103
	ErrCodeInvalidDuration  ErrorCode = 104
	ErrCodeInvalidSide      ErrorCode = 105
	ErrCodeInvalidMagic     ErrorCode = 106
	ErrCodeInvalidConfig    ErrorCode = 107

	// Schema errors (200-299)
	ErrCodeMissingColumn      ErrorCode = 200
	ErrCodeMissingCloseReason ErrorCode = 201

	// Storage errors (300-399)
	ErrCodePartitionNotFound ErrorCode = 300
	ErrCodeQueryFailed       ErrorCode = 301
	ErrCodeAppendFailed      ErrorCode = 302
	ErrCodeImportFailed      ErrorCode = 303
	ErrCodeClientNotFound    ErrorCode = 304
	ErrCodeStoreClosed       ErrorCode = 305

	// Server errors (400-499)
	ErrCodeMissingParameter ErrorCode = 400
	ErrCodeInvalidParameter ErrorCode = 401
	ErrCodeInvalidFileType  ErrorCode = 402
	ErrCodeUploadFailed     ErrorCode = 403

	// Report errors (500-599)
	ErrCodeReportFailed ErrorCode = 500
)
