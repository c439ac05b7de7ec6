package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown  ErrorCode = 1
	ErrCodeCanceled ErrorCode = 2

	// Configuration errors (100-199)
	ErrCodeInvalidParameter  ErrorCode = 100
	ErrCodeInvalidConfig     ErrorCode = 101
	ErrCodeDuplicateName     ErrorCode = 102
	ErrCodeMaxAgentsExceeded ErrorCode = 103
	ErrCodeInvalidThreshold  ErrorCode = 104
	ErrCodeUnsupportedVenue  ErrorCode = 105
	ErrCodeUnknownStrategy   ErrorCode = 106

	// State errors (200-299)
	ErrCodeStateConflict       ErrorCode = 200
	ErrCodeAgentNotFound       ErrorCode = 201
	ErrCodePositionNotFound    ErrorCode = 202
	ErrCodeReservationNotFound ErrorCode = 203
	ErrCodeExposureHeld        ErrorCode = 204

	// Connector errors (300-399)
	ErrCodeConnectorRetryable ErrorCode = 300
	ErrCodeConnectorFatal     ErrorCode = 301
	ErrCodeOrderFailed        ErrorCode = 302
	ErrCodeInsufficientData   ErrorCode = 303
	ErrCodeNoPrice            ErrorCode = 304

	// Risk errors (400-499)
	ErrCodeRiskDenied       ErrorCode = 400
	ErrCodeEmergencyStopped ErrorCode = 401

	// Persistence errors (500-599)
	ErrCodePersistence   ErrorCode = 500
	ErrCodeSchemaVersion ErrorCode = 501
	ErrCodeRecordCorrupt ErrorCode = 502
)
