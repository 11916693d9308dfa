package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeConflict           ErrorCode = "COMMON_004"
	ErrCodeTimeout            ErrorCode = "COMMON_005"
	ErrCodeValidation         ErrorCode = "COMMON_006"
	ErrCodeSerialization      ErrorCode = "COMMON_007"
	ErrCodeDatabaseError      ErrorCode = "COMMON_008"
	ErrCodeCacheError         ErrorCode = "COMMON_009"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_010"
	ErrCodeNotImplemented     ErrorCode = "COMMON_011"
)

// Short aliases used at call sites throughout the codebase.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeValidation   = ErrCodeValidation

	CodeOK      = ErrorCode("OK")
	CodeUnknown = ErrorCode("UNKNOWN")
)

// Ingest Module Error Codes
const (
	ErrCodeSourceUnreadable    ErrorCode = "ING_001"
	ErrCodeMalformedRow        ErrorCode = "ING_002"
	ErrCodeDimensionMismatch   ErrorCode = "ING_003"
	ErrCodeDuplicateToken      ErrorCode = "ING_004"
	ErrCodeEmptyEmbeddingTable ErrorCode = "ING_005"
)

// Vectorizer Module Error Codes
const (
	ErrCodeTokenFieldUnparsable ErrorCode = "VEC_001"
	ErrCodeNoResolvableTokens   ErrorCode = "VEC_002"
)

// Scorer Module Error Codes
const (
	ErrCodeScoringFailed        ErrorCode = "SCORE_001"
	ErrCodeVectorLengthMismatch ErrorCode = "SCORE_002"
)

// Analytics Module Error Codes
const (
	ErrCodeNoScoredQuestions ErrorCode = "ANA_001"
	ErrCodeSampleTooSmall    ErrorCode = "ANA_002"
)

// Run / Report Error Codes
const (
	ErrCodeRunNotFound    ErrorCode = "RUN_001"
	ErrCodeReportNotFound ErrorCode = "RUN_002"
	ErrCodeRunFailed      ErrorCode = "RUN_003"
	ErrCodeRunInProgress  ErrorCode = "RUN_004"
)

// Sink Error Codes
const (
	ErrCodePersistFailed      ErrorCode = "STORE_001"
	ErrCodeArchiveFailed      ErrorCode = "STORE_002"
	ErrCodeIndexFailed        ErrorCode = "STORE_003"
	ErrCodePublishFailed      ErrorCode = "STORE_004"
	ErrCodeGraphWriteFailed   ErrorCode = "STORE_005"
	ErrCodeVectorStoreFailed  ErrorCode = "STORE_006"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeNotImplemented:     http.StatusNotImplemented,

	ErrCodeSourceUnreadable:    http.StatusBadRequest,
	ErrCodeMalformedRow:        http.StatusBadRequest,
	ErrCodeDimensionMismatch:   http.StatusBadRequest,
	ErrCodeDuplicateToken:      http.StatusConflict,
	ErrCodeEmptyEmbeddingTable: http.StatusBadRequest,

	ErrCodeTokenFieldUnparsable: http.StatusUnprocessableEntity,
	ErrCodeNoResolvableTokens:   http.StatusUnprocessableEntity,

	ErrCodeScoringFailed:        http.StatusInternalServerError,
	ErrCodeVectorLengthMismatch: http.StatusInternalServerError,

	ErrCodeNoScoredQuestions: http.StatusUnprocessableEntity,
	ErrCodeSampleTooSmall:    http.StatusUnprocessableEntity,

	ErrCodeRunNotFound:    http.StatusNotFound,
	ErrCodeReportNotFound: http.StatusNotFound,
	ErrCodeRunFailed:      http.StatusInternalServerError,
	ErrCodeRunInProgress:  http.StatusConflict,

	ErrCodePersistFailed:     http.StatusInternalServerError,
	ErrCodeArchiveFailed:     http.StatusInternalServerError,
	ErrCodeIndexFailed:       http.StatusInternalServerError,
	ErrCodePublishFailed:     http.StatusInternalServerError,
	ErrCodeGraphWriteFailed:  http.StatusInternalServerError,
	ErrCodeVectorStoreFailed: http.StatusInternalServerError,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeNotImplemented:     "not implemented",

	ErrCodeSourceUnreadable:    "input source unreadable",
	ErrCodeMalformedRow:        "malformed input row",
	ErrCodeDimensionMismatch:   "embedding dimension mismatch",
	ErrCodeDuplicateToken:      "duplicate token identifier",
	ErrCodeEmptyEmbeddingTable: "embedding table is empty",

	ErrCodeTokenFieldUnparsable: "token identifier field unparsable",
	ErrCodeNoResolvableTokens:   "no token resolvable against the embedding table",

	ErrCodeScoringFailed:        "controversy scoring failed",
	ErrCodeVectorLengthMismatch: "vector length mismatch",

	ErrCodeNoScoredQuestions: "no question has a scored answer",
	ErrCodeSampleTooSmall:    "sample too small for correlation",

	ErrCodeRunNotFound:    "analysis run not found",
	ErrCodeReportNotFound: "analysis report not found",
	ErrCodeRunFailed:      "analysis run failed",
	ErrCodeRunInProgress:  "an analysis run is already in progress",

	ErrCodePersistFailed:     "failed to persist analysis output",
	ErrCodeArchiveFailed:     "failed to archive report",
	ErrCodeIndexFailed:       "failed to index score documents",
	ErrCodePublishFailed:     "failed to publish event",
	ErrCodeGraphWriteFailed:  "failed to write disagreement graph",
	ErrCodeVectorStoreFailed: "failed to store answer vectors",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
