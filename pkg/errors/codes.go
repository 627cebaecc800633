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
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeRateLimited        ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeNotImplemented     ErrorCode = "COMMON_016"
)

// Aliases used at call sites that predate the module-prefixed names.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Molecule notation Error Codes
const (
	ErrCodeMoleculeInvalidSMILES    ErrorCode = "MOL_001"
	ErrCodeMoleculeParsingFailed    ErrorCode = "MOL_006"
	ErrCodeMoleculeConversionFailed ErrorCode = "MOL_011"
	ErrCodeUnsupportedBondType      ErrorCode = "MOL_016"
	ErrCodeUnsupportedElement       ErrorCode = "MOL_017"
)

// Graph Model Error Codes
const (
	ErrCodeGraphEmpty               ErrorCode = "GRAPH_001"
	ErrCodeGraphBondIndexInvalid    ErrorCode = "GRAPH_002"
	ErrCodeGraphBondOrderInvalid    ErrorCode = "GRAPH_003"
	ErrCodeGraphDuplicateBond       ErrorCode = "GRAPH_004"
	ErrCodeGraphCapacityMismatch    ErrorCode = "GRAPH_005"
	ErrCodeGraphAtomicNumberInvalid ErrorCode = "GRAPH_006"
)

// Substitution Engine Error Codes
const (
	ErrCodeSubstitutionCountInvalid ErrorCode = "SUB_001"
	ErrCodeVariantLimitExceeded     ErrorCode = "SUB_002"
	ErrCodeEnumerationCancelled     ErrorCode = "SUB_003"
	ErrCodeSubstituentListEmpty     ErrorCode = "SUB_004"
)

// Sink Error Codes
const (
	ErrCodeSinkUnknown        ErrorCode = "SINK_001"
	ErrCodeSinkWriteFailed    ErrorCode = "SINK_002"
	ErrCodeSinkUnavailable    ErrorCode = "SINK_003"
	ErrCodePublishFailed      ErrorCode = "SINK_004"
	ErrCodeObjectUploadFailed ErrorCode = "SINK_005"
)

// codeInfo is the HTTP status and default message registered for a code.
type codeInfo struct {
	status  int
	message string
}

var registry = map[ErrorCode]codeInfo{
	ErrCodeInternal:           {http.StatusInternalServerError, "internal server error"},
	ErrCodeBadRequest:         {http.StatusBadRequest, "bad request"},
	ErrCodeNotFound:           {http.StatusNotFound, "resource not found"},
	ErrCodeConflict:           {http.StatusConflict, "resource conflict"},
	ErrCodeRateLimited:        {http.StatusTooManyRequests, "rate limit exceeded, retry later"},
	ErrCodeServiceUnavailable: {http.StatusServiceUnavailable, "service unavailable"},
	ErrCodeTimeout:            {http.StatusGatewayTimeout, "request timeout"},
	ErrCodeValidation:         {http.StatusUnprocessableEntity, "validation failed"},
	ErrCodeSerialization:      {http.StatusInternalServerError, "serialization failed"},
	ErrCodeDatabaseError:      {http.StatusInternalServerError, "database error"},
	ErrCodeCacheError:         {http.StatusInternalServerError, "cache error"},
	ErrCodeExternalService:    {http.StatusInternalServerError, "external service error"},
	ErrCodeNotImplemented:     {http.StatusNotImplemented, "not implemented"},

	ErrCodeMoleculeInvalidSMILES:    {http.StatusBadRequest, "invalid SMILES format"},
	ErrCodeMoleculeParsingFailed:    {http.StatusBadRequest, "failed to parse molecule"},
	ErrCodeMoleculeConversionFailed: {http.StatusInternalServerError, "molecule format conversion failed"},
	ErrCodeUnsupportedBondType:      {http.StatusBadRequest, "unsupported bond type"},
	ErrCodeUnsupportedElement:       {http.StatusBadRequest, "unsupported element"},

	ErrCodeGraphEmpty:               {http.StatusBadRequest, "graph has no atoms"},
	ErrCodeGraphBondIndexInvalid:    {http.StatusBadRequest, "bond references an atom outside the graph"},
	ErrCodeGraphBondOrderInvalid:    {http.StatusBadRequest, "bond order out of range"},
	ErrCodeGraphDuplicateBond:       {http.StatusBadRequest, "atom pair bonded more than once"},
	ErrCodeGraphCapacityMismatch:    {http.StatusBadRequest, "hydrogen capacity length does not match atom count"},
	ErrCodeGraphAtomicNumberInvalid: {http.StatusBadRequest, "atomic number out of range"},

	ErrCodeSubstitutionCountInvalid: {http.StatusBadRequest, "substitution count must not be negative"},
	ErrCodeVariantLimitExceeded:     {http.StatusUnprocessableEntity, "variant count exceeds configured limit"},
	ErrCodeEnumerationCancelled:     {http.StatusRequestTimeout, "enumeration cancelled"},
	ErrCodeSubstituentListEmpty:     {http.StatusBadRequest, "at least one substituent is required"},

	ErrCodeSinkUnknown:        {http.StatusBadRequest, "unknown variant sink"},
	ErrCodeSinkWriteFailed:    {http.StatusBadGateway, "variant sink write failed"},
	ErrCodeSinkUnavailable:    {http.StatusServiceUnavailable, "variant sink unavailable"},
	ErrCodePublishFailed:      {http.StatusBadGateway, "publish failed"},
	ErrCodeObjectUploadFailed: {http.StatusBadGateway, "object upload failed"},
}

// Registered reports whether code has a status and default message.
func Registered(code ErrorCode) bool {
	_, ok := registry[code]
	return ok
}

// HTTPStatusForCode returns the HTTP status for code, 500 when unregistered.
func HTTPStatusForCode(code ErrorCode) int {
	if info, ok := registry[code]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

func DefaultMessageForCode(code ErrorCode) string {
	if info, ok := registry[code]; ok {
		return info.message
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

// ModuleForCode returns the prefix before the first underscore, e.g. "SUB".
func ModuleForCode(code ErrorCode) string {
	if module, _, _ := strings.Cut(string(code), "_"); module != "" {
		return module
	}
	return "UNKNOWN"
}

//Personal.AI order the ending
