package data

import "github.com/ngageoint/scale/internal/common/scaleerrors"

// Interface and connection error codes
const (
	DuplicateInterface    = "DUPLICATE_INTERFACE"
	DuplicateInput        = "DUPLICATE_INPUT"
	MissingOutput         = "MISSING_OUTPUT"
	MismatchedParamType   = "MISMATCHED_PARAM_TYPE"
	ParamRequired         = "PARAM_REQUIRED"
	NoMultipleFiles       = "NO_MULTIPLE_FILES"
	MismatchedJSONType    = "MISMATCHED_JSON_TYPE"
	MismatchedMediaTypes  = "MISMATCHED_MEDIA_TYPES"
	InvalidJSONParamType  = "INVALID_JSON_TYPE"
	InvalidParameterName  = "INVALID_PARAMETER_NAME"
	InvalidInterfaceJSON  = "INVALID_INTERFACE"
	DuplicateValue        = "DUPLICATE_VALUE"
	NoFiles               = "NO_FILES"
	MultipleFiles         = "MULTIPLE_FILES"
	InvalidDataJSON       = "INVALID_DATA"
	UnknownValueParameter = "UNKNOWN_PARAMETER"
)

func interfaceError(code, format string, args ...interface{}) error {
	return scaleerrors.NewValidation(scaleerrors.KindInterface, code, format, args...)
}

func dataError(code, format string, args ...interface{}) error {
	return scaleerrors.NewValidation(scaleerrors.KindData, code, format, args...)
}

func filterError(code, format string, args ...interface{}) error {
	return scaleerrors.NewValidation(scaleerrors.KindFilter, code, format, args...)
}
