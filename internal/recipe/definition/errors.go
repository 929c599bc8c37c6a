package definition

import "github.com/ngageoint/scale/internal/common/scaleerrors"

// Definition error codes
const (
	DuplicateNode         = "DUPLICATE_NODE"
	UnknownNode           = "UNKNOWN_NODE"
	UnknownInput          = "UNKNOWN_INPUT"
	DuplicateInput        = "DUPLICATE_INPUT"
	CircularDependency    = "CIRCULAR_DEPENDENCY"
	MissingDependency     = "MISSING_DEPENDENCY"
	ConnectionInvalidNode = "CONNECTION_INVALID_NODE"
	NodeInterface         = "NODE_INTERFACE"
	InputInterface        = "INPUT_INTERFACE"
	InvalidDefinitionJSON = "INVALID_DEFINITION"
)

func definitionError(code, format string, args ...interface{}) error {
	return scaleerrors.NewValidation(scaleerrors.KindDefinition, code, format, args...)
}
