package data

import (
	"regexp"

	"golang.org/x/exp/slices"

	"github.com/ngageoint/scale/internal/common/scaleerrors"
)

const (
	FileParamType = "file"
	JSONParamType = "json"
)

// Valid JSON types for a JSONParameter
const (
	JSONArray   = "array"
	JSONBoolean = "boolean"
	JSONInteger = "integer"
	JSONNumber  = "number"
	JSONObject  = "object"
	JSONString  = "string"
)

var (
	validJSONTypes = map[string]bool{
		JSONArray: true, JSONBoolean: true, JSONInteger: true, JSONNumber: true, JSONObject: true, JSONString: true,
	}
	validParameterName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// Parameter is a named, typed input or output slot. It is implemented by *FileParameter and *JSONParameter only.
type Parameter interface {
	GetName() string
	GetParamType() string
	IsRequired() bool
	// ValidateConnection checks that this parameter can accept values produced by the connecting parameter.
	ValidateConnection(connecting Parameter) ([]scaleerrors.Warning, error)
	// Validate checks that the parameter definition itself is well formed.
	Validate() error
	withName(name string) Parameter
}

type FileParameter struct {
	Name       string
	Required   bool
	MediaTypes []string
	Multiple   bool
}

func NewFileParameter(name string, mediaTypes []string, required bool, multiple bool) *FileParameter {
	return &FileParameter{Name: name, Required: required, MediaTypes: mediaTypes, Multiple: multiple}
}

func (p *FileParameter) GetName() string      { return p.Name }
func (p *FileParameter) GetParamType() string { return FileParamType }
func (p *FileParameter) IsRequired() bool     { return p.Required }

func (p *FileParameter) Validate() error {
	return validateName(p.Name)
}

func (p *FileParameter) ValidateConnection(connecting Parameter) ([]scaleerrors.Warning, error) {
	if err := validateCommonConnection(p, connecting); err != nil {
		return nil, err
	}
	other := connecting.(*FileParameter)
	if !p.Multiple && other.Multiple {
		return nil, interfaceError(NoMultipleFiles, "Parameter '%s' cannot accept multiple files", p.Name)
	}

	var mismatched []string
	for _, mediaType := range other.MediaTypes {
		if !slices.Contains(p.MediaTypes, mediaType) {
			mismatched = append(mismatched, mediaType)
		}
	}
	var warnings []scaleerrors.Warning
	if len(mismatched) > 0 {
		warnings = append(warnings, scaleerrors.NewWarning(MismatchedMediaTypes,
			"Parameter '%s' might not accept %v", p.Name, mismatched))
	}
	return warnings, nil
}

func (p *FileParameter) withName(name string) Parameter {
	mediaTypes := make([]string, len(p.MediaTypes))
	copy(mediaTypes, p.MediaTypes)
	return &FileParameter{Name: name, Required: p.Required, MediaTypes: mediaTypes, Multiple: p.Multiple}
}

type JSONParameter struct {
	Name     string
	Required bool
	JSONType string
}

func NewJSONParameter(name string, jsonType string, required bool) *JSONParameter {
	return &JSONParameter{Name: name, Required: required, JSONType: jsonType}
}

func (p *JSONParameter) GetName() string      { return p.Name }
func (p *JSONParameter) GetParamType() string { return JSONParamType }
func (p *JSONParameter) IsRequired() bool     { return p.Required }

func (p *JSONParameter) Validate() error {
	if err := validateName(p.Name); err != nil {
		return err
	}
	if !validJSONTypes[p.JSONType] {
		return interfaceError(InvalidJSONParamType, "Parameter '%s' has invalid JSON type '%s'", p.Name, p.JSONType)
	}
	return nil
}

func (p *JSONParameter) ValidateConnection(connecting Parameter) ([]scaleerrors.Warning, error) {
	if err := validateCommonConnection(p, connecting); err != nil {
		return nil, err
	}
	other := connecting.(*JSONParameter)
	if p.JSONType != other.JSONType {
		return nil, interfaceError(MismatchedJSONType, "Parameter '%s' of JSON type '%s' cannot accept JSON type '%s'",
			p.Name, p.JSONType, other.JSONType)
	}
	return nil, nil
}

func (p *JSONParameter) withName(name string) Parameter {
	return &JSONParameter{Name: name, Required: p.Required, JSONType: p.JSONType}
}

func validateCommonConnection(p Parameter, connecting Parameter) error {
	if p.GetParamType() != connecting.GetParamType() {
		return interfaceError(MismatchedParamType, "Parameter '%s' of type '%s' cannot accept type '%s'",
			p.GetName(), p.GetParamType(), connecting.GetParamType())
	}
	if p.IsRequired() && !connecting.IsRequired() {
		return interfaceError(ParamRequired, "Parameter '%s' is required and cannot accept an optional value", p.GetName())
	}
	return nil
}

func validateName(name string) error {
	if !validParameterName.MatchString(name) {
		return interfaceError(InvalidParameterName, "Parameter name '%s' must be alphanumeric, '_' or '-'", name)
	}
	return nil
}
