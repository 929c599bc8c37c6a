package data

import (
	"encoding/json"
	"math"

	"github.com/ngageoint/scale/internal/common/scaleerrors"
)

// DataValue is a concrete value bound to a parameter name. It is implemented by *FileValue and *JSONValue only.
type DataValue interface {
	GetName() string
	GetParamType() string
	// Validate checks this value against the parameter it is bound to.
	Validate(parameter Parameter) ([]scaleerrors.Warning, error)
	withName(name string) DataValue
}

type FileValue struct {
	Name    string
	FileIDs []int64
}

func NewFileValue(name string, fileIDs ...int64) *FileValue {
	return &FileValue{Name: name, FileIDs: fileIDs}
}

func (v *FileValue) GetName() string      { return v.Name }
func (v *FileValue) GetParamType() string { return FileParamType }

func (v *FileValue) Validate(parameter Parameter) ([]scaleerrors.Warning, error) {
	if err := validateValueType(v, parameter); err != nil {
		return nil, err
	}
	if len(v.FileIDs) == 0 {
		return nil, dataError(NoFiles, "Parameter '%s' cannot accept zero files", parameter.GetName())
	}
	if len(v.FileIDs) > 1 && !parameter.(*FileParameter).Multiple {
		return nil, dataError(MultipleFiles, "Parameter '%s' cannot accept multiple files", parameter.GetName())
	}
	return nil, nil
}

func (v *FileValue) withName(name string) DataValue {
	ids := make([]int64, len(v.FileIDs))
	copy(ids, v.FileIDs)
	return &FileValue{Name: name, FileIDs: ids}
}

type JSONValue struct {
	Name  string
	Value interface{}
}

func NewJSONValue(name string, value interface{}) *JSONValue {
	return &JSONValue{Name: name, Value: value}
}

func (v *JSONValue) GetName() string      { return v.Name }
func (v *JSONValue) GetParamType() string { return JSONParamType }

func (v *JSONValue) Validate(parameter Parameter) ([]scaleerrors.Warning, error) {
	if err := validateValueType(v, parameter); err != nil {
		return nil, err
	}
	jsonType := parameter.(*JSONParameter).JSONType
	if !isJSONType(v.Value, jsonType) {
		return nil, dataError(InvalidJSONParamType, "Parameter '%s' must receive a value of JSON type %s",
			parameter.GetName(), jsonType)
	}
	return nil, nil
}

func (v *JSONValue) withName(name string) DataValue {
	return &JSONValue{Name: name, Value: v.Value}
}

func validateValueType(v DataValue, parameter Parameter) error {
	if v.GetParamType() != parameter.GetParamType() {
		return dataError(MismatchedParamType, "Parameter '%s' of type '%s' cannot accept data of type '%s'",
			parameter.GetName(), parameter.GetParamType(), v.GetParamType())
	}
	return nil
}

func isJSONType(value interface{}, jsonType string) bool {
	switch jsonType {
	case JSONArray:
		_, ok := value.([]interface{})
		return ok
	case JSONBoolean:
		_, ok := value.(bool)
		return ok
	case JSONInteger:
		f, ok := asNumber(value)
		return ok && f == math.Trunc(f)
	case JSONNumber:
		_, ok := asNumber(value)
		return ok
	case JSONObject:
		_, ok := value.(map[string]interface{})
		return ok
	case JSONString:
		_, ok := value.(string)
		return ok
	}
	return false
}

func asNumber(value interface{}) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
