package data

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/ngageoint/scale/internal/common/scaleerrors"
)

// Filter types
const (
	FilterMediaType = "media-type"
	FilterDataType  = "data-type"
	FilterFilename  = "filename"
	FilterMetaData  = "meta-data"
	FilterString    = "string"
	FilterInteger   = "integer"
	FilterNumber    = "number"
	FilterBoolean   = "boolean"
	FilterObject    = "object"
)

// Filter conditions
const (
	Less         = "<"
	LessEqual    = "<="
	Greater      = ">"
	GreaterEqual = ">="
	Equal        = "=="
	NotEqual     = "!="
	Between      = "between"
	In           = "in"
	NotIn        = "not in"
	Contains     = "contains"
	SubsetOf     = "subset of"
	SupersetOf   = "superset of"
)

// Filter error and warning codes
const (
	MissingName         = "MISSING_NAME"
	MissingType         = "MISSING_TYPE"
	MissingCondition    = "MISSING_CONDITION"
	MissingValues       = "MISSING_VALUES"
	MissingFields       = "MISSING_FIELDS"
	InvalidType         = "INVALID_TYPE"
	InvalidCondition    = "INVALID_CONDITION"
	ValueError          = "VALUE_ERROR"
	MismatchedType      = "MISMATCHED_TYPE"
	UnmatchedFilter     = "UNMATCHED_FILTER"
	UnmatchedParameters = "UNMATCHED_PARAMETERS"
	InvalidFilterJSON   = "INVALID_FILTER"
)

var (
	stringConditions  = []string{Equal, NotEqual, In, NotIn, Contains}
	numericConditions = []string{Less, LessEqual, Greater, GreaterEqual, Equal, NotEqual, Between, In, NotIn}
	allConditions     = []string{Less, LessEqual, Greater, GreaterEqual, Equal, NotEqual, Between, In, NotIn, Contains,
		SubsetOf, SupersetOf}

	validConditions = map[string][]string{
		FilterMediaType: stringConditions,
		FilterFilename:  stringConditions,
		FilterString:    stringConditions,
		FilterDataType:  {Contains, SubsetOf, SupersetOf},
		FilterInteger:   numericConditions,
		FilterNumber:    numericConditions,
		FilterBoolean:   {Equal, NotEqual},
		FilterMetaData:  allConditions,
		FilterObject:    allConditions,
	}

	fileFilterTypes = []string{FilterMediaType, FilterDataType, FilterFilename, FilterMetaData}
)

// FileInfo is the metadata of a stored file that file filters are evaluated against.
type FileInfo struct {
	ID        int64
	FileName  string
	MediaType string
	DataTypes []string
	Meta      map[string]interface{}
	// Size in bytes
	Size int64
}

// FileLookup resolves file ids to their metadata. Unknown ids are omitted from the result.
type FileLookup func(ids []int64) map[int64]*FileInfo

// Filter is a single test applied to the value of one parameter.
type Filter struct {
	Name      string        `json:"name"`
	Type      string        `json:"type"`
	Condition string        `json:"condition"`
	Values    []interface{} `json:"values"`
	Fields    [][]string    `json:"fields,omitempty"`
	AllFields bool          `json:"all_fields,omitempty"`
	AllFiles  bool          `json:"all_files,omitempty"`
}

// DataFilter decides whether a condition node accepts its data. With All set every filter must pass, otherwise any
// single passing filter is enough. A filter with no filters accepts everything.
type DataFilter struct {
	All     bool     `json:"all"`
	Filters []Filter `json:"filters"`
}

func NewDataFilter(all bool) *DataFilter {
	return &DataFilter{All: all}
}

// AddFilter validates and normalises the filter before adding it.
func (f *DataFilter) AddFilter(filter Filter) error {
	normalised, err := ValidateFilter(filter)
	if err != nil {
		return err
	}
	f.Filters = append(f.Filters, normalised)
	return nil
}

// ValidateFilter checks a filter definition and returns a copy with numeric and boolean values converted.
func ValidateFilter(filter Filter) (Filter, error) {
	if filter.Name == "" {
		return filter, filterError(MissingName, "Filter is missing a name")
	}
	if filter.Type == "" {
		return filter, filterError(MissingType, "Filter '%s' is missing a type", filter.Name)
	}
	if filter.Condition == "" {
		return filter, filterError(MissingCondition, "Filter '%s' is missing a condition", filter.Name)
	}
	if len(filter.Values) == 0 {
		return filter, filterError(MissingValues, "Filter '%s' is missing values", filter.Name)
	}
	conditions, ok := validConditions[filter.Type]
	if !ok {
		return filter, filterError(InvalidType, "Filter '%s' has invalid type '%s'", filter.Name, filter.Type)
	}
	if !slices.Contains(conditions, filter.Condition) {
		return filter, filterError(InvalidCondition, "Filter '%s' of type '%s' cannot use condition '%s'",
			filter.Name, filter.Type, filter.Condition)
	}
	if filter.Type == FilterMetaData && len(filter.Fields) == 0 {
		return filter, filterError(MissingFields, "Meta-data filter '%s' must specify fields", filter.Name)
	}
	if filter.Condition == Between && len(filter.Values) != 2 {
		return filter, filterError(ValueError, "Filter '%s' needs exactly two values for 'between'", filter.Name)
	}

	values := make([]interface{}, len(filter.Values))
	for i, v := range filter.Values {
		switch filter.Type {
		case FilterInteger, FilterNumber:
			n, ok := toFloat(v)
			if !ok {
				return filter, filterError(ValueError, "Filter '%s' value %v is not a number", filter.Name, v)
			}
			values[i] = n
		case FilterBoolean:
			b, ok := toBool(v)
			if !ok {
				return filter, filterError(ValueError, "Filter '%s' value %v is not a boolean", filter.Name, v)
			}
			values[i] = b
		default:
			values[i] = v
		}
	}
	filter.Values = values
	return filter, nil
}

// Validate checks the filters against the input interface of the condition. Filters on unknown parameters and
// parameters without filters produce warnings; a filter whose type cannot apply to its parameter is an error.
func (f *DataFilter) Validate(iface *Interface) ([]scaleerrors.Warning, error) {
	var warnings []scaleerrors.Warning
	filtered := map[string]bool{}
	for _, filter := range f.Filters {
		if _, err := ValidateFilter(filter); err != nil {
			return nil, err
		}
		p, ok := iface.Parameter(filter.Name)
		if !ok {
			warnings = append(warnings, scaleerrors.NewWarning(UnmatchedFilter,
				"Filter '%s' does not match any parameter", filter.Name))
			continue
		}
		filtered[filter.Name] = true
		if err := checkFilterApplies(filter, p); err != nil {
			return nil, err
		}
	}
	var unmatched []string
	for _, name := range iface.ParameterNames() {
		if !filtered[name] {
			unmatched = append(unmatched, name)
		}
	}
	if len(unmatched) > 0 {
		warnings = append(warnings, scaleerrors.NewWarning(UnmatchedParameters,
			"Parameters %v have no filter", unmatched))
	}
	return warnings, nil
}

func checkFilterApplies(filter Filter, p Parameter) error {
	isFileFilter := slices.Contains(fileFilterTypes, filter.Type)
	switch param := p.(type) {
	case *FileParameter:
		if !isFileFilter {
			return filterError(MismatchedType, "Filter '%s' of type '%s' cannot apply to a file parameter",
				filter.Name, filter.Type)
		}
	case *JSONParameter:
		if isFileFilter {
			return filterError(MismatchedType, "Filter '%s' of type '%s' cannot apply to a JSON parameter",
				filter.Name, filter.Type)
		}
		if param.JSONType == JSONObject || len(filter.Fields) > 0 {
			return nil
		}
		compatible := map[string][]string{
			FilterString:  {JSONString},
			FilterInteger: {JSONInteger, JSONNumber},
			FilterNumber:  {JSONInteger, JSONNumber},
			FilterBoolean: {JSONBoolean},
		}
		if !slices.Contains(compatible[filter.Type], param.JSONType) {
			return filterError(MismatchedType, "Filter '%s' of type '%s' cannot apply to JSON type '%s'",
				filter.Name, filter.Type, param.JSONType)
		}
	}
	return nil
}

// AdjustOutputInterface returns the output interface of a condition with the given input interface: a copy of the
// input, with every filtered parameter made required when All is set.
func (f *DataFilter) AdjustOutputInterface(input *Interface) *Interface {
	output := input.Copy()
	if !f.All {
		return output
	}
	for _, filter := range f.Filters {
		if p, ok := output.Parameter(filter.Name); ok {
			switch param := p.(type) {
			case *FileParameter:
				param.Required = true
			case *JSONParameter:
				param.Required = true
			}
		}
	}
	return output
}

// IsDataAccepted evaluates the filters against the given data.
func (f *DataFilter) IsDataAccepted(data *Data, files FileLookup) bool {
	if len(f.Filters) == 0 {
		return true
	}
	for _, filter := range f.Filters {
		passed := f.evaluate(filter, data, files)
		if f.All && !passed {
			return false
		}
		if !f.All && passed {
			return true
		}
	}
	return f.All
}

func (f *DataFilter) evaluate(filter Filter, data *Data, files FileLookup) bool {
	value, ok := data.Value(filter.Name)
	if !ok {
		return false
	}
	switch v := value.(type) {
	case *FileValue:
		if files == nil || len(v.FileIDs) == 0 {
			return false
		}
		infos := files(v.FileIDs)
		anyPassed := false
		for _, id := range v.FileIDs {
			info, ok := infos[id]
			passed := ok && evaluateFile(filter, info)
			if filter.AllFiles && !passed {
				return false
			}
			anyPassed = anyPassed || passed
		}
		return anyPassed
	case *JSONValue:
		if len(filter.Fields) == 0 {
			return evaluateCondition(filter, v.Value)
		}
		obj, ok := v.Value.(map[string]interface{})
		if !ok {
			return false
		}
		return evaluateFields(filter, obj)
	}
	return false
}

func evaluateFile(filter Filter, info *FileInfo) bool {
	switch filter.Type {
	case FilterMediaType:
		return evaluateCondition(filter, info.MediaType)
	case FilterFilename:
		return evaluateCondition(filter, info.FileName)
	case FilterDataType:
		dataTypes := make([]interface{}, len(info.DataTypes))
		for i, dt := range info.DataTypes {
			dataTypes[i] = dt
		}
		return evaluateSet(filter, dataTypes)
	case FilterMetaData:
		return evaluateFields(filter, info.Meta)
	}
	return false
}

func evaluateFields(filter Filter, obj map[string]interface{}) bool {
	anyPassed := false
	for _, path := range filter.Fields {
		fieldValue, ok := lookupField(obj, path)
		passed := ok && evaluateCondition(filter, fieldValue)
		if filter.AllFields && !passed {
			return false
		}
		anyPassed = anyPassed || passed
	}
	return anyPassed
}

func lookupField(obj map[string]interface{}, path []string) (interface{}, bool) {
	var current interface{} = obj
	for _, key := range path {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func evaluateSet(filter Filter, members []interface{}) bool {
	switch filter.Condition {
	case Contains, SupersetOf:
		for _, want := range filter.Values {
			if !containsValue(members, want) {
				return false
			}
		}
		return true
	case SubsetOf:
		for _, member := range members {
			if !containsValue(filter.Values, member) {
				return false
			}
		}
		return true
	}
	return false
}

func evaluateCondition(filter Filter, value interface{}) bool {
	if list, ok := value.([]interface{}); ok {
		return evaluateSet(filter, list)
	}
	if n, ok := toFloat(value); ok && (filter.Type == FilterInteger || filter.Type == FilterNumber || isNumericValues(filter.Values)) {
		return evaluateNumber(filter, n)
	}
	switch filter.Condition {
	case Equal:
		return valuesEqual(value, filter.Values[0])
	case NotEqual:
		return !valuesEqual(value, filter.Values[0])
	case In:
		return containsValue(filter.Values, value)
	case NotIn:
		return !containsValue(filter.Values, value)
	case Contains:
		s, ok := value.(string)
		if !ok {
			return false
		}
		for _, want := range filter.Values {
			if strings.Contains(s, fmt.Sprintf("%v", want)) {
				return true
			}
		}
		return false
	}
	return false
}

func evaluateNumber(filter Filter, n float64) bool {
	numbers := make([]float64, 0, len(filter.Values))
	for _, v := range filter.Values {
		f, ok := toFloat(v)
		if !ok {
			return false
		}
		numbers = append(numbers, f)
	}
	switch filter.Condition {
	case Less:
		return n < numbers[0]
	case LessEqual:
		return n <= numbers[0]
	case Greater:
		return n > numbers[0]
	case GreaterEqual:
		return n >= numbers[0]
	case Equal:
		return n == numbers[0]
	case NotEqual:
		return n != numbers[0]
	case Between:
		return len(numbers) == 2 && n >= numbers[0] && n <= numbers[1]
	case In:
		return slices.Contains(numbers, n)
	case NotIn:
		return !slices.Contains(numbers, n)
	}
	return false
}

func isNumericValues(values []interface{}) bool {
	for _, v := range values {
		switch v.(type) {
		case float64, float32, int, int32, int64, json.Number:
		default:
			return false
		}
	}
	return len(values) > 0
}

func valuesEqual(a, b interface{}) bool {
	if ab, ok := a.(bool); ok {
		bb, ok := toBool(b)
		return ok && ab == bb
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func containsValue(values []interface{}, value interface{}) bool {
	for _, v := range values {
		if valuesEqual(value, v) {
			return true
		}
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	if n, ok := asNumber(v); ok {
		return n, true
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return 0, false
}

func toBool(v interface{}) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		return parsed, err == nil
	}
	return false, false
}

func (f *DataFilter) UnmarshalJSON(b []byte) error {
	type raw DataFilter
	var doc raw
	if err := json.Unmarshal(b, &doc); err != nil {
		return errors.WithStack(&scaleerrors.ErrValidation{
			Kind: scaleerrors.KindFilter, Code: InvalidFilterJSON, Message: err.Error(),
		})
	}
	result := NewDataFilter(doc.All)
	for _, filter := range doc.Filters {
		if err := result.AddFilter(filter); err != nil {
			return err
		}
	}
	*f = *result
	return nil
}
