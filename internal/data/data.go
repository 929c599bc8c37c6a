package data

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"

	"github.com/ngageoint/scale/internal/common/scaleerrors"
)

// Data maps parameter names to values.
type Data struct {
	values map[string]DataValue
}

func NewData() *Data {
	return &Data{values: map[string]DataValue{}}
}

// AddValue adds a value, failing with DUPLICATE_VALUE if a value with the same name exists.
func (d *Data) AddValue(value DataValue) error {
	if d.values == nil {
		d.values = map[string]DataValue{}
	}
	if _, ok := d.values[value.GetName()]; ok {
		return dataError(DuplicateValue, "Duplicate value '%s'", value.GetName())
	}
	d.values[value.GetName()] = value
	return nil
}

// AddValueFromOutputData copies the value named outputName from output under inputName. A missing output value is
// not an error since outputs may be optional.
func (d *Data) AddValueFromOutputData(inputName string, outputName string, output *Data) error {
	if output == nil {
		return nil
	}
	value, ok := output.Value(outputName)
	if !ok {
		return nil
	}
	return d.AddValue(value.withName(inputName))
}

func (d *Data) Value(name string) (DataValue, bool) {
	v, ok := d.values[name]
	return v, ok
}

// Values returns every value sorted by name.
func (d *Data) Values() []DataValue {
	names := d.Names()
	result := make([]DataValue, 0, len(names))
	for _, name := range names {
		result = append(result, d.values[name])
	}
	return result
}

func (d *Data) Names() []string {
	names := make([]string, 0, len(d.values))
	for name := range d.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Data) Len() int {
	return len(d.values)
}

// FileIDs returns every file id referenced by this data, in name order.
func (d *Data) FileIDs() []int64 {
	var ids []int64
	for _, v := range d.Values() {
		if fv, ok := v.(*FileValue); ok {
			ids = append(ids, fv.FileIDs...)
		}
	}
	return ids
}

// Validate checks this data against the given interface. Values without a matching parameter are removed.
func (d *Data) Validate(iface *Interface) ([]scaleerrors.Warning, error) {
	var warnings []scaleerrors.Warning
	for _, p := range iface.Parameters() {
		value, ok := d.values[p.GetName()]
		if !ok {
			if p.IsRequired() {
				return nil, dataError(ParamRequired, "Parameter '%s' is required", p.GetName())
			}
			continue
		}
		valueWarnings, err := value.Validate(p)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, valueWarnings...)
	}
	for name := range d.values {
		if _, ok := iface.Parameter(name); !ok {
			delete(d.values, name)
		}
	}
	return warnings, nil
}

func (d *Data) Copy() *Data {
	c := NewData()
	for name, v := range d.values {
		c.values[name] = v.withName(name)
	}
	return c
}

type dataJSON struct {
	Files map[string][]int64     `json:"files,omitempty"`
	JSON  map[string]interface{} `json:"json,omitempty"`
}

func (d *Data) MarshalJSON() ([]byte, error) {
	doc := dataJSON{Files: map[string][]int64{}, JSON: map[string]interface{}{}}
	for name, v := range d.values {
		switch value := v.(type) {
		case *FileValue:
			doc.Files[name] = value.FileIDs
		case *JSONValue:
			doc.JSON[name] = value.Value
		}
	}
	return json.Marshal(doc)
}

func (d *Data) UnmarshalJSON(b []byte) error {
	var doc dataJSON
	if err := json.Unmarshal(b, &doc); err != nil {
		return errors.WithStack(&scaleerrors.ErrValidation{
			Kind: scaleerrors.KindData, Code: InvalidDataJSON, Message: err.Error(),
		})
	}
	result := NewData()
	for name, ids := range doc.Files {
		if err := result.AddValue(NewFileValue(name, ids...)); err != nil {
			return err
		}
	}
	for name, value := range doc.JSON {
		if err := result.AddValue(NewJSONValue(name, value)); err != nil {
			return err
		}
	}
	*d = *result
	return nil
}
