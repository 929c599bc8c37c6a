package data

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/ngageoint/scale/internal/common/scaleerrors"
)

// Interface is an ordered set of uniquely named parameters.
type Interface struct {
	parameters map[string]Parameter
	order      []string
}

func NewInterface() *Interface {
	return &Interface{parameters: map[string]Parameter{}}
}

// AddParameter adds a parameter, failing with DUPLICATE_INTERFACE if the name is taken.
func (i *Interface) AddParameter(parameter Parameter) error {
	if i.parameters == nil {
		i.parameters = map[string]Parameter{}
	}
	name := parameter.GetName()
	if _, ok := i.parameters[name]; ok {
		return interfaceError(DuplicateInterface, "Duplicate parameter name '%s'", name)
	}
	i.parameters[name] = parameter
	i.order = append(i.order, name)
	return nil
}

// MustAddParameters adds each parameter and panics on failure. Intended for building fixed interfaces.
func (i *Interface) MustAddParameters(parameters ...Parameter) *Interface {
	for _, p := range parameters {
		if err := i.AddParameter(p); err != nil {
			panic(err)
		}
	}
	return i
}

// AddParameterFromOutputInterface copies the parameter named outputName from output into this interface under
// inputName.
func (i *Interface) AddParameterFromOutputInterface(inputName string, outputName string, output *Interface) error {
	if _, ok := i.parameters[inputName]; ok {
		return interfaceError(DuplicateInput, "Input '%s' is connected more than once", inputName)
	}
	outputParameter, ok := output.Parameter(outputName)
	if !ok {
		return interfaceError(MissingOutput, "Output '%s' does not exist", outputName)
	}
	return i.AddParameter(outputParameter.withName(inputName))
}

func (i *Interface) Parameter(name string) (Parameter, bool) {
	p, ok := i.parameters[name]
	return p, ok
}

// Parameters returns the parameters in the order they were added.
func (i *Interface) Parameters() []Parameter {
	result := make([]Parameter, 0, len(i.order))
	for _, name := range i.order {
		result = append(result, i.parameters[name])
	}
	return result
}

func (i *Interface) ParameterNames() []string {
	names := make([]string, len(i.order))
	copy(names, i.order)
	return names
}

func (i *Interface) Len() int {
	return len(i.order)
}

func (i *Interface) Copy() *Interface {
	c := NewInterface()
	for _, p := range i.Parameters() {
		c.parameters[p.GetName()] = p.withName(p.GetName())
		c.order = append(c.order, p.GetName())
	}
	return c
}

// Validate checks every parameter definition.
func (i *Interface) Validate() error {
	for _, p := range i.Parameters() {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateConnection checks that data shaped like connecting can be passed to this interface. Required parameters
// missing from connecting fail with PARAM_REQUIRED; everything else is delegated to the individual parameters.
func (i *Interface) ValidateConnection(connecting *Interface) ([]scaleerrors.Warning, error) {
	var warnings []scaleerrors.Warning
	for _, p := range i.Parameters() {
		other, ok := connecting.Parameter(p.GetName())
		if !ok {
			if p.IsRequired() {
				return nil, interfaceError(ParamRequired, "Parameter '%s' is required", p.GetName())
			}
			continue
		}
		paramWarnings, err := p.ValidateConnection(other)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, paramWarnings...)
	}
	return warnings, nil
}

type fileParameterJSON struct {
	Name       string   `json:"name"`
	Required   *bool    `json:"required,omitempty"`
	MediaTypes []string `json:"media_types,omitempty"`
	Multiple   bool     `json:"multiple,omitempty"`
}

type jsonParameterJSON struct {
	Name     string `json:"name"`
	Required *bool  `json:"required,omitempty"`
	Type     string `json:"type"`
}

type interfaceJSON struct {
	Files []fileParameterJSON `json:"files,omitempty"`
	JSON  []jsonParameterJSON `json:"json,omitempty"`
}

func (i *Interface) MarshalJSON() ([]byte, error) {
	doc := interfaceJSON{}
	for _, p := range i.Parameters() {
		required := p.IsRequired()
		switch param := p.(type) {
		case *FileParameter:
			doc.Files = append(doc.Files, fileParameterJSON{
				Name: param.Name, Required: &required, MediaTypes: param.MediaTypes, Multiple: param.Multiple,
			})
		case *JSONParameter:
			doc.JSON = append(doc.JSON, jsonParameterJSON{Name: param.Name, Required: &required, Type: param.JSONType})
		}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads an interface document. Parameters are required unless "required" is false.
func (i *Interface) UnmarshalJSON(b []byte) error {
	var doc interfaceJSON
	if err := json.Unmarshal(b, &doc); err != nil {
		return errors.WithStack(&scaleerrors.ErrValidation{
			Kind: scaleerrors.KindInterface, Code: InvalidInterfaceJSON, Message: err.Error(),
		})
	}
	result := NewInterface()
	for _, f := range doc.Files {
		if err := result.AddParameter(NewFileParameter(f.Name, f.MediaTypes, f.Required == nil || *f.Required, f.Multiple)); err != nil {
			return err
		}
	}
	for _, j := range doc.JSON {
		if err := result.AddParameter(NewJSONParameter(j.Name, j.Type, j.Required == nil || *j.Required)); err != nil {
			return err
		}
	}
	if err := result.Validate(); err != nil {
		return err
	}
	*i = *result
	return nil
}
