package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

type Binding struct {
	Name  string
	Value string
}

// Bindings is a name to expression mapping that keeps declaration order.
// Non-string scalar values are kept in their textual form.
type Bindings []Binding

func (b Bindings) Get(name string) (string, bool) {
	for _, binding := range b {
		if binding.Name == name {
			return binding.Value, true
		}
	}
	return "", false
}

func (b Bindings) First() (Binding, bool) {
	if len(b) == 0 {
		return Binding{}, false
	}
	return b[0], true
}

func (b Bindings) Values() []string {
	values := make([]string, 0, len(b))
	for _, binding := range b {
		values = append(values, binding.Value)
	}
	return values
}

func (b *Bindings) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*b = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("bindings must be a json object")
	}
	result := Bindings{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("invalid binding key %v", keyTok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return err
		}
		result = append(result, Binding{Name: key, Value: scalarText(value)})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*b = result
	return nil
}

func (b Bindings) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, binding := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(binding.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(binding.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (b *Bindings) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("bindings must be a yaml mapping, line %d", value.Line)
	}
	result := Bindings{}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("binding %q must be a scalar, line %d", key.Value, val.Line)
		}
		result = append(result, Binding{Name: key.Value, Value: val.Value})
	}
	*b = result
	return nil
}
