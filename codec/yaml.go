package codec

import goyaml "github.com/goccy/go-yaml"

// YAML is a codec backed by github.com/goccy/go-yaml. Weights documents are
// commonly reviewed and hand-edited, which is where YAML earns its keep.
type YAML struct{}

// Marshal encodes the value to YAML.
func (YAML) Marshal(v any) ([]byte, error) { return goyaml.Marshal(v) }

// Unmarshal decodes the YAML data into v.
func (YAML) Unmarshal(data []byte, v any) error { return goyaml.Unmarshal(data, v) }

// Name returns the unique name of the codec ("yaml").
func (YAML) Name() string { return "yaml" }
