package standards

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a complete set of tables from a YAML file and returns a
// validated Registry. The file replaces the built-in tables; nothing is merged.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "standards: read %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML tables and returns a validated Registry.
func Parse(data []byte) (*Registry, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "standards: parse yaml")
	}
	if t.Version == "" {
		return nil, eris.New("standards: version is required")
	}

	reg := New(t)
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// WriteYAML encodes the registry tables as YAML. The output is accepted by Parse.
func (r *Registry) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r.Tables()); err != nil {
		return eris.Wrap(err, "standards: encode yaml")
	}
	return eris.Wrap(enc.Close(), "standards: close yaml encoder")
}
