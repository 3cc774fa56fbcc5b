package cfg

import (
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

// YAML returns a Source that decodes each of files in order. Unknown fields
// are rejected.
func YAML(fs afero.Fs, files ...string) Source {
	return func(dst interface{}) error {
		for _, f := range files {
			buf, err := afero.ReadFile(fs, f)
			if err != nil {
				return errors.Wrap(err, "Error reading config file")
			}

			if err := dYAML(buf)(dst); err != nil {
				return errors.Wrapf(err, "Error parsing config file %s", f)
			}
		}
		return nil
	}
}

// dYAML returns a YAML source and allows dependency injection
func dYAML(y []byte) Source {
	return func(dst interface{}) error {
		return yaml.UnmarshalStrict(y, dst)
	}
}
