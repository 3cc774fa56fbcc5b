// Package cfg merges configuration from flag defaults, YAML files, and
// explicitly set command-line values.
package cfg

import (
	"github.com/pkg/errors"
)

// Source is a generic configuration source. This function may do whatever is
// required to obtain the configuration. It is passed a pointer to the
// destination. The obtained configuration may be written to this object, it
// may also contain data from previous sources.
type Source func(interface{}) error

// Unmarshal merges the values of the various configuration sources and sets
// them on `dst`. Later sources override earlier ones.
func Unmarshal(dst interface{}, sources ...Source) error {
	if len(sources) == 0 {
		panic("No sources supplied to cfg.Unmarshal(). This is most likely a programming issue and should never happen. Check the code!")
	}
	for _, source := range sources {
		if err := source(dst); err != nil {
			return errors.Wrap(err, "sourcing")
		}
	}
	return nil
}
