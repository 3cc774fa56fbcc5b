package cfg

import (
	"flag"
	"io"
	"reflect"

	"github.com/pkg/errors"
)

// Registerer is a configuration that registers its flags with a FlagSet.
type Registerer interface {
	RegisterFlags(f *flag.FlagSet)
}

// FlagValue is a flag explicitly given on the command line.
type FlagValue struct {
	Name  string
	Value string
}

// Defaults returns a Source that sets every field of the destination to its
// flag default. The destination must implement Registerer.
//
// Flags are registered on a scratch FlagSet, so Defaults can be used any
// number of times without touching flag.CommandLine.
func Defaults() Source {
	return func(dst interface{}) error {
		r, ok := dst.(Registerer)
		if !ok {
			return errors.Errorf("%T does not register flags", dst)
		}

		r.RegisterFlags(newFlagSet("defaults"))
		return nil
	}
}

// Flags returns a Source that applies values to the flags registered by the
// destination, in order, as if they were given on the command line. Fields
// without a value keep what earlier sources set.
func Flags(values ...FlagValue) Source {
	return func(dst interface{}) error {
		r, ok := dst.(Registerer)
		if !ok {
			return errors.Errorf("%T does not register flags", dst)
		}

		fs := newFlagSet("overrides")
		if err := registerPreserving(r, fs); err != nil {
			return err
		}

		for _, v := range values {
			if err := fs.Set(v.Name, v.Value); err != nil {
				return errors.Wrapf(err, "flag -%s", v.Name)
			}
		}
		return nil
	}
}

// registerPreserving registers the flags of r on fs without resetting the
// current values of r to their defaults.
func registerPreserving(r Registerer, fs *flag.FlagSet) error {
	v := reflect.ValueOf(r)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return errors.Errorf("%T is not a non-nil pointer", r)
	}

	saved := reflect.New(v.Elem().Type()).Elem()
	saved.Set(v.Elem())
	r.RegisterFlags(fs)
	v.Elem().Set(saved)
	return nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}
