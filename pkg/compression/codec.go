// Package compression provides the codecs used to write pipeline output.
package compression

import (
	"fmt"
	"strings"
)

// Codec identifies a compression format.
type Codec byte

// The different available codecs.
const (
	None Codec = iota
	GZIP
	Snappy
	LZ4
	Flate
	Zstd
)

var supportedCodecs = []Codec{
	None,
	GZIP,
	Snappy,
	LZ4,
	Flate,
	Zstd,
}

func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case GZIP:
		return "gzip"
	case Snappy:
		return "snappy"
	case LZ4:
		return "lz4"
	case Flate:
		return "flate"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("Codec(%d)", c)
	}
}

// ParseCodec parses a codec string into its Codec.
func ParseCodec(s string) (Codec, error) {
	for _, c := range supportedCodecs {
		if strings.EqualFold(c.String(), s) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("invalid codec: %s, supported: %s", s, SupportedCodecs())
}

// SupportedCodecs returns the list of supported codecs as a comma-separated
// string.
func SupportedCodecs() string {
	var sb strings.Builder
	for i := range supportedCodecs {
		sb.WriteString(supportedCodecs[i].String())
		if i != len(supportedCodecs)-1 {
			sb.WriteString(", ")
		}
	}
	return sb.String()
}

// Set implements flag.Value.
func (c *Codec) Set(s string) error {
	parsed, err := ParseCodec(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Codec) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return c.Set(s)
}

// MarshalYAML implements yaml.Marshaler.
func (c Codec) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}
