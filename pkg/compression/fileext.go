package compression

import "fmt"

const (
	ExtNone   = ""
	ExtGZIP   = ".gz"
	ExtSnappy = ".sz"
	ExtLZ4    = ".lz4"
	ExtFlate  = ".zz"
	ExtZstd   = ".zst"
)

// Extension returns the file extension of files written with c.
func (c Codec) Extension() string {
	return ToFileExtension(c)
}

func ToFileExtension(c Codec) string {
	switch c {
	case None:
		return ExtNone
	case GZIP:
		return ExtGZIP
	case LZ4:
		return ExtLZ4
	case Snappy:
		return ExtSnappy
	case Flate:
		return ExtFlate
	case Zstd:
		return ExtZstd
	default:
		panic(fmt.Sprintf("invalid codec: %d, supported: %s", c, SupportedCodecs()))
	}
}

// FromFileExtension returns the codec files with ext were written with.
func FromFileExtension(ext string) (Codec, error) {
	switch ext {
	case ExtNone:
		return None, nil
	case ExtGZIP:
		return GZIP, nil
	case ExtLZ4:
		return LZ4, nil
	case ExtSnappy:
		return Snappy, nil
	case ExtFlate:
		return Flate, nil
	case ExtZstd:
		return Zstd, nil
	default:
		return None, fmt.Errorf("invalid file extension: %s", ext)
	}
}
