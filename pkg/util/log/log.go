// Package log builds the process logger.
package log

import (
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
)

// Supported log formats.
const (
	FormatLogfmt = "logfmt"
	FormatJSON   = "json"
)

// NewLogger returns a logger writing to w in the given format, dropping
// lines below lvl.
func NewLogger(lvl dslog.Level, format string, w io.Writer) (log.Logger, error) {
	var logger log.Logger
	switch format {
	case FormatLogfmt, "":
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	case FormatJSON:
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	default:
		return nil, fmt.Errorf("unsupported log format %q, expected %s or %s", format, FormatLogfmt, FormatJSON)
	}

	if lvl.Option != nil {
		logger = level.NewFilter(logger, lvl.Option)
	}
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.Caller(5)), nil
}

// CheckFatal prints an error and exits with error code 1 if err is non-nil.
func CheckFatal(location string, err error, logger log.Logger) {
	if err == nil {
		return
	}

	logger = level.Error(logger)
	if location != "" {
		logger = log.With(logger, "msg", "error "+location)
	}
	// %+v gets the stack trace from errors using github.com/pkg/errors
	errStr := fmt.Sprintf("%+v", err)
	fmt.Fprintln(os.Stderr, errStr)

	logger.Log("err", errStr)
	os.Exit(1)
}
