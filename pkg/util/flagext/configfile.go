package flagext

import (
	"strings"
)

// ConfigFiles is a repeatable flag naming YAML configuration files. Files
// are applied in the order given.
type ConfigFiles []string

// String implements flag.Value
// Format: file1.yaml,file2.yaml
func (cfgFiles *ConfigFiles) String() string {
	return strings.Join(*cfgFiles, ",")
}

// Set implements flag.Value
func (cfgFiles *ConfigFiles) Set(value string) error {
	*cfgFiles = append(*cfgFiles, value)
	return nil
}

// IsCumulative tells kingpin that the flag may be repeated.
func (cfgFiles *ConfigFiles) IsCumulative() bool { return true }
