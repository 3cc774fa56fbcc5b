package flagext

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// TagLimits maps a worker pool tag to its worker count.
type TagLimits map[string]int

// String implements flag.Value
// Format: cpu=2,io=4
func (l TagLimits) String() string {
	tags := make([]string, 0, len(l))
	for tag := range l {
		tags = append(tags, tag)
	}
	slices.Sort(tags)

	var sb strings.Builder
	for i, tag := range tags {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=%d", tag, l[tag])
	}
	return sb.String()
}

// Set implements flag.Value. Each call adds the tag=count pairs in value,
// replacing earlier counts for the same tag.
func (l *TagLimits) Set(value string) error {
	if *l == nil {
		*l = make(TagLimits)
	}

	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		tag, count, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("invalid tag limit %q: expected tag=count", pair)
		}

		tag = strings.TrimSpace(tag)
		if tag == "" {
			return fmt.Errorf("invalid tag limit %q: empty tag", pair)
		}

		n, err := strconv.Atoi(strings.TrimSpace(count))
		if err != nil {
			return fmt.Errorf("invalid tag limit %q: %w", pair, err)
		}
		(*l)[tag] = n
	}
	return nil
}

// IsCumulative tells kingpin that the flag may be repeated.
func (l *TagLimits) IsCumulative() bool { return true }

// UnmarshalYAML implements yaml.Unmarshaler. Both a mapping and the flag
// string format are accepted.
func (l *TagLimits) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var m map[string]int
	if err := unmarshal(&m); err == nil {
		*l = m
		return nil
	}

	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	*l = nil
	return l.Set(s)
}
