package feed

import (
	"sort"
	"strconv"
	"strings"
)

// Option keys recognized by the pipeline. Unknown keys are kept verbatim
// so configurations written by newer versions survive a round trip.
const (
	OptionTag        = "tag"
	OptionAutoUpdate = "autoupdate"
	OptionMaxTexts   = "max_texts"
	OptionCharset    = "charset"
)

// DefaultMaxTexts bounds retained texts per tag when max_texts is unset.
const DefaultMaxTexts = 0

// Options is a per-feed configuration parsed from a comma-delimited
// "key=value" string. Values cannot contain ',' or '=' (no escaping on the
// wire, accepted limitation of the format).
type Options struct {
	values map[string]string
}

// ParseOptions reconstructs Options from its wire form. Segments without '='
// and empty segments are skipped; a later duplicate key overwrites an earlier
// one. A trailing delimiter is tolerated.
func ParseOptions(raw string) Options {
	values := make(map[string]string)

	for _, segment := range strings.Split(raw, ",") {
		key, value, found := strings.Cut(segment, "=")
		if !found || key == "" {
			continue
		}
		values[key] = value
	}

	return Options{values: values}
}

// Get returns the value for key and whether it is present. A present-but-empty
// value is distinct from an absent key.
func (o Options) Get(key string) (string, bool) {
	value, ok := o.values[key]
	return value, ok
}

// Set stores a value, replacing any previous one.
func (o *Options) Set(key, value string) {
	if o.values == nil {
		o.values = make(map[string]string)
	}
	o.values[key] = value
}

// All returns a copy of the full option map. Empty input yields an empty map.
func (o Options) All() map[string]string {
	all := make(map[string]string, len(o.values))
	for k, v := range o.values {
		all[k] = v
	}
	return all
}

// String serializes back to the wire form. Keys are emitted in sorted order
// and the result never carries a trailing delimiter, normalizing whatever
// the original input looked like.
func (o Options) String() string {
	if len(o.values) == 0 {
		return ""
	}

	keys := make([]string, 0, len(o.values))
	for k := range o.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+o.values[k])
	}

	return strings.Join(pairs, ",")
}

// Tag returns the label applied to texts created from this feed.
func (o Options) Tag() string {
	tag, _ := o.values[OptionTag]
	return tag
}

// AutoUpdate returns the raw autoupdate interval spec ("2h", "1d", "1w").
// An absent or empty spec means the feed is never auto-due.
func (o Options) AutoUpdate() string {
	spec, _ := o.values[OptionAutoUpdate]
	return spec
}

// MaxTexts returns the retention bound passed to archiving, or
// DefaultMaxTexts when unset or unparseable.
func (o Options) MaxTexts() int {
	raw, ok := o.values[OptionMaxTexts]
	if !ok {
		return DefaultMaxTexts
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return DefaultMaxTexts
	}
	return n
}

// Charset returns the charset used to decode fetched article pages.
// Empty means UTF-8.
func (o Options) Charset() string {
	charset, _ := o.values[OptionCharset]
	return charset
}
