// Package configuration defines papermake's on-disk configuration format,
// in the style of the teacher's configuration/configuration.go: a
// versioned struct decoded from YAML, with driver-style Parameters maps
// for the pieces that are pluggable (storage, fonts).
package configuration

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration is papermake's top-level configuration, provided by a YAML
// file.
//
// Note that YAML field names should never include `_` characters, since
// that is the separator used when overlaying environment variables.
type Configuration struct {
	// Version is the version which defines the format of the rest of the
	// configuration.
	Version Version `yaml:"version"`

	// Log configures the structured logging subsystem.
	Log Log `yaml:"log"`

	// Storage configures the object store the blob store adapter (§4.2)
	// is built on.
	Storage Storage `yaml:"storage"`

	// Cache configures the in-process caches (§4.11).
	Cache Cache `yaml:"cache,omitempty"`

	// Render configures the render pipeline's admission and concurrency
	// limits (§5).
	Render Render `yaml:"render,omitempty"`

	// Fonts configures the font-set fallback (§4.7).
	Fonts Fonts `yaml:"fonts,omitempty"`

	// Engine configures the external typesetting compiler (§4.8).
	Engine Engine `yaml:"engine"`

	// RecordSink configures the render record sink (§4.10).
	RecordSink RecordSink `yaml:"recordsink,omitempty"`
}

// Log configures logging.
type Log struct {
	// Level is the granularity at which operations are logged.
	Level Loglevel `yaml:"level,omitempty"`

	// Formatter overrides the default formatter. Options are "text" and
	// "json".
	Formatter string `yaml:"formatter,omitempty"`

	// Fields allows static string fields to be attached to every log
	// line.
	Fields map[string]interface{} `yaml:"fields,omitempty"`
}

// Parameters is a generic key-value parameters mapping, used for
// configuring a pluggable driver.
type Parameters map[string]interface{}

// Storage is a single-entry map from storage driver name to its
// parameters, e.g. `{filesystem: {rootdirectory: /var/lib/papermake}}`.
type Storage map[string]Parameters

// Type returns the configured storage driver name. Panics if more than
// one driver is configured, matching the teacher's "exactly one backend"
// invariant.
func (storage Storage) Type() string {
	var names []string
	for k := range storage {
		names = append(names, k)
	}
	if len(names) > 1 {
		panic("configuration: multiple storage drivers specified: " + strings.Join(names, ", "))
	}
	if len(names) == 1 {
		return names[0]
	}
	return ""
}

// Parameters returns the Parameters for the configured storage driver.
func (storage Storage) Parameters() Parameters {
	return storage[storage.Type()]
}

// Cache configures the three in-process caches described in §4.11.
type Cache struct {
	// ManifestEntries bounds the manifest LRU cache's entry count.
	ManifestEntries int `yaml:"manifestentries,omitempty"`

	// WarmStateEntries bounds the warmed-compiler-state LRU cache's
	// entry count.
	WarmStateEntries int `yaml:"warmstateentries,omitempty"`

	// TagResolutionTTL bounds how long a resolved tag->digest mapping is
	// trusted before being re-resolved.
	TagResolutionTTL time.Duration `yaml:"tagresolutionttl,omitempty"`
}

// Render configures admission control for the render pipeline (§5).
type Render struct {
	// MaxConcurrent bounds the number of renders executing at once.
	MaxConcurrent int `yaml:"maxconcurrent,omitempty"`

	// AdmissionRatePerSecond bounds the rate at which new renders are
	// admitted.
	AdmissionRatePerSecond float64 `yaml:"admissionratepersecond,omitempty"`

	// Timeout bounds the wall-clock duration of a single render.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Fonts configures the font-set fallback (§4.7): a single-entry map from
// font-set driver name to its parameters, analogous to Storage.
type Fonts map[string]Parameters

// Type returns the configured font-set driver name.
func (fonts Fonts) Type() string {
	var names []string
	for k := range fonts {
		names = append(names, k)
	}
	if len(names) > 1 {
		panic("configuration: multiple font sets specified: " + strings.Join(names, ", "))
	}
	if len(names) == 1 {
		return names[0]
	}
	return ""
}

// Engine configures the external typesetting compiler process (§4.8).
type Engine struct {
	// Command is the path to the compiler executable.
	Command string `yaml:"command"`

	// Timeout bounds a single compile invocation.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Args are extra arguments passed on every invocation.
	Args []string `yaml:"args,omitempty"`
}

// RecordSink configures the append-only render record sink (§4.10).
type RecordSink struct {
	// Driver selects the sink backend, e.g. "sqlite".
	Driver string `yaml:"driver,omitempty"`

	// DSN is the backend-specific connection string, e.g. a sqlite file
	// path.
	DSN string `yaml:"dsn,omitempty"`

	// QueueSize bounds the in-memory queue fronting the durable sink.
	QueueSize int `yaml:"queuesize,omitempty"`
}

// CurrentVersion is the most recent configuration format version this
// package can parse. Version itself, along with MajorMinorVersion, is
// defined in parser.go.
var CurrentVersion = MajorMinorVersion(0, 1)

// Loglevel is the level at which operations are logged: one of error,
// warn, info, or debug.
type Loglevel string

// UnmarshalYAML implements yaml.Unmarshaler, lowercasing and validating
// the decoded string.
func (loglevel *Loglevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	s = strings.ToLower(s)
	switch s {
	case "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("configuration: invalid loglevel %q, must be one of [error, warn, info, debug]", s)
	}

	*loglevel = Loglevel(s)
	return nil
}

// v0_1Configuration is the version 0.1 Configuration struct. It is
// currently aliased to Configuration, since 0.1 is the only version this
// package understands.
type v0_1Configuration Configuration

// Parse decodes a YAML configuration document and overlays any matching
// PAPERMAKE_-prefixed environment variables, rejecting any version it does
// not recognize.
func Parse(rd io.Reader) (*Configuration, error) {
	in, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	p := NewParser("papermake", []VersionedParseInfo{
		{
			Version: MajorMinorVersion(0, 1),
			ParseAs: reflect.TypeOf(v0_1Configuration{}),
			ConversionFunc: func(c interface{}) (interface{}, error) {
				if v0_1, ok := c.(*v0_1Configuration); ok {
					config := Configuration(*v0_1)
					return &config, nil
				}
				return nil, fmt.Errorf("configuration: expected *v0_1Configuration, got %T", c)
			},
		},
	})

	config := new(Configuration)
	if err := p.Parse(in, config); err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}

	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Configuration) {
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Cache.ManifestEntries == 0 {
		config.Cache.ManifestEntries = 1024
	}
	if config.Cache.WarmStateEntries == 0 {
		config.Cache.WarmStateEntries = 64
	}
	if config.Cache.TagResolutionTTL == 0 {
		config.Cache.TagResolutionTTL = 5 * time.Second
	}
	if config.Render.MaxConcurrent == 0 {
		config.Render.MaxConcurrent = 4
	}
	if config.RecordSink.QueueSize == 0 {
		config.RecordSink.QueueSize = 256
	}
}
