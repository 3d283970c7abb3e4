package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/millrun/millrun/pkg/engine"
	"github.com/millrun/millrun/pkg/telemetry"
)

// Default returns the configuration used when no file is given.
func Default() *File {
	ec := engine.DefaultConfig()
	return &File{
		Scheduler: SchedulerConfig{
			ConsumptionPolicy: string(ec.ConsumptionPolicy),
			AtRiskSlack:       ec.AtRiskSlack,
			ConflictRetries:   ec.ConflictRetries,
			Interval:          time.Minute,
		},
		Store: StoreConfig{
			Driver:   "sqlite",
			Path:     "millrun.db",
			EventLog: true,
		},
		Telemetry: *telemetry.DefaultConfig(),
		NATS: NATSConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			Stream:         "PRODUCTION",
			SubjectPrefix:  "production.events",
			ConnectTimeout: 5 * time.Second,
			PublishTimeout: 5 * time.Second,
		},
	}
}

// Load reads and validates the configuration file at path. Fields absent
// from the file keep their defaults.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	f, err := Parse(data)
	if err != nil {
		var verrs ValidationErrors
		if errors.As(err, &verrs) {
			for i := range verrs {
				verrs[i].File = path
			}
			return nil, verrs
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a YAML configuration document over the defaults and validates it.
func Parse(data []byte) (*File, error) {
	f := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks every section of the configuration.
func (f *File) Validate() error {
	if err := validate.Struct(f); err != nil {
		return FromValidator("", err)
	}

	if err := f.Telemetry.Validate(); err != nil {
		return ValidationErrors{{Path: "telemetry", Message: err.Error()}}
	}

	if err := f.EngineConfig().Validate(); err != nil {
		return ValidationErrors{{Path: "scheduler", Message: err.Error()}}
	}

	return nil
}

// EngineConfig converts the scheduler section to an engine configuration.
func (f *File) EngineConfig() engine.Config {
	return engine.Config{
		ConsumptionPolicy: engine.ConsumptionPolicy(f.Scheduler.ConsumptionPolicy),
		AtRiskSlack:       f.Scheduler.AtRiskSlack,
		ConflictRetries:   f.Scheduler.ConflictRetries,
	}
}

// validate caches struct metadata and is safe for concurrent use.
var validate = NewValidator()

// NewValidator returns a validator that reports fields by their YAML names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report YAML field names rather than Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidationErrors is a list of validation errors.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// FromValidator converts a validator error into ValidationErrors. Errors of
// any other type are returned as a single entry.
func FromValidator(file string, err error) ValidationErrors {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{File: file, Message: err.Error()}}
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			File:    file,
			Path:    fieldPath(fe.Namespace()),
			Message: describe(fe),
		})
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "url":
		return fmt.Sprintf("must be a URL, got %q", fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
