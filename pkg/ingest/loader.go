package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/millrun/millrun/pkg/config"
	"github.com/millrun/millrun/pkg/engine"
)

// Loader reads and validates batch documents.
type Loader struct {
	logger   zerolog.Logger
	validate *validator.Validate
}

// NewLoader creates a new batch loader.
func NewLoader(logger zerolog.Logger) *Loader {
	v := config.NewValidator()
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})

	return &Loader{
		logger:   logger.With().Str("component", "ingest-loader").Logger(),
		validate: v,
	}
}

// decimalValue lets numeric validation tags apply to decimal quantities.
func decimalValue(v reflect.Value) interface{} {
	d, ok := v.Interface().(decimal.Decimal)
	if !ok {
		return nil
	}
	f, _ := d.Float64()
	return f
}

// LoadPaths loads every batch document under paths into a single batch.
// Directories are walked recursively for .yaml and .yml files, visited in
// lexical order. Any invalid file fails the whole load.
func (l *Loader) LoadPaths(ctx context.Context, paths []string) (*engine.Batch, []string, error) {
	var files []string
	for _, path := range paths {
		found, err := l.expand(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("no batch documents found in %s", strings.Join(paths, ", "))
	}

	merged := &engine.Batch{}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		b, err := l.LoadFile(file)
		if err != nil {
			return nil, nil, err
		}
		appendBatch(merged, b)
	}

	if err := checkDuplicates(merged); err != nil {
		return nil, nil, err
	}

	l.logger.Info().
		Int("files", len(files)).
		Int("orders", len(merged.Orders)).
		Int("plans", len(merged.Plans)).
		Msg("Batch documents loaded")

	return merged, files, nil
}

func (l *Loader) expand(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext := filepath.Ext(p); ext == ".yaml" || ext == ".yml" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// LoadFile loads and validates a single file.
func (l *Loader) LoadFile(path string) (*engine.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b, err := l.Parse(data, path)
	if err != nil {
		return nil, err
	}

	l.logger.Debug().Str("file", path).Msg("Batch document loaded")
	return b, nil
}

// Parse decodes a YAML stream into a batch. A stream may hold several
// documents separated by "---"; they are merged in order. name is used
// in error messages only.
func (l *Loader) Parse(data []byte, name string) (*engine.Batch, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	merged := &engine.Batch{}
	for doc := 1; ; doc++ {
		var b engine.Batch
		err := dec.Decode(&b)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: document %d: failed to parse YAML: %w", name, doc, err)
		}

		if err := l.validate.Struct(&b); err != nil {
			return nil, config.FromValidator(name, err)
		}
		appendBatch(merged, &b)
	}

	if merged.IsEmpty() {
		return nil, fmt.Errorf("%s: batch document is empty", name)
	}
	return merged, nil
}

func appendBatch(dst, src *engine.Batch) {
	dst.Orders = append(dst.Orders, src.Orders...)
	dst.Plans = append(dst.Plans, src.Plans...)
	dst.Materials = append(dst.Materials, src.Materials...)
	dst.Equipment = append(dst.Equipment, src.Equipment...)
}

// checkDuplicates rejects IDs repeated across the loaded documents. IDs
// that clash with existing engine state are caught by the engine.
func checkDuplicates(b *engine.Batch) error {
	var errs config.ValidationErrors
	seen := func(kind string) func(string) {
		ids := make(map[string]bool)
		return func(id string) {
			if ids[id] {
				errs = append(errs, config.ValidationError{
					Path:    kind,
					Message: fmt.Sprintf("duplicate ID %q", id),
				})
			}
			ids[id] = true
		}
	}

	order, plan, stage := seen("orders"), seen("plans"), seen("stages")
	material, equipment := seen("materials"), seen("equipment")

	for _, o := range b.Orders {
		order(o.ID)
	}
	for _, p := range b.Plans {
		plan(p.ID)
		for _, st := range p.Stages {
			stage(st.ID)
		}
	}
	for _, m := range b.Materials {
		material(m.ID)
	}
	for _, eq := range b.Equipment {
		equipment(eq.ID)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
