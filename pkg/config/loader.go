package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Loader reads settings files.
type Loader struct {
	ctx      *cue.Context
	schemas  *SchemaRegistry
	starlark *StarlarkEvaluator
}

// NewLoader creates a loader with an empty schema registry.
func NewLoader() *Loader {
	return &Loader{
		ctx:      cuecontext.New(),
		schemas:  NewSchemaRegistry(),
		starlark: NewStarlarkEvaluator(30 * time.Second),
	}
}

// Schemas returns the registry Load checks against.
func (l *Loader) Schemas() *SchemaRegistry {
	return l.schemas
}

// LoadFile reads path into a map of setting names to values. The format is
// picked by extension. defaults is visible to Starlark scripts as `defaults`.
func (l *Loader) LoadFile(ctx context.Context, path string, defaults map[string]any) (map[string]any, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}

	var values map[string]any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		values, err = l.loadCUE(path, content)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &values)
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(content))
		dec.UseNumber()
		if err = dec.Decode(&values); err == nil {
			values = numbers(values).(map[string]any)
		}
	case ".star":
		values, err = l.starlark.Evaluate(ctx, path, string(content), map[string]any{"defaults": defaults})
	default:
		return nil, fmt.Errorf("unsupported settings format %q for %s", ext, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings %s: %w", path, err)
	}
	if values == nil {
		values = map[string]any{}
	}
	return values, nil
}

func (l *Loader) loadCUE(path string, content []byte) (map[string]any, error) {
	val := l.ctx.CompileBytes(content, cue.Filename(path))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, convertCUEErrors(err)
	}

	var values map[string]any
	if err := val.Decode(&values); err != nil {
		return nil, fmt.Errorf("failed to decode: %w", err)
	}
	return values, nil
}

// Load reads path and decodes it over out, which must be a pointer to a
// struct holding defaults. When schema is not empty the values are first
// checked against that registered schema.
func (l *Loader) Load(ctx context.Context, path, schema string, out any) error {
	defaults, err := toMap(out)
	if err != nil {
		return err
	}

	values, err := l.LoadFile(ctx, path, defaults)
	if err != nil {
		return err
	}

	if schema != "" {
		if err := l.schemas.ValidateAgainstSchema(schema, values); err != nil {
			if verrs, ok := err.(ValidationErrors); ok {
				for i := range verrs {
					if verrs[i].File == "" || strings.HasSuffix(verrs[i].File, ".schema.cue") {
						verrs[i].File = path
					}
				}
			}
			return err
		}
	}

	return Decode(values, out)
}

// Decode copies values onto the struct out points to, matching keys to JSON
// field names. Unknown keys are an error; absent keys keep their value.
func Decode(values map[string]any, out any) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode settings: %w", err)
	}
	return nil
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode defaults: %w", err)
	}
	return out, nil
}

// numbers replaces json.Number with int64, or float64 when the number is not
// integral, so schemas see numbers rather than strings.
func numbers(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]any:
		for k, e := range v {
			v[k] = numbers(e)
		}
		return v
	case []any:
		for i, e := range v {
			v[i] = numbers(e)
		}
		return v
	default:
		return v
	}
}
