package toolbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/mitchellh/mapstructure"
)

// SchemaOption adjusts a schema derived from a Go type, for constraints that
// struct tags cannot express (minimums, enums, patterns).
type SchemaOption func(s *jsonschema.Schema)

// NewTypedTool builds a Tool from a typed function. The input schema is
// derived from In; arguments are decoded into In only after they validated
// against that schema. A string Out is returned as-is, any other Out is
// encoded as JSON.
func NewTypedTool[In, Out any](name, description string, fn func(ctx context.Context, in In) (Out, error), opts ...SchemaOption) (Tool, error) {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return Tool{}, &SchemaError{Tool: name, Err: err}
	}

	for _, opt := range opts {
		opt(schema)
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return Tool{}, &SchemaError{Tool: name, Err: err}
	}

	return Tool{
		Name:        name,
		Description: description,
		InputSchema: raw,
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			in, err := decodeArgs[In](input)
			if err != nil {
				return "", err
			}

			out, err := fn(ctx, in)
			if err != nil {
				return "", err
			}

			if s, ok := any(out).(string); ok {
				return s, nil
			}

			data, err := json.Marshal(out)
			if err != nil {
				return "", fmt.Errorf("encode result: %w", err)
			}
			return string(data), nil
		},
	}, nil
}

// MustTypedTool is like NewTypedTool but panics on error.
func MustTypedTool[In, Out any](name, description string, fn func(ctx context.Context, in In) (Out, error), opts ...SchemaOption) Tool {
	t, err := NewTypedTool(name, description, fn, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// Minimum sets an inclusive numeric lower bound on the named property.
func Minimum(property string, minimum float64) SchemaOption {
	return func(s *jsonschema.Schema) {
		if p, ok := s.Properties[property]; ok {
			p.Minimum = &minimum
		}
	}
}

// Enum restricts the named property to the given values.
func Enum(property string, values ...any) SchemaOption {
	return func(s *jsonschema.Schema) {
		if p, ok := s.Properties[property]; ok {
			p.Enum = values
		}
	}
}

func decodeArgs[In any](input json.RawMessage) (In, error) {
	var in In

	var fields map[string]any
	if err := json.Unmarshal(input, &fields); err != nil {
		return in, fmt.Errorf("decode arguments: %w", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &in,
	})
	if err != nil {
		return in, err
	}

	if err := decoder.Decode(fields); err != nil {
		return in, fmt.Errorf("decode arguments: %w", err)
	}

	return in, nil
}
