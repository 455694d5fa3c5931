package decode

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strconv"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Options customises Decode.
type Options struct {
	// WeaklyTypedInput accepts "123" for ints, 1/0 for bools and similar client sloppiness.
	WeaklyTypedInput bool
	// ErrorUnused rejects payloads carrying fields the target does not declare.
	ErrorUnused bool
}

func DefaultOptions() Options {
	return Options{
		WeaklyTypedInput: true,
	}
}

// Payload decodes a JSON object into T, reading `json` tags. An empty or null payload
// decodes into the zero value.
func Payload[T any](raw json.RawMessage, opts ...Options) (*T, error) {
	var out T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &out, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Wrap(err, "payload is not a json object")
	}
	if err := Map(m, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

// Map decodes m into out (a pointer).
func Map(m map[string]any, out any, opts ...Options) error {
	cfg := DefaultOptions()
	if len(opts) > 0 {
		cfg = opts[0]
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: cfg.WeaklyTypedInput,
		ErrorUnused:      cfg.ErrorUnused,
		Squash:           true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			jsonNumberHook(),
			sliceToStringSliceHook(),
			jsonRawStringToMapHook(),
		),
	})
	if err != nil {
		return errors.Wrap(err, "new decoder")
	}
	if err := dec.Decode(m); err != nil {
		return errors.Wrap(err, "decode payload")
	}
	return nil
}

// jsonNumberHook converts json.Number into the numeric kind of the target field.
func jsonNumberHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		n, ok := data.(json.Number)
		if !ok {
			return data, nil
		}
		switch to.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
			f, err := n.Float64()
			if err != nil {
				return nil, err
			}
			return int64(f), nil
		case reflect.Float32, reflect.Float64:
			return n.Float64()
		case reflect.String:
			return n.String(), nil
		case reflect.Interface:
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
			return n.Float64()
		}
		return data, nil
	}
}

// sliceToStringSliceHook turns a []any into []string only when the target is []string.
func sliceToStringSliceHook() mapstructure.DecodeHookFuncType {
	stringSlice := reflect.TypeOf([]string(nil))
	return func(from, to reflect.Type, data any) (any, error) {
		if to != stringSlice {
			return data, nil
		}
		src, ok := data.([]any)
		if !ok {
			return data, nil
		}
		out := make([]string, 0, len(src))
		for _, it := range src {
			switch v := it.(type) {
			case string:
				out = append(out, v)
			case json.Number:
				out = append(out, v.String())
			case bool:
				out = append(out, strconv.FormatBool(v))
			default:
				b, _ := json.Marshal(v)
				out = append(out, string(b))
			}
		}
		return out, nil
	}
}

// jsonRawStringToMapHook accepts a JSON-encoded string where an object is expected.
func jsonRawStringToMapHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Map {
			return data, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(data.(string)), &m); err == nil {
			return m, nil
		}
		return data, nil
	}
}
