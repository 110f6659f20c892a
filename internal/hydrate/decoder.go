// Package hydrate decodes serialized entity payloads from JSON into the
// generic map form the serializer consumes, running caller hooks on the way.
package hydrate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Context names the type a payload is being decoded for.
type Context struct {
	Identifier string
}

// PreHook lets callers mutate or normalise a payload before it is used, for
// example to rename keys written by an older schema.
type PreHook func(Context, map[string]any) (map[string]any, error)

// DecoderOption configures a Decoder instance.
type DecoderOption func(*Decoder)

// Decoder converts JSON documents into payload maps.
type Decoder struct {
	preHooks     []PreHook
	configureDec []func(*json.Decoder)
}

// WithPreHook applies hook after decoding, in registration order.
func WithPreHook(hook PreHook) DecoderOption {
	return func(d *Decoder) {
		if hook != nil {
			d.preHooks = append(d.preHooks, hook)
		}
	}
}

// WithUseNumber keeps numbers as json.Number so integers survive unchanged.
func WithUseNumber() DecoderOption {
	return func(d *Decoder) {
		d.configureDec = append(d.configureDec, func(dec *json.Decoder) {
			dec.UseNumber()
		})
	}
}

// NewDecoder builds a Decoder.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode parses data as a single JSON object and applies the hooks.
func (d *Decoder) Decode(ctx Context, data []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	for _, configure := range d.configureDec {
		configure(decoder)
	}

	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("hydrate: decode %q: %w", ctx.Identifier, err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("hydrate: decode %q: trailing data after payload", ctx.Identifier)
	}
	if payload == nil {
		return nil, fmt.Errorf("hydrate: payload is null for %q", ctx.Identifier)
	}
	return d.apply(ctx, payload)
}

// Apply runs the hooks on an already decoded payload. The input is not
// modified.
func (d *Decoder) Apply(ctx Context, payload map[string]any) (map[string]any, error) {
	if payload == nil {
		return nil, fmt.Errorf("hydrate: payload is nil for %q", ctx.Identifier)
	}
	if len(d.preHooks) == 0 {
		return payload, nil
	}
	return d.apply(ctx, cloneMap(payload))
}

func (d *Decoder) apply(ctx Context, payload map[string]any) (map[string]any, error) {
	current := payload
	for _, hook := range d.preHooks {
		next, err := hook(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("hydrate: pre-hook for %q failed: %w", ctx.Identifier, err)
		}
		if next != nil {
			current = next
		}
	}
	return current, nil
}

func cloneMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for key, value := range src {
		if nested, ok := value.(map[string]any); ok {
			out[key] = cloneMap(nested)
			continue
		}
		out[key] = value
	}
	return out
}
