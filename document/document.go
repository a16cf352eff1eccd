// Package document provides observable documents decoded from JSON, YAML or
// TOML.
//
// A Document is a kvo.Object whose nested mappings are nested objects, so a
// binding can target any leaf by dotted key path:
//
//	doc := document.New(document.YAMLCodec{})
//	_ = doc.Load([]byte("server:\n  port: 8080\n"))
//	port, _ := doc.Value("server.port") // 8080
//
// Load merges rather than replaces. Leaves whose value did not change are
// left alone and their observers are not notified; nested objects keep their
// identity across loads.
//
// File adds a backing file: it reloads on fsnotify events after a clockz
// debounce and can write the current contents back with Save.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/zoobzio/tether/kvo"
)

// ErrInvalidKey indicates a decoded mapping key that cannot be addressed by
// a key path, such as an empty key or one containing the separator.
var ErrInvalidKey = errors.New("invalid document key")

// Document is an observable tree of values decoded with a Codec.
// The zero value is not usable; create documents with New.
type Document struct {
	kvo.Object

	codec Codec
	load  sync.Mutex
}

// New creates an empty document using codec. A nil codec means JSONCodec.
func New(codec Codec) *Document {
	d := &Document{}
	d.init(codec)
	return d
}

func (d *Document) init(codec Codec) {
	if codec == nil {
		codec = JSONCodec{}
	}
	d.codec = codec
}

// Codec returns the document's codec.
func (d *Document) Codec() Codec {
	return d.codec
}

// Load decodes data and merges it into the document. Keys missing from data
// are deleted. The document is unchanged if data cannot be decoded or holds
// an invalid key.
func (d *Document) Load(data []byte) error {
	values, err := decode(d.codec, data)
	if err != nil {
		return fmt.Errorf("decode %s: %w", d.codec.ContentType(), err)
	}
	if err := check("", values); err != nil {
		return err
	}

	d.load.Lock()
	defer d.load.Unlock()
	return merge(&d.Object, values)
}

// Marshal encodes the current contents with the document's codec.
func (d *Document) Marshal() ([]byte, error) {
	return d.codec.Marshal(d.Snapshot())
}

func decode(codec Codec, data []byte) (map[string]any, error) {
	values := map[string]any{}
	if len(bytes.TrimSpace(data)) == 0 {
		return values, nil
	}
	if err := codec.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	if values == nil {
		values = map[string]any{}
	}
	return values, nil
}

// check rejects keys a key path cannot address.
func check(prefix string, values map[string]any) error {
	for key, v := range values {
		if key == "" || strings.Contains(key, kvo.Separator) {
			return fmt.Errorf("%w: %q under %q", ErrInvalidKey, key, prefix)
		}
		if m, ok := mapping(v); ok {
			if err := check(join(prefix, key), m); err != nil {
				return err
			}
		}
	}
	return nil
}

// merge applies values to obj, writing only leaves that changed.
func merge(obj *kvo.Object, values map[string]any) error {
	for _, key := range obj.Keys() {
		if _, ok := values[key]; !ok {
			if err := obj.Delete(key); err != nil {
				return err
			}
		}
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		cur, err := obj.Value(key)
		if err != nil {
			return err
		}

		if m, ok := mapping(values[key]); ok {
			if child, ok := cur.(*kvo.Object); ok && child != nil {
				if err := merge(child, m); err != nil {
					return err
				}
				continue
			}
			// A fresh child has no observers; fill it before attaching.
			child := &kvo.Object{}
			if err := merge(child, m); err != nil {
				return err
			}
			if err := obj.SetValue(key, child); err != nil {
				return err
			}
			continue
		}

		next := values[key]
		if _, ok := cur.(*kvo.Object); !ok && reflect.DeepEqual(cur, next) {
			continue
		}
		if err := obj.SetValue(key, next); err != nil {
			return err
		}
	}
	return nil
}

// mapping normalizes decoded mappings to map[string]any.
func mapping(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[fmt.Sprint(k)] = v
		}
		return out, true
	default:
		return nil, false
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + kvo.Separator + key
}
