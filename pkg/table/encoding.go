package table

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Text formats (JSON, YAML) use the keyed strategy: an object whose member
// names are the formatted keys, in key order. The compact format (CBOR)
// uses the sequence strategy: an array of records in key order, with keys
// re-derived from PrimaryKey on decode.

type keyedRecord[V any] struct {
	key string
	val V
}

func encodeKeyed[K cmp.Ordered, V Record[K]](t *Table[K, V]) ([]keyedRecord[V], error) {
	out := make([]keyedRecord[V], 0, t.Len())

	for k, v := range t.All() {
		s, err := formatKey(k)
		if err != nil {
			return nil, err
		}

		out = append(out, keyedRecord[V]{key: s, val: v})
	}

	return out, nil
}

func decodeKeyed[K cmp.Ordered, V Record[K]](records []keyedRecord[V]) (Table[K, V], error) {
	var t Table[K, V]

	for _, r := range records {
		k, err := parseKey[K](r.key)
		if err != nil {
			return Table[K, V]{}, err
		}

		if pk := r.val.PrimaryKey(); cmp.Compare(pk, k) != 0 {
			return Table[K, V]{}, fmt.Errorf("%w: key %q holds record with key %v", ErrKeyMismatch, r.key, pk)
		}

		if _, ok := t.Add(r.val); !ok {
			return Table[K, V]{}, fmt.Errorf("%w: %q", ErrDuplicateKey, r.key)
		}
	}

	return t, nil
}

func encodeSeq[K cmp.Ordered, V Record[K]](t *Table[K, V]) []V {
	out := make([]V, 0, t.Len())
	for v := range t.Values() {
		out = append(out, v)
	}

	return out
}

func decodeSeq[K cmp.Ordered, V Record[K]](records []V) (Table[K, V], error) {
	var t Table[K, V]

	for _, v := range records {
		if _, ok := t.Add(v); !ok {
			return Table[K, V]{}, fmt.Errorf("%w: %v", ErrDuplicateKey, v.PrimaryKey())
		}
	}

	return t, nil
}

// MarshalJSON encodes the table as an object keyed by primary key.
func (t Table[K, V]) MarshalJSON() ([]byte, error) {
	records, err := encodeKeyed(&t)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, r := range records {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(r.key)
		if err != nil {
			return nil, err
		}

		val, err := json.Marshal(r.val)
		if err != nil {
			return nil, err
		}

		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keyed by primary key. JSON null yields an
// empty table.
func (t *Table[K, V]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = Table[K, V]{}

		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("table: expected JSON object, got %v", tok)
	}

	var records []keyedRecord[V]

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}

		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("table: expected object key, got %v", tok)
		}

		var v V
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("table: record %q: %w", key, err)
		}

		records = append(records, keyedRecord[V]{key: key, val: v})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	decoded, err := decodeKeyed[K](records)
	if err != nil {
		return err
	}

	*t = decoded

	return nil
}

// MarshalYAML encodes the table as a mapping keyed by primary key.
func (t Table[K, V]) MarshalYAML() (any, error) {
	records, err := encodeKeyed(&t)
	if err != nil {
		return nil, err
	}

	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}

	for _, r := range records {
		var val yaml.Node
		if err := val.Encode(r.val); err != nil {
			return nil, err
		}

		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: r.key},
			&val,
		)
	}

	return node, nil
}

// UnmarshalYAML decodes a mapping keyed by primary key. A null node yields
// an empty table.
func (t *Table[K, V]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}

	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null" {
		*t = Table[K, V]{}

		return nil
	}

	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("table: expected YAML mapping at line %d", node.Line)
	}

	if len(node.Content)%2 != 0 {
		return errors.New("table: malformed YAML mapping")
	}

	records := make([]keyedRecord[V], 0, len(node.Content)/2)

	for i := 0; i < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]

		var v V
		if err := valNode.Decode(&v); err != nil {
			return fmt.Errorf("table: record %q: %w", keyNode.Value, err)
		}

		records = append(records, keyedRecord[V]{key: keyNode.Value, val: v})
	}

	decoded, err := decodeKeyed[K](records)
	if err != nil {
		return err
	}

	*t = decoded

	return nil
}

// MarshalCBOR encodes the table as an array of records in key order.
func (t Table[K, V]) MarshalCBOR() ([]byte, error) {
	return cborEnc.Marshal(encodeSeq(&t))
}

// UnmarshalCBOR decodes an array of records, re-deriving every key.
// CBOR null yields an empty table.
func (t *Table[K, V]) UnmarshalCBOR(data []byte) error {
	var records []V
	if err := cborDec.Unmarshal(data, &records); err != nil {
		return err
	}

	decoded, err := decodeSeq[K](records)
	if err != nil {
		return err
	}

	*t = decoded

	return nil
}
