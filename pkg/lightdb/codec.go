package lightdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/calvinalkan/lightdb/pkg/table"
)

// Codec converts an aggregate to and from bytes.
type Codec interface {
	// Name is the codec's config name: "json", "yaml" or "cbor".
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var (
	// JSON writes two-space indented JSON. It reads JSON with comments and
	// trailing commas (JWCC).
	JSON Codec = jsonCodec{}

	// YAML reads and writes YAML 1.2 documents.
	YAML Codec = yamlCodec{}

	// CBOR reads and writes deterministic CBOR (RFC 8949 core encoding).
	// Tables use their compact record-sequence form.
	CBOR Codec = newCBORCodec()
)

// CodecByName returns the codec registered under name (case-insensitive).
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "cbor":
		return CBOR, nil
	default:
		return nil, fmt.Errorf("unknown codec %q (want json, yaml or cbor)", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}

	return append(data, '\n'), nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	std, err := hujson.Standardize(bytes.Clone(data))
	if err != nil {
		return err
	}

	return json.Unmarshal(std, v)
}

type yamlCodec struct{}

func (yamlCodec) Name() string { return "yaml" }

func (yamlCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	if err := enc.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (yamlCodec) Unmarshal(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// newCBORCodec shares the table encoding modes, so records nested in tables
// and the rest of the aggregate follow the same rules.
func newCBORCodec() cborCodec {
	return cborCodec{enc: table.CBOREncMode(), dec: table.CBORDecMode()}
}

func (cborCodec) Name() string { return "cbor" }

func (c cborCodec) Marshal(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c cborCodec) Unmarshal(data []byte, v any) error {
	return c.dec.Unmarshal(data, v)
}
