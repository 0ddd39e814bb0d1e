package table

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	cborEnc = mustEncMode()
	cborDec = mustDecMode()
)

// CBOREncMode returns the encoder used for tables: RFC 8949 core
// deterministic encoding, so equal values always produce equal bytes.
func CBOREncMode() cbor.EncMode {
	return cborEnc
}

// CBORDecMode returns the decoder used for tables. Untyped maps decode as
// map[string]any, which keeps decoded values encodable as JSON and YAML.
func CBORDecMode() cbor.DecMode {
	return cborDec
}

func mustEncMode() cbor.EncMode {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor enc mode: %v", err))
	}

	return enc
}

func mustDecMode() cbor.DecMode {
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor dec mode: %v", err))
	}

	return dec
}
