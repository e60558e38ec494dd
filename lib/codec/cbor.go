// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same payload always produces the same bytes.
var encMode cbor.EncMode

// decMode ignores unknown fields. A job enqueued by a newer binary
// still decodes in an older worker as long as the fields it needs are
// present.
var decMode cbor.DecMode

// strictMode rejects unknown fields and duplicate map keys.
var strictMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	options := cbor.DecOptions{
		// Payload fields typed any decode their maps as
		// map[string]any rather than map[any]any.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}
	decMode, err = options.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}

	options.ExtraReturnErrors = cbor.ExtraDecErrorUnknownField
	options.DupMapKey = cbor.DupMapKeyEnforcedAPF
	strictMode, err = options.DecMode()
	if err != nil {
		panic("codec: strict CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v, ignoring unknown fields.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// UnmarshalStrict decodes CBOR data into v and fails on fields that v
// does not declare.
func UnmarshalStrict(data []byte, v any) error {
	if err := strictMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("codec: %w", err)
	}
	return nil
}

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for
// data. The jobs CLI prints payloads this way.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
