/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cache

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/klauspost/compress/zstd"
)

// Header of encoded values.
const (
	encodingRaw  byte = 0
	encodingZstd byte = 1
)

var errCorruptedValue = errors.New("corrupted cached value")

// valueCodec encodes values as JSON prefixed with a header:
// one encoding byte, uvarint length of the type tag and the type tag itself.
// The type tag makes a read into another type a mismatch instead of a partially filled value.
// Payloads larger than the threshold are compressed with zstd when compression is enabled.
type valueCodec struct {
	compress  bool
	threshold int
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

func newValueCodec(compress bool, threshold int) (*valueCodec, error) {
	// The encoder and the decoder are stateless in EncodeAll/DecodeAll mode and may be used concurrently.
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, err
	}
	return &valueCodec{compress: compress, threshold: threshold, encoder: encoder, decoder: decoder}, nil
}

// typeTag identifies the Go type of a cached value. Nil value has an empty tag.
func typeTag(t reflect.Type) string {
	if t == nil {
		return ""
	}
	if t.Kind() == reflect.Ptr {
		return "*" + typeTag(t.Elem())
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

func encodeHeader(encoding byte, tag string, capacity int) []byte {
	out := make([]byte, 0, 1+binary.MaxVarintLen64+len(tag)+capacity)
	out = append(out, encoding)
	out = binary.AppendUvarint(out, uint64(len(tag)))
	return append(out, tag...)
}

func (c *valueCodec) encode(value interface{}) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	tag := typeTag(reflect.TypeOf(value))
	if c.compress && len(data) > c.threshold {
		return c.encoder.EncodeAll(data, encodeHeader(encodingZstd, tag, len(data)/2)), nil
	}
	return append(encodeHeader(encodingRaw, tag, len(data)), data...), nil
}

// decode fills dst from the encoded value.
// A value of another type is ErrTypeMismatch, dst is modified only if decoding succeeds.
func (c *valueCodec) decode(encoded []byte, dst interface{}) error {
	dstVal := reflect.ValueOf(dst)
	if dstVal.Kind() != reflect.Ptr || dstVal.IsNil() {
		return ErrInvalidDestination
	}
	elem := dstVal.Elem()

	if len(encoded) == 0 {
		return errCorruptedValue
	}
	encoding := encoded[0]
	if encoding != encodingRaw && encoding != encodingZstd {
		return fmt.Errorf("%w: unknown header %d", errCorruptedValue, encoding)
	}
	tagLen, n := binary.Uvarint(encoded[1:])
	if n <= 0 || tagLen > uint64(len(encoded)-1-n) {
		return fmt.Errorf("%w: malformed type tag", errCorruptedValue)
	}
	tag := string(encoded[1+n : 1+n+int(tagLen)])
	data := encoded[1+n+int(tagLen):]

	if tag == "" {
		switch elem.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			elem.Set(reflect.Zero(elem.Type()))
			return nil
		}
		return fmt.Errorf("%w: nil is not assignable to %s", ErrTypeMismatch, elem.Type())
	}
	if wantTag := typeTag(elem.Type()); wantTag != tag {
		return fmt.Errorf("%w: %s is stored, %s is requested", ErrTypeMismatch, tag, wantTag)
	}

	if encoding == encodingZstd {
		var err error
		if data, err = c.decoder.DecodeAll(data, nil); err != nil {
			return fmt.Errorf("%w: %v", errCorruptedValue, err)
		}
	}
	decoded := reflect.New(elem.Type())
	if err := json.Unmarshal(data, decoded.Interface()); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
		}
		return fmt.Errorf("%w: %v", errCorruptedValue, err)
	}
	elem.Set(decoded.Elem())
	return nil
}

func (c *valueCodec) close() {
	_ = c.encoder.Close()
	c.decoder.Close()
}
