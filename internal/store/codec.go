package store

import (
	"encoding/json"
	"fmt"

	"github.com/ugorji/go/codec"
)

// Codec turns in-memory values into stored bytes and back.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSON is the default codec; the stored layout is plain JSON text.
type JSON struct{}

func (JSON) Encode(v any) ([]byte, error)    { return json.Marshal(v) }
func (JSON) Decode(data []byte, v any) error { return json.Unmarshal(data, v) }

// Msgpack encodes values with ugorji's msgpack handle. Struct fields use
// their json tags, so both codecs agree on field names.
type Msgpack struct {
	mh *codec.MsgpackHandle
}

// NewMsgpack returns a ready msgpack codec.
func NewMsgpack() *Msgpack {
	mh := &codec.MsgpackHandle{}
	mh.RawToString = true
	return &Msgpack{mh: mh}
}

func (m *Msgpack) Encode(v any) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, m.mh).Encode(v); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Msgpack) Decode(data []byte, v any) error {
	return codec.NewDecoderBytes(data, m.mh).Decode(v)
}

// CodecByName resolves the STORE_CODEC setting.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "msgpack":
		return NewMsgpack(), nil
	default:
		return nil, fmt.Errorf("store: unknown codec %q", name)
	}
}
