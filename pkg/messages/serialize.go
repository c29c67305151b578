package messages

import (
	"fmt"

	envelopefb "github.com/cbodonnell/cuesync/flatbuffers/envelope"
	"github.com/cbodonnell/cuesync/pkg/game/types"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
)

var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
	}
	decoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(1<<20))
	if err != nil {
		panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
	}
}

// SerializeMessage encodes m as a compressed flatbuffers envelope.
func SerializeMessage(m *Message) ([]byte, error) {
	b, err := SerializeMessageFlatbuffer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %v", err)
	}
	return encoder.EncodeAll(b, make([]byte, 0, len(b))), nil
}

// DeserializeMessage decodes a compressed flatbuffers envelope.
func DeserializeMessage(data []byte) (*Message, error) {
	b, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress message: %v", err)
	}

	message, err := DeserializeMessageFlatbuffer(b)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize message: %v", err)
	}

	return message, nil
}

// SerializeMessageFlatbuffer encodes m as an uncompressed flatbuffers envelope.
func SerializeMessageFlatbuffer(m *Message) ([]byte, error) {
	if !m.Type.Valid() {
		return nil, fmt.Errorf("invalid message type %s", m.Type)
	}
	builder := flatbuffers.NewBuilder(len(m.Payload) + 64)

	entity := builder.CreateString(string(m.Entity))
	payload := builder.CreateByteVector(m.Payload)

	envelopefb.EnvelopeStart(builder)
	envelopefb.EnvelopeAddSender(builder, uint32(m.Sender))
	envelopefb.EnvelopeAddType(builder, byte(m.Type))
	envelopefb.EnvelopeAddEntity(builder, entity)
	envelopefb.EnvelopeAddPayload(builder, payload)
	envelopeOffset := envelopefb.EnvelopeEnd(builder)
	builder.Finish(envelopeOffset)

	return builder.FinishedBytes(), nil
}

// DeserializeMessageFlatbuffer decodes an uncompressed flatbuffers envelope.
// Truncated or corrupt buffers produce an error rather than a panic.
func DeserializeMessageFlatbuffer(b []byte) (message *Message, err error) {
	if len(b) < flatbuffers.SizeUOffsetT {
		return nil, fmt.Errorf("envelope too short: %d bytes", len(b))
	}
	defer func() {
		if r := recover(); r != nil {
			message = nil
			err = fmt.Errorf("corrupt envelope: %v", r)
		}
	}()

	fb := envelopefb.GetRootAsEnvelope(b, 0)
	message = &Message{
		Sender: types.PeerID(fb.Sender()),
		Type:   MessageType(fb.Type()),
		Entity: types.EntityID(fb.Entity()),
	}
	if !message.Type.Valid() {
		return nil, fmt.Errorf("invalid message type %s", message.Type)
	}
	if payload := fb.PayloadBytes(); len(payload) > 0 {
		message.Payload = append([]byte(nil), payload...)
	}

	return message, nil
}
