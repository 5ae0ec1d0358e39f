package object

import (
	"fmt"

	"github.com/robert-malhotra/tomochunk/internal/binary"
	"github.com/robert-malhotra/tomochunk/internal/message"
)

// MinGroupChunk is the smallest first-block size h5py gives a group header;
// matching it leaves room for a few links to be added in place by other
// writers.
const MinGroupChunk = 120

// maxMessageBody is the largest body a version 2 message can carry.
const maxMessageBody = 0xFFFF

// Encode builds a single-block version 2 object header holding msgs. The
// block is padded with a NIL message up to minChunk bytes.
func Encode(sizes binary.Sizes, msgs []message.Encoder, minChunk int) ([]byte, error) {
	bodies := make([][]byte, len(msgs))
	total := 0
	for i, m := range msgs {
		bodies[i] = message.Bytes(m, sizes)
		if len(bodies[i]) > maxMessageBody {
			return nil, fmt.Errorf("message type 0x%04x: %d bytes exceeds the header message limit",
				uint16(m.Type()), len(bodies[i]))
		}
		total += v2MessageHeader + len(bodies[i])
	}

	pad := 0
	if total < minChunk {
		pad = minChunk - total
		// A NIL message needs its own 4-byte header.
		if pad < v2MessageHeader {
			pad = v2MessageHeader
		}
	}
	chunk := total + pad

	var flags uint8
	width := binary.SizeBytes(uint64(chunk))
	switch width {
	case 2:
		flags = 1
	case 4:
		flags = 2
	case 8:
		flags = 3
	}

	b := binary.NewBuffer(sizes)
	b.PutString("OHDR")
	b.PutU8(2)
	b.PutU8(flags)
	b.PutUintN(uint64(chunk), width)
	for i, m := range msgs {
		b.PutU8(uint8(m.Type()))
		b.PutU16(uint16(len(bodies[i])))
		b.PutU8(0)
		b.PutBytes(bodies[i])
	}
	if pad > 0 {
		b.PutU8(uint8(message.TypeNIL))
		b.PutU16(uint16(pad - v2MessageHeader))
		b.PutU8(0)
		b.PutZeros(pad - v2MessageHeader)
	}
	b.PutChecksum()
	return b.Bytes(), nil
}

// GroupMessages returns the messages of a new-style group with compact link
// storage.
func GroupMessages(sizes binary.Sizes, links []*message.Link) []message.Encoder {
	msgs := []message.Encoder{message.NewLinkInfo(sizes), &message.GroupInfo{}}
	for _, l := range links {
		msgs = append(msgs, l)
	}
	return msgs
}

// DatasetMessages returns the messages of a dataset header in the order
// the library writes them. pipeline may be nil.
func DatasetMessages(ds *message.Dataspace, dt *message.Datatype, layout *message.DataLayout,
	pipeline *message.FilterPipeline, attrs []*message.Attribute) []message.Encoder {
	msgs := []message.Encoder{ds, dt}
	if layout.Class == message.LayoutChunked {
		msgs = append(msgs, message.NewChunkedFillValue())
	}
	msgs = append(msgs, layout)
	if pipeline != nil && len(pipeline.Filters) > 0 {
		msgs = append(msgs, pipeline)
	}
	for _, a := range attrs {
		msgs = append(msgs, a)
	}
	return msgs
}
