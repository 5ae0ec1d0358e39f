package object

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/tomochunk/internal/binary"
	"github.com/robert-malhotra/tomochunk/internal/message"
)

var (
	ErrInvalidHeader      = errors.New("invalid object header")
	ErrUnsupportedVersion = errors.New("unsupported object header version")
	ErrChecksumMismatch   = errors.New("object header checksum mismatch")
)

// maxContinuations bounds the number of continuation blocks followed for a
// single header, so that a corrupt file cannot loop forever.
const maxContinuations = 1024

// Header is a decoded object header.
type Header struct {
	Version  uint8
	Address  uint64
	Flags    uint8
	RefCount uint32
	Messages []message.Message
}

// Read decodes the object header at addr, following continuation blocks.
func Read(r *binary.Reader, addr uint64) (*Header, error) {
	sig, err := r.Signature(addr)
	if err != nil {
		return nil, fmt.Errorf("object header at %d: %w", addr, err)
	}
	var h *Header
	switch {
	case sig == "OHDR":
		h, err = readV2(r, addr)
	case sig[0] == 1:
		h, err = readV1(r, addr)
	default:
		return nil, fmt.Errorf("%w: unrecognized prefix at %d", ErrInvalidHeader, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("object header at %d: %w", addr, err)
	}
	return h, nil
}

// Message returns the first message of type typ, or nil.
func (h *Header) Message(typ message.Type) message.Message {
	for _, m := range h.Messages {
		if m.Type() == typ {
			return m
		}
	}
	return nil
}

// All returns every message of type typ.
func (h *Header) All(typ message.Type) []message.Message {
	var out []message.Message
	for _, m := range h.Messages {
		if m.Type() == typ {
			out = append(out, m)
		}
	}
	return out
}

func (h *Header) Dataspace() *message.Dataspace {
	m, _ := h.Message(message.TypeDataspace).(*message.Dataspace)
	return m
}

func (h *Header) Datatype() *message.Datatype {
	m, _ := h.Message(message.TypeDatatype).(*message.Datatype)
	return m
}

func (h *Header) Layout() *message.DataLayout {
	m, _ := h.Message(message.TypeDataLayout).(*message.DataLayout)
	return m
}

func (h *Header) Filters() *message.FilterPipeline {
	m, _ := h.Message(message.TypeFilterPipeline).(*message.FilterPipeline)
	return m
}

func (h *Header) SymbolTable() *message.SymbolTable {
	m, _ := h.Message(message.TypeSymbolTable).(*message.SymbolTable)
	return m
}

func (h *Header) LinkInfo() *message.LinkInfo {
	m, _ := h.Message(message.TypeLinkInfo).(*message.LinkInfo)
	return m
}

// Links returns the link messages in header order.
func (h *Header) Links() []*message.Link {
	var out []*message.Link
	for _, m := range h.All(message.TypeLink) {
		out = append(out, m.(*message.Link))
	}
	return out
}

// Attributes returns the attribute messages in header order.
func (h *Header) Attributes() []*message.Attribute {
	var out []*message.Attribute
	for _, m := range h.All(message.TypeAttribute) {
		out = append(out, m.(*message.Attribute))
	}
	return out
}

// IsDataset reports whether the header describes a dataset.
func (h *Header) IsDataset() bool {
	return h.Layout() != nil
}

// IsGroup reports whether the header describes a group of either style.
func (h *Header) IsGroup() bool {
	return h.SymbolTable() != nil || h.LinkInfo() != nil || len(h.Links()) > 0
}

// collect appends the messages of one block, queueing any continuation.
func (h *Header) collect(typ message.Type, body []byte, sizes binary.Sizes, queue *[]message.Continuation) error {
	m, err := message.Parse(typ, body, sizes)
	if err != nil {
		return err
	}
	if cont, ok := m.(*message.Continuation); ok {
		if len(*queue) >= maxContinuations {
			return fmt.Errorf("%w: too many continuation blocks", ErrInvalidHeader)
		}
		*queue = append(*queue, *cont)
		return nil
	}
	h.Messages = append(h.Messages, m)
	return nil
}
