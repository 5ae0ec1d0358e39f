package hdf5

import (
	"fmt"

	"github.com/robert-malhotra/tomochunk/internal/array"
	"github.com/robert-malhotra/tomochunk/internal/message"
)

// Datatype returns the little-endian HDF5 datatype for t.
func Datatype(t array.DType) (*message.Datatype, error) {
	switch {
	case t.Float():
		return message.NewFloatingPoint(uint32(t.Size())), nil
	case t.Valid():
		return message.NewFixedPoint(uint32(t.Size()), t.Signed()), nil
	}
	return nil, fmt.Errorf("%w: element type %s", ErrUnsupported, t)
}

// ElementType maps an HDF5 numeric datatype onto an element type. Byte
// order is reported separately by the datatype; readers convert to
// little endian.
func ElementType(dt *message.Datatype) (array.DType, error) {
	switch dt.Class {
	case message.ClassFixedPoint:
		t, err := array.Integer(int(dt.Size), dt.Signed)
		if err != nil {
			return array.Invalid, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return t, nil
	case message.ClassFloatPoint:
		switch dt.Size {
		case 4:
			return array.Float32, nil
		case 8:
			return array.Float64, nil
		}
	}
	return array.Invalid, fmt.Errorf("%w: %s datatype of %d bytes", ErrUnsupported, dt.Class, dt.Size)
}
