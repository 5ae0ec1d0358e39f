package binary

import "math/bits"

// Lookup3Checksum is Bob Jenkins' hashlittle with an initial value of zero,
// the checksum HDF5 appends to v2 superblocks, object headers and chunk
// index blocks.
func Lookup3Checksum(data []byte) uint32 {
	a := 0xdeadbeef + uint32(len(data))
	b, c := a, a

	word := func(p []byte) uint32 {
		var v uint32
		for i := len(p) - 1; i >= 0; i-- {
			v = v<<8 | uint32(p[i])
		}
		return v
	}

	// The tail of 1..12 bytes goes through final(), never mix(); an
	// empty tail returns c unmixed.
	for len(data) > 12 {
		a += word(data[0:4])
		b += word(data[4:8])
		c += word(data[8:12])
		a, b, c = mix(a, b, c)
		data = data[12:]
	}
	if len(data) == 0 {
		return c
	}

	var tail [12]byte
	copy(tail[:], data)
	a += word(tail[0:4])
	b += word(tail[4:8])
	c += word(tail[8:12])
	_, _, c = final(a, b, c)
	return c
}

func mix(a, b, c uint32) (uint32, uint32, uint32) {
	a -= c
	a ^= bits.RotateLeft32(c, 4)
	c += b
	b -= a
	b ^= bits.RotateLeft32(a, 6)
	a += c
	c -= b
	c ^= bits.RotateLeft32(b, 8)
	b += a
	a -= c
	a ^= bits.RotateLeft32(c, 16)
	c += b
	b -= a
	b ^= bits.RotateLeft32(a, 19)
	a += c
	c -= b
	c ^= bits.RotateLeft32(b, 4)
	b += a
	return a, b, c
}

func final(a, b, c uint32) (uint32, uint32, uint32) {
	c ^= b
	c -= bits.RotateLeft32(b, 14)
	a ^= c
	a -= bits.RotateLeft32(c, 11)
	b ^= a
	b -= bits.RotateLeft32(a, 25)
	c ^= b
	c -= bits.RotateLeft32(b, 16)
	a ^= c
	a -= bits.RotateLeft32(c, 4)
	b ^= a
	b -= bits.RotateLeft32(a, 14)
	c ^= b
	c -= bits.RotateLeft32(b, 24)
	return a, b, c
}

// Fletcher32 is the checksum of the HDF5 fletcher32 filter. Words are read
// most significant byte first, summed in runs of 360, and folded so both
// halves stay in 1..65535; a trailing odd byte counts as a high byte.
func Fletcher32(data []byte) uint32 {
	var sum1, sum2 uint32
	fold := func(v uint32) uint32 { return (v & 0xffff) + (v >> 16) }

	words := len(data) / 2
	for words > 0 {
		run := words
		if run > 360 {
			run = 360
		}
		words -= run
		for ; run > 0; run-- {
			sum1 += uint32(data[0])<<8 | uint32(data[1])
			sum2 += sum1
			data = data[2:]
		}
		sum1 = fold(sum1)
		sum2 = fold(sum2)
	}
	if len(data) == 1 {
		sum1 += uint32(data[0]) << 8
		sum2 += sum1
		sum1 = fold(sum1)
		sum2 = fold(sum2)
	}
	sum1 = fold(sum1)
	sum2 = fold(sum2)
	return sum2<<16 | sum1
}
