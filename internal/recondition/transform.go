package recondition

import (
	"strconv"
	"strings"

	"github.com/robert-malhotra/tomochunk/internal/array"
)

// Transform maps a source unit to the unit that is written. Every
// transform also maps the source shape and element type to the
// destination's, so a run can be planned before any data is read.
type Transform interface {
	Apply(b *array.Buffer) (*array.Buffer, error)
	Shape(src []int) []int
	DType(src array.DType) array.DType
	String() string
}

// Identity writes units unchanged.
type Identity struct{}

func (Identity) Apply(b *array.Buffer) (*array.Buffer, error) { return b, nil }
func (Identity) Shape(src []int) []int                        { return append([]int(nil), src...) }
func (Identity) DType(src array.DType) array.DType            { return src }
func (Identity) String() string                               { return "identity" }

// Downsample keeps every K-th element of both spatial axes, so a trailing
// extent d becomes ceil(d/K). The slice axis is never reduced.
type Downsample struct {
	K int
}

// Apply picks rows and columns 0, K, 2K, ... of every slice in b.
func (d Downsample) Apply(b *array.Buffer) (*array.Buffer, error) { return array.Subsample(b, d.K) }

// Shape returns src with every axis after the first divided by K,
// rounding up.
func (d Downsample) Shape(src []int) []int {
	out := append([]int(nil), src...)
	for i := 1; i < len(out); i++ {
		out[i] = array.CeilDiv(out[i], d.K)
	}
	return out
}

func (d Downsample) DType(src array.DType) array.DType { return src }
func (d Downsample) String() string                    { return "downsample:" + strconv.Itoa(d.K) }

// Cast converts elements to To, rounding to nearest and saturating at the
// target range. NaN becomes zero.
type Cast struct {
	To array.DType
}

// Apply returns a copy of b with elements of type To.
func (c Cast) Apply(b *array.Buffer) (*array.Buffer, error) { return array.Cast(b, c.To) }
func (c Cast) Shape(src []int) []int                        { return append([]int(nil), src...) }
func (c Cast) DType(array.DType) array.DType                { return c.To }
func (c Cast) String() string                               { return "cast:" + c.To.String() }

// Chain applies its transforms left to right.
type Chain []Transform

// Apply stops at the first transform that fails.
func (c Chain) Apply(b *array.Buffer) (*array.Buffer, error) {
	var err error
	for _, t := range c {
		if b, err = t.Apply(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (c Chain) Shape(src []int) []int {
	out := append([]int(nil), src...)
	for _, t := range c {
		out = t.Shape(out)
	}
	return out
}

func (c Chain) DType(src array.DType) array.DType {
	for _, t := range c {
		src = t.DType(src)
	}
	return src
}

// String joins the steps with commas, in the form ParseTransform reads.
func (c Chain) String() string {
	if len(c) == 0 {
		return Identity{}.String()
	}
	parts := make([]string, len(c))
	for i, t := range c {
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}

// ParseTransform parses "identity", "downsample:K" (or "shrink:K"),
// "cast:TYPE" and comma separated chains of them such as
// "downsample:2,cast:uint8". The empty string is the identity.
func ParseTransform(s string) (Transform, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Identity{}, nil
	}
	var chain Chain
	for _, part := range strings.Split(s, ",") {
		t, err := parseStep(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		chain = append(chain, t)
	}
	if len(chain) == 1 {
		return chain[0], nil
	}
	return chain, nil
}

func parseStep(s string) (Transform, error) {
	kind, arg, hasArg := strings.Cut(s, ":")
	switch strings.ToLower(kind) {
	case "identity", "none":
		if hasArg {
			return nil, invalidPolicy("identity takes no argument: %q", s)
		}
		return Identity{}, nil
	case "downsample", "shrink":
		k, err := strconv.Atoi(arg)
		if err != nil {
			return nil, invalidPolicy("downsample factor in %q", s)
		}
		return Downsample{K: k}, nil
	case "cast":
		t, err := array.ParseDType(arg)
		if err != nil {
			return nil, invalidPolicy("cast in %q: %v", s, err)
		}
		return Cast{To: t}, nil
	}
	return nil, invalidPolicy("unknown transform %q", s)
}

// checkTransform rejects factors below one and invalid cast targets.
func checkTransform(t Transform) error {
	switch t := t.(type) {
	case nil, Identity:
	case Downsample:
		if t.K < 1 {
			return invalidPolicy("downsample factor %d", t.K)
		}
	case Cast:
		if !t.To.Valid() {
			return invalidPolicy("cast to %s", t.To)
		}
	case Chain:
		for _, step := range t {
			if err := checkTransform(step); err != nil {
				return err
			}
		}
	}
	return nil
}
