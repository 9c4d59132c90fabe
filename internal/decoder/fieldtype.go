package decoder

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

type fieldKind struct {
	base     byte // 'u', 's', 'f', 't' (text) or 'b' (bytes)
	width    int
	variable bool
	order    binary.ByteOrder
}

// parseFieldType resolves a type name such as "u2", "s4le" or "str".
func parseFieldType(name, defaultOrder string) (fieldKind, error) {
	t := strings.ToLower(strings.TrimSpace(name))
	switch t {
	case "str":
		return fieldKind{base: 't', variable: true}, nil
	case "bytes":
		return fieldKind{base: 'b', variable: true}, nil
	case "":
		return fieldKind{}, fmt.Errorf("missing type")
	}

	order := defaultOrder
	switch {
	case strings.HasSuffix(t, "be"):
		order, t = "be", strings.TrimSuffix(t, "be")
	case strings.HasSuffix(t, "le"):
		order, t = "le", strings.TrimSuffix(t, "le")
	}

	k := fieldKind{order: binary.BigEndian}
	if order == "le" {
		k.order = binary.LittleEndian
	}

	switch t {
	case "u1", "u2", "u4", "u8":
		k.base = 'u'
	case "s1", "s2", "s4", "s8":
		k.base = 's'
	case "f4", "f8":
		k.base = 'f'
	default:
		return fieldKind{}, fmt.Errorf("unknown type %q", name)
	}
	k.width = int(t[1] - '0')
	return k, nil
}

// readNumber interprets b (len == k.width) as a number.
func (k fieldKind) readNumber(b []byte) float64 {
	switch k.base {
	case 'u':
		return float64(k.unsigned(b))
	case 's':
		u := k.unsigned(b)
		shift := uint(64 - 8*k.width)
		return float64(int64(u<<shift) >> shift)
	case 'f':
		if k.width == 4 {
			return float64(math.Float32frombits(k.order.Uint32(b)))
		}
		return math.Float64frombits(k.order.Uint64(b))
	}
	return 0
}

func (k fieldKind) unsigned(b []byte) uint64 {
	switch k.width {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(k.order.Uint16(b))
	case 4:
		return uint64(k.order.Uint32(b))
	default:
		return k.order.Uint64(b)
	}
}
