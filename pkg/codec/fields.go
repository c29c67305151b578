package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cbodonnell/cuesync/pkg/kinematic"
)

// Uint8 is a one byte unsigned field.
func Uint8[T any](name string, acc func(*T) *uint8) []Field[T] {
	return []Field[T]{{
		Name:  name,
		Width: 1,
		put: func(b []byte, _ binary.ByteOrder, v *T) bool {
			b[0] = *acc(v)
			return false
		},
		get: func(b []byte, _ binary.ByteOrder, v *T) {
			*acc(v) = b[0]
		},
	}}
}

// Int8 is a one byte signed field.
func Int8[T any](name string, acc func(*T) *int8) []Field[T] {
	return []Field[T]{{
		Name:  name,
		Width: 1,
		put: func(b []byte, _ binary.ByteOrder, v *T) bool {
			b[0] = byte(*acc(v))
			return false
		},
		get: func(b []byte, _ binary.ByteOrder, v *T) {
			*acc(v) = int8(b[0])
		},
	}}
}

// Bool is a one byte boolean field; any non-zero byte decodes as true.
func Bool[T any](name string, acc func(*T) *bool) []Field[T] {
	return []Field[T]{{
		Name:  name,
		Width: 1,
		put: func(b []byte, _ binary.ByteOrder, v *T) bool {
			if *acc(v) {
				b[0] = 1
			} else {
				b[0] = 0
			}
			return false
		},
		get: func(b []byte, _ binary.ByteOrder, v *T) {
			*acc(v) = b[0] != 0
		},
	}}
}

// Uint16 is a two byte unsigned field.
func Uint16[T any](name string, acc func(*T) *uint16) []Field[T] {
	return []Field[T]{{
		Name:  name,
		Width: 2,
		put: func(b []byte, order binary.ByteOrder, v *T) bool {
			order.PutUint16(b, *acc(v))
			return false
		},
		get: func(b []byte, order binary.ByteOrder, v *T) {
			*acc(v) = order.Uint16(b)
		},
	}}
}

// Uint32 is a four byte unsigned field.
func Uint32[T any](name string, acc func(*T) *uint32) []Field[T] {
	return []Field[T]{{
		Name:  name,
		Width: 4,
		put: func(b []byte, order binary.ByteOrder, v *T) bool {
			order.PutUint32(b, *acc(v))
			return false
		},
		get: func(b []byte, order binary.ByteOrder, v *T) {
			*acc(v) = order.Uint32(b)
		},
	}}
}

// Int64 is an eight byte signed field.
func Int64[T any](name string, acc func(*T) *int64) []Field[T] {
	return []Field[T]{{
		Name:  name,
		Width: 8,
		put: func(b []byte, order binary.ByteOrder, v *T) bool {
			order.PutUint64(b, uint64(*acc(v)))
			return false
		},
		get: func(b []byte, order binary.ByteOrder, v *T) {
			*acc(v) = int64(order.Uint64(b))
		},
	}}
}

// Float32 is a raw IEEE 754 single precision field.
func Float32[T any](name string, acc func(*T) *float32) []Field[T] {
	return []Field[T]{{
		Name:  name,
		Width: 4,
		put: func(b []byte, order binary.ByteOrder, v *T) bool {
			order.PutUint32(b, math.Float32bits(*acc(v)))
			return false
		},
		get: func(b []byte, order binary.ByteOrder, v *T) {
			*acc(v) = math.Float32frombits(order.Uint32(b))
		},
	}}
}

// Quantized is a two byte fixed-point field covering [-rng, rng].
// Out of range values are clamped, never rejected.
func Quantized[T any](name string, rng float64, acc func(*T) *float32) []Field[T] {
	return []Field[T]{{
		Name:  name,
		Width: 2,
		put: func(b []byte, order binary.ByteOrder, v *T) bool {
			q, clamped := Quantize(float64(*acc(v)), rng)
			order.PutUint16(b, q)
			return clamped
		},
		get: func(b []byte, order binary.ByteOrder, v *T) {
			*acc(v) = float32(Dequantize(order.Uint16(b), rng))
		},
	}}
}

// Const occupies no bytes; on decode it resets a value the layout does not carry.
func Const[T any](name string, set func(*T)) []Field[T] {
	return []Field[T]{{
		Name:  name,
		Width: 0,
		put:   func([]byte, binary.ByteOrder, *T) bool { return false },
		get: func(_ []byte, _ binary.ByteOrder, v *T) {
			set(v)
		},
	}}
}

// Bit is one entry of a Flags field.
type Bit[T any] struct {
	get func(*T) bool
	set func(*T, bool)
}

// BoolBit maps a flag bit onto a bool.
func BoolBit[T any](acc func(*T) *bool) Bit[T] {
	return Bit[T]{
		get: func(v *T) bool { return *acc(v) },
		set: func(v *T, on bool) { *acc(v) = on },
	}
}

// LowBit maps a flag bit onto the lowest bit of a byte valued 0 or 1.
func LowBit[T any](acc func(*T) *uint8) Bit[T] {
	return Bit[T]{
		get: func(v *T) bool { return *acc(v)&1 != 0 },
		set: func(v *T, on bool) {
			if on {
				*acc(v) = 1
			} else {
				*acc(v) = 0
			}
		},
	}
}

// Flags packs up to 8*width bits, least significant first.
func Flags[T any](name string, width int, bits ...Bit[T]) []Field[T] {
	if width != 1 && width != 2 {
		panic(fmt.Sprintf("flags %s: unsupported width %d", name, width))
	}
	if len(bits) > width*8 {
		panic(fmt.Sprintf("flags %s: %d bits do not fit in %d bytes", name, len(bits), width))
	}
	return []Field[T]{{
		Name:  name,
		Width: width,
		put: func(b []byte, order binary.ByteOrder, v *T) bool {
			var packed uint16
			for i, bit := range bits {
				if bit.get(v) {
					packed |= 1 << uint(i)
				}
			}
			if width == 1 {
				b[0] = byte(packed)
			} else {
				order.PutUint16(b, packed)
			}
			return false
		},
		get: func(b []byte, order binary.ByteOrder, v *T) {
			var packed uint16
			if width == 1 {
				packed = uint16(b[0])
			} else {
				packed = order.Uint16(b)
			}
			for i, bit := range bits {
				bit.set(v, packed&(1<<uint(i)) != 0)
			}
		},
	}}
}

// VectorFloat32 is three raw float32 fields.
func VectorFloat32[T any](name string, acc func(*T) *kinematic.Vector) []Field[T] {
	return concat(
		Float32(name+".x", func(v *T) *float32 { return &acc(v).X }),
		Float32(name+".y", func(v *T) *float32 { return &acc(v).Y }),
		Float32(name+".z", func(v *T) *float32 { return &acc(v).Z }),
	)
}

// VectorQuantized is three quantized fields sharing one range.
func VectorQuantized[T any](name string, rng float64, acc func(*T) *kinematic.Vector) []Field[T] {
	return concat(
		Quantized(name+".x", rng, func(v *T) *float32 { return &acc(v).X }),
		Quantized(name+".y", rng, func(v *T) *float32 { return &acc(v).Y }),
		Quantized(name+".z", rng, func(v *T) *float32 { return &acc(v).Z }),
	)
}

// PlanarQuantized stores only X and Z; Y decodes as 0.
func PlanarQuantized[T any](name string, rng float64, acc func(*T) *kinematic.Vector) []Field[T] {
	return concat(
		Quantized(name+".x", rng, func(v *T) *float32 { return &acc(v).X }),
		Const(name+".y", func(v *T) { acc(v).Y = 0 }),
		Quantized(name+".z", rng, func(v *T) *float32 { return &acc(v).Z }),
	)
}

// Repeat builds count groups of fields from one constructor.
func Repeat[T any](count int, build func(i int) []Field[T]) []Field[T] {
	var fields []Field[T]
	for i := 0; i < count; i++ {
		fields = append(fields, build(i)...)
	}
	return fields
}

func concat[T any](groups ...[]Field[T]) []Field[T] {
	var fields []Field[T]
	for _, g := range groups {
		fields = append(fields, g...)
	}
	return fields
}
