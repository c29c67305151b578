package codec

import "math"

const quantizeScale = 32767.0

// Quantize maps x in [-rng, rng] onto [0, 65534]. Values outside the range
// are clamped and reported.
func Quantize(x float64, rng float64) (uint16, bool) {
	clamped := false
	switch {
	case math.IsNaN(x):
		x = 0
		clamped = true
	case x > rng:
		x = rng
		clamped = true
	case x < -rng:
		x = -rng
		clamped = true
	}
	return uint16(math.Round((x/rng)*quantizeScale + quantizeScale)), clamped
}

// Dequantize is the inverse of Quantize. The unused code 65535 decodes to
// +rng.
func Dequantize(q uint16, rng float64) float64 {
	return math.Min((float64(q)-quantizeScale)/quantizeScale, 1) * rng
}

// QuantizationStep is the largest round trip error of a quantized field.
func QuantizationStep(rng float64) float64 {
	return rng / quantizeScale
}
