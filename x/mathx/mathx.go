package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// InRange reports lo <= v && v <= hi.
func InRange[T constraints.Ordered](v, lo, hi T) bool {
	return v >= lo && v <= hi
}

// Widen scales an n-bit sample to the full 16-bit range by repeating its
// bit pattern, so 0 maps to 0 and the native maximum maps to 0xFFFF.
func Widen(v uint16, bits uint8) uint16 {
	if bits == 0 || bits >= 16 {
		return v
	}
	v &= 1<<bits - 1
	out := uint32(0)
	for shift := int(16 - bits); ; shift -= int(bits) {
		if shift >= 0 {
			out |= uint32(v) << uint(shift)
		} else {
			out |= uint32(v) >> uint(-shift)
			break
		}
		if shift == 0 {
			break
		}
	}
	return uint16(out)
}

// Narrow drops a 16-bit value to bits of resolution.
func Narrow(v uint16, bits uint8) uint16 {
	if bits == 0 || bits >= 16 {
		return v
	}
	return v >> (16 - bits)
}

// ScaleU8 multiplies a channel byte by f in [0,1], truncating.
func ScaleU8(c uint8, f float64) uint8 {
	return uint8(float64(c) * f)
}

// MulDiv returns a*b/c with a 64-bit intermediate. c == 0 yields 0.
func MulDiv[T constraints.Unsigned](a, b, c T) T {
	if c == 0 {
		return 0
	}
	return T(uint64(a) * uint64(b) / uint64(c))
}
