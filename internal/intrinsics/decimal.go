package intrinsics

// Decimal values are carried as an int64 mantissa with a fixed scale
// (number of fractional digits). ScaleUp/ScaleDown move a mantissa
// between scales, preserving the null sentinel untouched (spec §4.1).

// ScaleDecimalUp widens mantissa from fromScale to toScale (toScale >=
// fromScale) by multiplying by 10^(toScale-fromScale). sentinel values
// pass through unchanged.
func ScaleDecimalUp(mantissa int64, fromScale, toScale int, sentinel int64) int64 {
	if mantissa == sentinel {
		return sentinel
	}
	for i := fromScale; i < toScale; i++ {
		mantissa *= 10
	}
	return mantissa
}

// ScaleDecimalDown narrows mantissa from fromScale to toScale (toScale
// <= fromScale), rounding half-away-from-zero (never "banker's
// rounding" to even — spec §4.1).
func ScaleDecimalDown(mantissa int64, fromScale, toScale int, sentinel int64) int64 {
	if mantissa == sentinel {
		return sentinel
	}
	divisor := int64(1)
	for i := toScale; i < fromScale; i++ {
		divisor *= 10
	}
	if divisor == 1 {
		return mantissa
	}
	return roundHalfAwayFromZero(mantissa, divisor)
}

func roundHalfAwayFromZero(v, divisor int64) int64 {
	neg := v < 0
	if neg {
		v = -v
	}
	q := v / divisor
	r := v % divisor
	if 2*r >= divisor {
		q++
	}
	if neg {
		return -q
	}
	return q
}

// DecimalCeil and DecimalFloor bracket a mantissa at scale s, satisfying
// the testable property decimal_ceil(x,s) - decimal_floor(x,s) in {0,s}
// (spec §8), where s here is expressed as the scale's unit, 10^s... the
// unit used for comparison is the scale-s increment itself (1 at that
// scale, i.e. `divisor` below).
func DecimalFloor(mantissa int64, scaleDigits int) int64 {
	divisor := pow10(scaleDigits)
	if divisor == 1 {
		return mantissa
	}
	q := mantissa / divisor
	if mantissa%divisor != 0 && mantissa < 0 {
		q--
	}
	return q * divisor
}

func DecimalCeil(mantissa int64, scaleDigits int) int64 {
	divisor := pow10(scaleDigits)
	if divisor == 1 {
		return mantissa
	}
	q := mantissa / divisor
	if mantissa%divisor != 0 && mantissa > 0 {
		q++
	}
	return q * divisor
}

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
