package normalize

// SafeRatio divides num by den with one uniform null-propagation contract:
// the result is nil unless both operands are present and the denominator is
// strictly positive. A protocol that retains no revenue gets a nil P/E,
// never zero, negative or infinite.
func SafeRatio(num, den *float64) *float64 {
	if num == nil || den == nil || *den <= 0 {
		return nil
	}
	v := *num / *den
	return &v
}

// Spread returns a minus b, nil when either operand is nil.
func Spread(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	v := *a - *b
	return &v
}

// Scale multiplies v by factor, propagating nil.
func Scale(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v * factor
	return &out
}
