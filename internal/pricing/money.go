package pricing

// Money represents a monetary value stored in minor units (centavos).
type Money = int64

// PercentBps applies a basis-point percentage to an amount. 500 bps == 5%.
func PercentBps(amount Money, bps int64) Money {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return (amount * bps) / 10000
}

// Floor0 clamps a value at zero.
func Floor0(v Money) Money {
	if v < 0 {
		return 0
	}
	return v
}

// SplitEven divides a total into n parts that always sum back to the total.
// Integer division drops the remainder; the remainder is added to the first
// part so the same inputs always produce the same split.
func SplitEven(total Money, n int) []Money {
	if n <= 0 {
		return nil
	}
	if total < 0 {
		total = 0
	}
	each := total / Money(n)
	parts := make([]Money, n)
	for i := range parts {
		parts[i] = each
	}
	parts[0] += total - each*Money(n)
	return parts
}
