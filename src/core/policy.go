package main

// ProxyFeePolicy pays a proxy a fixed ratio of a settled payroll once a
// grace period has passed since the reference block
type ProxyFeePolicy struct {
	Ratio       Ratio
	GracePeriod BlockNumber
}

// Split takes the proxy cut unconditionally. cut + remainder == total.
func (p ProxyFeePolicy) Split(total Amount) (Amount, Amount) {
	cut := p.Ratio.MulFloor(total)
	return cut, total.SaturatingSub(cut)
}

// SplitChecked splits only when now is at least GracePeriod blocks past last
func (p ProxyFeePolicy) SplitChecked(total Amount, last, now BlockNumber) (Amount, Amount, bool) {
	if !p.Eligible(last, now) {
		return 0, 0, false
	}
	cut, remainder := p.Split(total)
	return cut, remainder, true
}

// Eligible reports whether the grace period after last has elapsed at now
func (p ProxyFeePolicy) Eligible(last, now BlockNumber) bool {
	deadline, err := last.CheckedAdd(p.GracePeriod)
	if err != nil {
		return false
	}
	return now >= deadline
}
