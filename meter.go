package anycap

import "math"

// An AverageMeter keeps a running weighted average of a
// scalar, such as a loss or a timing.
type AverageMeter struct {
	Val   float64
	Sum   float64
	Count float64
}

// Update records a value with the given weight.
func (a *AverageMeter) Update(val, weight float64) {
	a.Val = val
	a.Sum += val * weight
	a.Count += weight
}

// Avg returns the weighted average so far.
// It is 0 if nothing has been recorded.
func (a *AverageMeter) Avg() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.Sum / a.Count
}

// Perplexity treats the average as a cross-entropy loss
// and exponentiates it.
func (a *AverageMeter) Perplexity() float64 {
	return math.Exp(a.Avg())
}

// Reset clears the meter.
func (a *AverageMeter) Reset() {
	*a = AverageMeter{}
}
