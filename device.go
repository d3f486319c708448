package anycap

import (
	"log/slog"
	"strings"

	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
)

// A Device is the compute backend that tensors live on.
type Device struct {
	Name    string
	Creator anyvec.Creator
}

// NewDevice selects a compute device by name.
//
// Supported names are "cpu" (float32), "cpu32", and
// "cpu64".
// Accelerators ("cuda", "gpu", "metal") are not available
// in this build; requesting one logs a warning and falls
// back to the float32 CPU device.
func NewDevice(name string, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(name) {
	case "", "cpu", "cpu32":
		return &Device{Name: "cpu32", Creator: anyvec32.DefaultCreator{}}
	case "cpu64":
		return &Device{Name: "cpu64", Creator: anyvec64.DefaultCreator{}}
	default:
		logger.Warn("requested device unavailable, falling back to cpu", "device", name)
		return &Device{Name: "cpu32", Creator: anyvec32.DefaultCreator{}}
	}
}

// Transfer returns a copy of the batch whose tensors are
// backed by the device's creator.
// If the batch is already on the device, it is returned
// as-is.
func (d *Device) Transfer(b *Batch) *Batch {
	if b.Images != nil && b.Images.Creator() == d.Creator {
		return b
	}
	res := *b
	res.Images = d.Vector(b.Images)
	res.CaptionMask = d.Vector(b.CaptionMask)
	res.CaptionEmb = d.Vector(b.CaptionEmb)
	res.ArticleMask = d.Vector(b.ArticleMask)
	res.ArticleEmb = d.Vector(b.ArticleEmb)
	return &res
}

// Vector copies v onto the device.
// A nil vector stays nil.
func (d *Device) Vector(v anyvec.Vector) anyvec.Vector {
	if v == nil {
		return nil
	}
	if v.Creator() == d.Creator {
		return v
	}
	return d.Creator.MakeVectorData(d.Creator.MakeNumericList(Float64s(v)))
}

// Float64s returns the contents of a vector as float64
// values.
//
// The vector's numeric list type must be []float32 or
// []float64.
func Float64s(v anyvec.Vector) []float64 {
	switch data := v.Data().(type) {
	case []float64:
		return data
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	default:
		panic("unsupported numeric list type")
	}
}

// Float64 converts a numeric to a float64.
//
// The numeric type must be float32 or float64.
func Float64(n anyvec.Numeric) float64 {
	switch n := n.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		panic("unsupported numeric type")
	}
}
