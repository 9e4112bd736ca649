package demstitch

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var resampleFallbacks = promauto.NewCounter(prometheus.CounterOpts{
	Name: "demstitch_resample_fallbacks_total",
	Help: "The total number of times a resampling strategy fell back to the next one",
})

// A ResampleMethod identifies which resampling strategy produced a result.
type ResampleMethod int

const (
	// ResampleCopy: source and target dimensions match, samples copied.
	ResampleCopy ResampleMethod = iota
	// ResampleCubic: weighted Catmull-Rom convolution.
	ResampleCubic
	// ResampleLinear: weighted tent-filter convolution.
	ResampleLinear
	// ResampleBlocks: per-cell block averaging of valid samples.
	ResampleBlocks
)

func (m ResampleMethod) String() string {
	switch m {
	case ResampleCopy:
		return "copy"
	case ResampleCubic:
		return "cubic"
	case ResampleLinear:
		return "linear"
	default:
		return "blocks"
	}
}

// Minimum fraction of valid-sample weight a resampled cell needs before
// its value is emitted instead of no-data.
const minValidCoverage = 0.1

// ResampleNaN resamples src to outW x outH without ever blending no-data
// into valid samples. The source is split into a value channel (no-data
// replaced by zero) and a validity-weight channel; both are convolved with
// the same filter and the quotient is emitted only where enough valid
// weight accumulated. Strategies are attempted in order (cubic, linear,
// block averaging); the method actually used is returned.
func ResampleNaN(src *Grid, outW, outH int) (*Grid, ResampleMethod) {
	if outW == src.Width && outH == src.Height {
		out := &Grid{Width: outW, Height: outH, Data: make([]float32, len(src.Data))}
		copy(out.Data, src.Data)
		return out, ResampleCopy
	}
	if src.ValidCount() == 0 {
		return NewGrid(outW, outH), ResampleBlocks
	}
	if out, ok := resampleWeighted(src, outW, outH, catmullRomKernel); ok {
		return out, ResampleCubic
	}
	resampleFallbacks.Inc()
	if out, ok := resampleWeighted(src, outW, outH, linearKernel); ok {
		return out, ResampleLinear
	}
	resampleFallbacks.Inc()
	return resampleBlocks(src, outW, outH), ResampleBlocks
}

// A resampleKernel is a symmetric convolution filter.
type resampleKernel struct {
	radius  float64
	minSize int
	at      func(t float64) float64
}

var catmullRomKernel = resampleKernel{
	radius:  2,
	minSize: 4,
	at: func(t float64) float64 {
		t = math.Abs(t)
		switch {
		case t < 1:
			return (1.5*t-2.5)*t*t + 1
		case t < 2:
			return ((-0.5*t+2.5)*t-4)*t + 2
		default:
			return 0
		}
	},
}

var linearKernel = resampleKernel{
	radius:  1,
	minSize: 2,
	at: func(t float64) float64 {
		t = math.Abs(t)
		if t < 1 {
			return 1 - t
		}
		return 0
	},
}

// resampleWeighted runs the separable value/weight convolution. It reports
// false when the source is too small for the kernel's support, in which
// case the caller falls back to the next strategy.
func resampleWeighted(src *Grid, outW, outH int, k resampleKernel) (*Grid, bool) {
	if outW <= 0 || outH <= 0 || src.Width < k.minSize || src.Height < k.minSize {
		return nil, false
	}

	// Source channels: value with no-data zeroed, weight 1 where valid.
	n := src.Width * src.Height
	values := make([]float64, n)
	weights := make([]float64, n)
	for i, v := range src.Data {
		if v == v {
			values[i] = float64(v)
			weights[i] = 1
		}
	}

	// Horizontal pass: src.Width x src.Height -> outW x src.Height.
	midValues := make([]float64, outW*src.Height)
	midWeights := make([]float64, outW*src.Height)
	for y := range src.Height {
		convolveLine(
			midValues[y*outW:(y+1)*outW], midWeights[y*outW:(y+1)*outW], 1,
			values[y*src.Width:(y+1)*src.Width], weights[y*src.Width:(y+1)*src.Width], 1,
			src.Width, outW, k,
		)
	}

	// Vertical pass: outW x src.Height -> outW x outH.
	outValues := make([]float64, outW*outH)
	outWeights := make([]float64, outW*outH)
	for x := range outW {
		convolveLine(
			outValues[x:], outWeights[x:], outW,
			midValues[x:], midWeights[x:], outW,
			src.Height, outH, k,
		)
	}

	out := NewGrid(outW, outH)
	for i := range outValues {
		if outWeights[i] > minValidCoverage {
			out.Data[i] = float32(outValues[i] / outWeights[i])
		}
	}
	return out, true
}

// convolveLine resamples one line of the value and weight channels from
// srcN to dstN samples. Edges are extended with the nearest sample.
func convolveLine(dstV, dstW []float64, dstStride int, srcV, srcW []float64, srcStride, srcN, dstN int, k resampleKernel) {
	scale := float64(srcN) / float64(dstN)
	filterScale := max(scale, 1)
	radius := k.radius * filterScale
	for o := range dstN {
		center := (float64(o)+0.5)*scale - 0.5
		lo := int(math.Ceil(center - radius))
		hi := int(math.Floor(center + radius))
		var sumV, sumW, sumK float64
		for i := lo; i <= hi; i++ {
			kw := k.at((float64(i) - center) / filterScale)
			if kw == 0 {
				continue
			}
			j := min(max(i, 0), srcN-1)
			sumV += kw * srcV[j*srcStride]
			sumW += kw * srcW[j*srcStride]
			sumK += kw
		}
		if sumK != 0 {
			dstV[o*dstStride] = sumV / sumK
			dstW[o*dstStride] = sumW / sumK
		}
	}
}

// resampleBlocks partitions the source into blocks mapping to each output
// cell and averages only the valid samples in each block. It preserves
// no-data boundaries exactly and handles sources of any size.
func resampleBlocks(src *Grid, outW, outH int) *Grid {
	out := NewGrid(outW, outH)
	for oy := range outH {
		y0 := oy * src.Height / outH
		y1 := max((oy+1)*src.Height/outH, y0+1)
		for ox := range outW {
			x0 := ox * src.Width / outW
			x1 := max((ox+1)*src.Width/outW, x0+1)
			var sum float64
			count := 0
			for y := y0; y < y1; y++ {
				for _, v := range src.Row(y)[x0:x1] {
					if v == v {
						sum += float64(v)
						count++
					}
				}
			}
			if count > 0 {
				out.Set(ox, oy, float32(sum/float64(count)))
			}
		}
	}
	return out
}
