package correlate

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// NumProducts returns the number of correlation products of nchan channels:
// every auto-correlation and every distinct pair.
func NumProducts(nchan int) int {
	return nchan * (nchan + 1) / 2
}

// Accumulator sums cross-correlation products over a fixed number of frames.
// Row k of Real and Imag holds product k in upper-triangle order
// (0,0), (0,1) ... (0,n-1), (1,1) ... (n-1,n-1); product (r,c) is
// x_c * conj(x_r) for each of the NumBins complex bins.
type Accumulator struct {
	Channels int
	Frames   int // frames per accumulation
	Real     *mat.Dense
	Imag     *mat.Dense

	Filled       int      // frames in the current accumulation
	FrameNumbers []uint32 // instrument timestamps of those frames
	FirstIndex   int      // index of the first frame in the accumulation
	FirstTime    string   // receipt time of the first frame's channel 0
	Written      int      // accumulations completed

	// Write is called with each completed accumulation, before it is reset.
	Write func(acc *Accumulator) error

	re, im  [][]float64
	scratch []float64
}

// NewAccumulator returns an Accumulator for nchan channels summing nacc frames.
func NewAccumulator(nchan, nacc int, write func(*Accumulator) error) *Accumulator {
	nprod := NumProducts(nchan)
	a := &Accumulator{
		Channels:     nchan,
		Frames:       nacc,
		Real:         mat.NewDense(nprod, NumBins, nil),
		Imag:         mat.NewDense(nprod, NumBins, nil),
		FrameNumbers: make([]uint32, 0, nacc),
		Write:        write,
		re:           make([][]float64, nchan),
		im:           make([][]float64, nchan),
		scratch:      make([]float64, NumBins),
	}
	for i := range nchan {
		a.re[i] = make([]float64, NumBins)
		a.im[i] = make([]float64, NumBins)
	}
	return a
}

// Add correlates one full frame into the current accumulation, writing and
// resetting the accumulation when it holds Frames frames.
func (a *Accumulator) Add(f *Frame) error {
	if a.Filled == 0 {
		a.FirstIndex = f.Index
		a.FirstTime = f.ReceiptTimes[0]
	}
	for ch := range a.Channels {
		for k := range NumBins {
			a.re[ch][k] = float64(f.Data[ch][2*k])
			a.im[ch][k] = float64(f.Data[ch][2*k+1])
		}
	}

	tmp := a.scratch
	row := 0
	for r := range a.Channels {
		for c := r; c < a.Channels; c++ {
			sumRe := a.Real.RawRowView(row)
			sumIm := a.Imag.RawRowView(row)
			// (a+ib)(c-id) = (ac+bd) + i(bc-ad)
			floats.MulTo(tmp, a.re[c], a.re[r])
			floats.Add(sumRe, tmp)
			floats.MulTo(tmp, a.im[c], a.im[r])
			floats.Add(sumRe, tmp)
			floats.MulTo(tmp, a.im[c], a.re[r])
			floats.Add(sumIm, tmp)
			floats.MulTo(tmp, a.re[c], a.im[r])
			floats.Sub(sumIm, tmp)
			row++
		}
	}
	a.Filled++
	a.FrameNumbers = append(a.FrameNumbers, f.Number)

	if a.Filled < a.Frames {
		return nil
	}
	if a.Write != nil {
		if err := a.Write(a); err != nil {
			return err
		}
	}
	a.Written++
	a.Reset()
	return nil
}

// Reset discards the current accumulation.
func (a *Accumulator) Reset() {
	a.Real.Zero()
	a.Imag.Zero()
	a.Filled = 0
	a.FrameNumbers = a.FrameNumbers[:0]
	a.FirstTime = ""
}

// Power returns the summed auto-correlation power of channel ch over all bins.
func (a *Accumulator) Power(ch int) float64 {
	// Auto-correlation (ch,ch) is row ch*n - ch*(ch-1)/2 in upper-triangle order.
	row := ch*a.Channels - ch*(ch-1)/2
	return floats.Sum(a.Real.RawRowView(row))
}
