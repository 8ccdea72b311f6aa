package ccd

import (
	"errors"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ionmd/ionmd/internal/palette"
)

// ErrNoFrames indicates that none of the detector files could be composited.
var ErrNoFrames = errors.New("ccd: no usable detector frames")

// Image is a (bins, bins, 3) float RGB image stored pixel-interleaved.
// Values are not clamped until Encode.
type Image struct {
	Bins int
	Pix  []float64
}

func NewImage(bins int) *Image {
	return &Image{Bins: bins, Pix: make([]float64, bins*bins*3)}
}

func (img *Image) offset(r, c int) int { return (r*img.Bins + c) * 3 }

// At returns channel ch (0=R, 1=G, 2=B) of pixel (r, c).
func (img *Image) At(r, c, ch int) float64 { return img.Pix[img.offset(r, c)+ch] }

func (img *Image) Clone() *Image {
	out := &Image{Bins: img.Bins, Pix: make([]float64, len(img.Pix))}
	copy(out.Pix, img.Pix)
	return out
}

// Accumulate adds o into img elementwise.
func (img *Image) Accumulate(o *Image) error {
	if o.Bins != img.Bins {
		return fmt.Errorf("ccd: cannot add %d-bin image to %d-bin image", o.Bins, img.Bins)
	}
	floats.Add(img.Pix, o.Pix)
	return nil
}

// Max is the largest channel value.
func (img *Image) Max() float64 {
	if len(img.Pix) == 0 {
		return 0
	}
	return floats.Max(img.Pix)
}

// ToChannelImage broadcasts a square intensity grid into three channels
// scaled by weights.
func ToChannelImage(grid mat.Matrix, weights palette.RGB) *Image {
	bins, _ := grid.Dims()
	img := NewImage(bins)
	w := [3]float64{weights.R, weights.G, weights.B}
	for r := 0; r < bins; r++ {
		for c := 0; c < bins; c++ {
			v := grid.At(r, c)
			o := img.offset(r, c)
			for ch := 0; ch < 3; ch++ {
				img.Pix[o+ch] = v * w[ch]
			}
		}
	}
	return img
}

// ApplyBrightness returns img with every channel multiplied by factor.
func ApplyBrightness(img *Image, factor float64) *Image {
	out := &Image{Bins: img.Bins, Pix: make([]float64, len(img.Pix))}
	floats.ScaleTo(out.Pix, factor, img.Pix)
	return out
}

// Detector names one histogram file. Index starts at 1 and selects the
// palette colour (Index-1).
type Detector struct {
	Index int
	Path  string
}

// DetectorPaths lists prefix_1.dat .. prefix_n.dat.
func DetectorPaths(prefix string, n int) []Detector {
	ds := make([]Detector, n)
	for i := range ds {
		ds[i] = Detector{Index: i + 1, Path: fmt.Sprintf("%s_%d.dat", prefix, i+1)}
	}
	return ds
}

// DetectorError records why one detector was skipped.
type DetectorError struct {
	Detector
	Err error
}

func (e *DetectorError) Error() string {
	return fmt.Sprintf("ccd: detector %d (%s): %v", e.Index, e.Path, e.Err)
}

func (e *DetectorError) Unwrap() error { return e.Err }

type Compositor struct {
	Bins    int
	Palette palette.Palette
	Log     *log.Logger
}

func NewCompositor(bins int, pal palette.Palette) *Compositor {
	return &Compositor{Bins: bins, Palette: pal, Log: log.Default()}
}

// Frame decodes and normalizes one detector into its colour channel image.
func (c *Compositor) Frame(d Detector) (*Image, error) {
	h, err := ReadHistogram(d.Path, c.Bins)
	if err != nil {
		return nil, err
	}
	grid, err := Normalize(h.Grid)
	if err != nil {
		return nil, err
	}
	return ToChannelImage(grid, c.Palette.At(d.Index-1)), nil
}

// Composite accumulates every readable detector, in ascending index order,
// into one image. Unreadable or empty detectors are skipped with a warning
// and returned in skipped; err is set only when nothing could be composited.
func (c *Compositor) Composite(detectors []Detector) (img *Image, skipped []error, err error) {
	ordered := make([]Detector, len(detectors))
	copy(ordered, detectors)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Index != ordered[j].Index {
			return ordered[i].Index < ordered[j].Index
		}
		return ordered[i].Path < ordered[j].Path
	})

	img = NewImage(c.Bins)
	used := 0
	for _, d := range ordered {
		frame, ferr := c.Frame(d)
		if ferr != nil {
			de := &DetectorError{Detector: d, Err: ferr}
			skipped = append(skipped, de)
			c.logger().Warn("skipping detector", "detector", d.Index, "path", d.Path, "err", ferr)
			continue
		}
		if err := img.Accumulate(frame); err != nil {
			return nil, skipped, err
		}
		used++
	}

	if used == 0 {
		if len(skipped) == 0 {
			return nil, nil, ErrNoFrames
		}
		return nil, skipped, fmt.Errorf("%w: %w", ErrNoFrames, errors.Join(skipped...))
	}
	return img, skipped, nil
}

func (c *Compositor) logger() *log.Logger {
	if c.Log == nil {
		return log.Default()
	}
	return c.Log
}
