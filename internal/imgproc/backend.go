package imgproc

import "fmt"

// Interpolation selects the resampling kernel.
type Interpolation int

const (
	Nearest Interpolation = iota
	Linear
)

// BorderKind selects how pixels outside the source are synthesized.
type BorderKind int

const (
	BorderConstant BorderKind = iota
	// BorderReflect101 mirrors without repeating the edge pixel: dcb|abcd|cba.
	BorderReflect101
	// BorderReplicate repeats the edge pixel: aaa|abcd|ddd.
	BorderReplicate
)

// Border is a tagged border policy. Value is only meaningful for
// BorderConstant and holds one fill value per channel; missing channels fill
// with zero.
type Border struct {
	Value []float64
	Kind  BorderKind
}

// Constant returns a constant-fill border policy.
func Constant(values ...float64) Border {
	return Border{Kind: BorderConstant, Value: values}
}

// Reflect returns the reflect-101 border policy.
func Reflect() Border { return Border{Kind: BorderReflect101} }

func (b Border) fill(c int) float64 {
	if c < len(b.Value) {
		return b.Value[c]
	}
	return 0
}

func (b Border) String() string {
	switch b.Kind {
	case BorderConstant:
		return fmt.Sprintf("constant%v", b.Value)
	case BorderReflect101:
		return "reflect101"
	case BorderReplicate:
		return "replicate"
	default:
		return "unknown"
	}
}

// BlurKind selects a smoothing filter.
type BlurKind int

const (
	Gaussian BlurKind = iota
	BoxBlur
	Median
	// BoxFilter is a normalized box filter whose window may be even-sized;
	// the anchor sits at ksize/2.
	BoxFilter
)

var blurNames = [...]string{
	Gaussian:  "gaussian",
	BoxBlur:   "box-blur",
	Median:    "median",
	BoxFilter: "box-filter",
}

func (k BlurKind) String() string {
	if int(k) < len(blurNames) {
		return blurNames[k]
	}
	return "unknown"
}

// Backend is the set of pixel operations the augmentation engine needs.
// Implementations must not modify src and must preserve src.Depth.
type Backend interface {
	// Resize resamples src to rows×cols.
	Resize(src *Mat, rows, cols int, interp Interpolation) *Mat
	// WarpAffine maps src through the forward transform m into a rows×cols canvas.
	WarpAffine(src *Mat, m Affine, rows, cols int, interp Interpolation, border Border) *Mat
	// Blur smooths src with a ksize×ksize window.
	Blur(src *Mat, kind BlurKind, ksize int) *Mat
	// CopyMakeBorder grows src by the given margins.
	CopyMakeBorder(src *Mat, top, bottom, left, right int, border Border) *Mat
}
