// Package numeric - Flat numeric buffers backed by dense tensors.
//
// The pipeline needs exactly one array abstraction: a shaped, contiguous
// float32 buffer that can round-trip with a pixel buffer. Storage is a
// gorgonia dense tensor so shape bookkeeping and flat access stay in one
// place.
package numeric

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/crbuch/rembg-go/images"
)

// Buffer is a shaped float32 buffer with flat contiguous storage.
//
// Invariant: len(Data()) == product(Shape()). Casts back to pixel values
// clamp to [0, 255] rather than wrap.
type Buffer struct {
	dense *tensor.Dense
}

// New constructs a buffer from a shape and flat backing data.
//
// Arguments:
//   - shape: Ordered dimension sizes, all > 0.
//   - data: Flat row-major storage; its length must equal the shape product.
//
// Returns:
//   - *Buffer: The constructed buffer.
//   - error: An error if the shape and data length disagree.
func New(shape []int, data []float32) (*Buffer, error) {
	if len(shape) == 0 {
		return nil, errors.New("empty shape")
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return nil, errors.Errorf("invalid dimension %d in shape %v", d, shape)
		}
		n *= d
	}
	if len(data) != n {
		return nil, errors.Errorf("shape %v requires %d elements, got %d", shape, n, len(data))
	}
	return &Buffer{dense: tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))}, nil
}

// Shape returns the ordered dimension sizes.
func (b *Buffer) Shape() []int {
	return []int(b.dense.Shape())
}

// Dtype returns the element type of the buffer.
func (b *Buffer) Dtype() tensor.Dtype {
	return b.dense.Dtype()
}

// Data returns the flat contiguous storage.
func (b *Buffer) Data() []float32 {
	return b.dense.Data().([]float32)
}

// Len returns the number of elements.
func (b *Buffer) Len() int {
	return b.dense.DataSize()
}

// FromImage lifts a pixel buffer into an H x W x C float buffer with
// values in [0, 255].
func FromImage(img *images.Buffer) *Buffer {
	ch := img.Channels()
	data := make([]float32, len(img.Pix))
	for i, v := range img.Pix {
		data[i] = float32(v)
	}
	b, _ := New([]int{img.Height, img.Width, ch}, data)
	return b
}

// ToImage lowers the buffer back to pixels, clamping each element to an
// integer in [0, 255].
//
// Accepted shapes are H x W (grayscale), H x W x 1, H x W x 3 (RGB) and
// H x W x 4 (RGBA).
func (b *Buffer) ToImage() (*images.Buffer, error) {
	shape := b.Shape()
	var h, w, ch int
	switch len(shape) {
	case 2:
		h, w, ch = shape[0], shape[1], 1
	case 3:
		h, w, ch = shape[0], shape[1], shape[2]
	default:
		return nil, errors.Errorf("cannot interpret shape %v as an image", shape)
	}
	var mode images.Mode
	switch ch {
	case 1:
		mode = images.ModeGray
	case 3:
		mode = images.ModeRGB
	case 4:
		mode = images.ModeRGBA
	default:
		return nil, errors.Errorf("cannot interpret %d channels as a color mode", ch)
	}
	img, err := images.NewBuffer(w, h, mode)
	if err != nil {
		return nil, err
	}
	for i, v := range b.Data() {
		img.Pix[i] = ClampUint8(v)
	}
	return img, nil
}

// ClampUint8 converts a float to uint8, clamping out-of-range values
// instead of letting the conversion wrap.
func ClampUint8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
