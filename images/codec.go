// Package images - Decode and encode between raw bytes and Buffers.
package images

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"
)

// Decode parses encoded image bytes (PNG, JPEG, GIF or WebP) into a
// Buffer. Grayscale sources decode to single-channel buffers; everything
// else decodes to RGBA, with an opaque alpha channel when the source had
// none.
//
// Arguments:
//   - data: The encoded image bytes.
//
// Returns:
//   - *Buffer: The decoded pixel buffer.
//   - error: An error if the bytes are empty or not a supported format.
func Decode(data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decoding image")
	}
	return FromImage(img), nil
}

// FromImage converts a stdlib image.Image into a Buffer.
func FromImage(img image.Image) *Buffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	switch src := img.(type) {
	case *image.Gray:
		out := &Buffer{Width: w, Height: h, Mode: ModeGray, Pix: make([]uint8, w*h)}
		for y := 0; y < h; y++ {
			copy(out.Pix[y*w:(y+1)*w], src.Pix[y*src.Stride:y*src.Stride+w])
		}
		return out
	case *image.NRGBA:
		out := &Buffer{Width: w, Height: h, Mode: ModeRGBA, Pix: make([]uint8, w*h*4)}
		for y := 0; y < h; y++ {
			copy(out.Pix[y*w*4:(y+1)*w*4], src.Pix[y*src.Stride:y*src.Stride+w*4])
		}
		return out
	}

	out := &Buffer{Width: w, Height: h, Mode: ModeRGBA, Pix: make([]uint8, w*h*4)}
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.Pix[i] = c.R
			out.Pix[i+1] = c.G
			out.Pix[i+2] = c.B
			out.Pix[i+3] = c.A
			i += 4
		}
	}
	return out
}

// ToImage converts a Buffer back into a stdlib image.Image.
func (b *Buffer) ToImage() image.Image {
	rect := image.Rect(0, 0, b.Width, b.Height)
	switch b.Mode {
	case ModeGray:
		img := image.NewGray(rect)
		copy(img.Pix, b.Pix)
		return img
	case ModeRGBA:
		img := image.NewNRGBA(rect)
		copy(img.Pix, b.Pix)
		return img
	default:
		img := image.NewNRGBA(rect)
		for p := 0; p < b.Width*b.Height; p++ {
			img.Pix[p*4] = b.Pix[p*3]
			img.Pix[p*4+1] = b.Pix[p*3+1]
			img.Pix[p*4+2] = b.Pix[p*3+2]
			img.Pix[p*4+3] = 255
		}
		return img
	}
}

// EncodePNG encodes the buffer as PNG bytes. PNG is the only output
// encoding: it is lossless and carries the alpha channel of a cutout.
func (b *Buffer) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, b.ToImage()); err != nil {
		return nil, errors.Wrap(err, "encoding png")
	}
	return buf.Bytes(), nil
}
