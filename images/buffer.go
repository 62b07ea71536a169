// Package images - Minimal pixel-buffer abstraction for the removal pipeline.
package images

import (
	"fmt"
)

// Mode identifies the color layout of a Buffer.
type Mode string

const (
	// ModeGray is single-channel grayscale, one byte per pixel.
	ModeGray Mode = "gray"
	// ModeRGB is three-channel color, three bytes per pixel.
	ModeRGB Mode = "rgb"
	// ModeRGBA is four-channel color with alpha, four bytes per pixel.
	ModeRGBA Mode = "rgba"
)

// Channels returns the number of bytes per pixel for the mode.
func (m Mode) Channels() int {
	switch m {
	case ModeGray:
		return 1
	case ModeRGB:
		return 3
	case ModeRGBA:
		return 4
	}
	return 0
}

// Buffer is a flat, row-major pixel buffer with an explicit color mode.
//
// Pix holds Width*Height*Mode.Channels() bytes. The zero value is not
// usable; construct buffers with NewBuffer or one of the decode helpers.
type Buffer struct {
	// Width of the image in pixels.
	Width int
	// Height of the image in pixels.
	Height int
	// Mode is the color layout of Pix.
	Mode Mode
	// Pix is the flat pixel storage, row-major, channel-interleaved.
	Pix []uint8
}

// NewBuffer allocates a zeroed buffer of the given dimensions and mode.
//
// Arguments:
//   - width: Image width in pixels, must be > 0.
//   - height: Image height in pixels, must be > 0.
//   - mode: Color layout of the buffer.
//
// Returns:
//   - *Buffer: The allocated buffer.
//   - error: An error if the dimensions or mode are invalid.
func NewBuffer(width, height int, mode Mode) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions: %dx%d", width, height)
	}
	ch := mode.Channels()
	if ch == 0 {
		return nil, fmt.Errorf("unsupported color mode: %q", mode)
	}
	return &Buffer{
		Width:  width,
		Height: height,
		Mode:   mode,
		Pix:    make([]uint8, width*height*ch),
	}, nil
}

// Channels returns the number of bytes per pixel of the buffer.
func (b *Buffer) Channels() int { return b.Mode.Channels() }

// Offset returns the index into Pix of the first channel of pixel (x, y).
func (b *Buffer) Offset(x, y int) int {
	return (y*b.Width + x) * b.Channels()
}

// GrayAt returns the single-channel value at (x, y).
//
// For RGB/RGBA buffers it returns the BT.601 luma of the pixel, matching
// the grayscale conversion used elsewhere in the package.
func (b *Buffer) GrayAt(x, y int) uint8 {
	i := b.Offset(x, y)
	switch b.Mode {
	case ModeGray:
		return b.Pix[i]
	default:
		r := float32(b.Pix[i])
		g := float32(b.Pix[i+1])
		bl := float32(b.Pix[i+2])
		return clampUint8(0.299*r + 0.587*g + 0.114*bl)
	}
}

// Convert returns a copy of the buffer in the requested mode.
//
// Gray expands to repeated channels, RGB gains an opaque alpha channel,
// and RGBA drops alpha when narrowing. Converting to the current mode
// still copies, so callers may mutate the result freely.
func (b *Buffer) Convert(mode Mode) (*Buffer, error) {
	out, err := NewBuffer(b.Width, b.Height, mode)
	if err != nil {
		return nil, err
	}
	if mode == b.Mode {
		copy(out.Pix, b.Pix)
		return out, nil
	}
	src := b.Channels()
	dst := out.Channels()
	n := b.Width * b.Height
	for p := 0; p < n; p++ {
		si := p * src
		di := p * dst
		switch b.Mode {
		case ModeGray:
			v := b.Pix[si]
			out.Pix[di] = v
			if dst >= 3 {
				out.Pix[di+1] = v
				out.Pix[di+2] = v
			}
		default:
			out.Pix[di] = b.Pix[si]
			if dst >= 3 {
				out.Pix[di+1] = b.Pix[si+1]
				out.Pix[di+2] = b.Pix[si+2]
			} else {
				out.Pix[di] = b.GrayAt(p%b.Width, p/b.Width)
			}
		}
		if dst == 4 {
			if src == 4 {
				out.Pix[di+3] = b.Pix[si+3]
			} else {
				out.Pix[di+3] = 255
			}
		}
	}
	return out, nil
}

// Clone returns a deep copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	pix := make([]uint8, len(b.Pix))
	copy(pix, b.Pix)
	return &Buffer{Width: b.Width, Height: b.Height, Mode: b.Mode, Pix: pix}
}

// StackVertical stacks buffers top to bottom into a single RGBA buffer.
//
// All buffers must share the same width. Used when one source image yields
// multiple cutouts and the result must stay a single image.
func StackVertical(bufs []*Buffer) (*Buffer, error) {
	if len(bufs) == 0 {
		return nil, fmt.Errorf("no buffers to stack")
	}
	if len(bufs) == 1 {
		return bufs[0].Convert(ModeRGBA)
	}
	width := bufs[0].Width
	height := 0
	for _, b := range bufs {
		if b.Width != width {
			return nil, fmt.Errorf("stack width mismatch: %d != %d", b.Width, width)
		}
		height += b.Height
	}
	out, err := NewBuffer(width, height, ModeRGBA)
	if err != nil {
		return nil, err
	}
	row := 0
	for _, b := range bufs {
		rgba, err := b.Convert(ModeRGBA)
		if err != nil {
			return nil, err
		}
		copy(out.Pix[out.Offset(0, row):], rgba.Pix)
		row += b.Height
	}
	return out, nil
}

func clampUint8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
