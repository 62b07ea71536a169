// Package pipeline - Batch orchestration for background removal.
package pipeline

import (
	"fmt"

	"github.com/crbuch/rembg-go/images"
	"github.com/crbuch/rembg-go/numeric"
)

// Kind tags the representation of a pipeline input or output. The tag is
// assigned once at the call boundary; nothing downstream sniffs shapes to
// guess a representation.
type Kind int

const (
	// KindBytes is an encoded image (PNG on output).
	KindBytes Kind = iota + 1
	// KindImage is a decoded pixel buffer.
	KindImage
	// KindNumeric is a shaped float buffer.
	KindNumeric
)

func (k Kind) String() string {
	switch k {
	case KindBytes:
		return "bytes"
	case KindImage:
		return "image"
	case KindNumeric:
		return "numeric"
	}
	return "invalid"
}

// Input is one batch item in its caller-supplied representation.
type Input struct {
	kind    Kind
	bytes   []byte
	image   *images.Buffer
	numeric *numeric.Buffer
}

// BytesInput wraps encoded image bytes.
func BytesInput(data []byte) Input {
	return Input{kind: KindBytes, bytes: data}
}

// ImageInput wraps a decoded pixel buffer.
func ImageInput(img *images.Buffer) Input {
	return Input{kind: KindImage, image: img}
}

// NumericInput wraps a shaped float buffer.
func NumericInput(buf *numeric.Buffer) Input {
	return Input{kind: KindNumeric, numeric: buf}
}

// Kind returns the representation tag of the input.
func (in Input) Kind() Kind { return in.kind }

// Output is one processed result in the representation fixed for its
// input at enqueue time. Exactly one field matching Kind is populated.
type Output struct {
	// Kind is the representation of the result.
	Kind Kind
	// Bytes is the PNG-encoded result when Kind is KindBytes.
	Bytes []byte
	// Image is the pixel buffer result when Kind is KindImage.
	Image *images.Buffer
	// Numeric is the float buffer result when Kind is KindNumeric.
	Numeric *numeric.Buffer
}

// UnsupportedInputError reports a batch item that is neither bytes, an
// image buffer, nor a numeric buffer. It fails the whole batch: output
// arity must stay consistent with input arity, so a bad item is never
// silently skipped.
type UnsupportedInputError struct {
	// Index is the position of the offending item in the batch.
	Index int
}

func (e *UnsupportedInputError) Error() string {
	return fmt.Sprintf("unsupported input at index %d: not bytes, image buffer, or numeric buffer", e.Index)
}
