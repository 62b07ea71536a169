package pipeline

import (
	"context"

	"github.com/crbuch/rembg-go/images"
	"github.com/crbuch/rembg-go/inference"
	"github.com/crbuch/rembg-go/matting"
	"github.com/crbuch/rembg-go/numeric"
)

// Remove drives a batch of inputs through decode, segmentation,
// compositing and encoding in four strict phases over the whole batch:
//
//  1. Decode every input and record its output representation.
//  2. Predict masks for the whole batch in input order and resize each
//     mask to its source dimensions.
//  3. Per image and mask: optionally post-process the mask, then either
//     keep the mask (OnlyMask), run the matting composite
//     (AlphaMatting), or assign the mask as the alpha channel.
//  4. Stack multi-mask results vertically and encode each item into its
//     requested representation.
//
// No item enters a phase while any item is still in the previous one;
// that is what makes batched inference and amortized session warm-up
// possible. Output arity mirrors input arity: index i of the result is
// input i, always.
//
// A failure rejects the whole call with no partial output, except
// estimator failures inside the matting engine, which degrade the
// affected item to a plain cutout.
func Remove(ctx context.Context, inputs []Input, opts Options) ([]Output, error) {
	session := opts.Session
	if session == nil {
		model := opts.Model
		if model == "" {
			model = DefaultModel
		}
		var err error
		session, err = inference.NewSession(model, opts.SessionOptions...)
		if err != nil {
			return nil, err
		}
		// The call owns this session, so it must release the runner's
		// backend resources before returning.
		defer session.Close()
	}

	track := func(string) func() { return func() {} }
	if opts.Profiler != nil {
		track = opts.Profiler.Track
	}

	// Phase 1: decode.
	stop := track("decode")
	decoded := make([]*images.Buffer, len(inputs))
	kinds := make([]Kind, len(inputs))
	for i, in := range inputs {
		img, err := decodeInput(i, in)
		if err != nil {
			return nil, err
		}
		decoded[i] = img
		kinds[i] = in.kind
		if opts.ForceBytes {
			kinds[i] = KindBytes
		}
	}

	stop()

	// Phase 2: batched inference. Masks come back at source dimensions.
	stop = track("predict")
	maskSets, err := session.PredictBatch(ctx, decoded)
	if err != nil {
		return nil, err
	}
	stop()

	// Phase 3: mask handling and compositing.
	stop = track("composite")
	var engine *matting.Engine
	if opts.AlphaMatting {
		engine = opts.Engine
		if engine == nil {
			engine = matting.NewEngine(matting.WithEngineLogger(opts.logger()))
		}
	}
	composited := make([][]*images.Buffer, len(decoded))
	for i, img := range decoded {
		results := make([]*images.Buffer, 0, len(maskSets[i]))
		for _, mask := range maskSets[i] {
			if opts.PostProcessMask {
				mask = PostProcessMask(mask)
			}
			var result *images.Buffer
			switch {
			case opts.OnlyMask:
				result = mask
			case opts.AlphaMatting:
				result, err = engine.Cutout(img, mask, opts.matting())
			default:
				result, err = matting.RawMaskCutout(img, mask)
			}
			if err != nil {
				return nil, err
			}
			results = append(results, result)
		}
		composited[i] = results
	}
	stop()

	// Phase 4: stack and encode.
	stop = track("encode")
	outputs := make([]Output, len(composited))
	for i, results := range composited {
		final := results[0]
		if len(results) > 1 {
			final, err = images.StackVertical(results)
			if err != nil {
				return nil, err
			}
		}
		out, err := encodeOutput(kinds[i], final)
		if err != nil {
			return nil, err
		}
		outputs[i] = out
	}
	stop()
	return outputs, nil
}

// RemoveOne processes a single input. The output representation matches
// the input's, honoring ForceBytes like the batch form.
func RemoveOne(ctx context.Context, input Input, opts Options) (Output, error) {
	outputs, err := Remove(ctx, []Input{input}, opts)
	if err != nil {
		return Output{}, err
	}
	return outputs[0], nil
}

func decodeInput(index int, in Input) (*images.Buffer, error) {
	switch in.kind {
	case KindBytes:
		if in.bytes == nil {
			return nil, &UnsupportedInputError{Index: index}
		}
		return images.Decode(in.bytes)
	case KindImage:
		if in.image == nil {
			return nil, &UnsupportedInputError{Index: index}
		}
		return in.image, nil
	case KindNumeric:
		if in.numeric == nil {
			return nil, &UnsupportedInputError{Index: index}
		}
		return in.numeric.ToImage()
	default:
		return nil, &UnsupportedInputError{Index: index}
	}
}

func encodeOutput(kind Kind, result *images.Buffer) (Output, error) {
	switch kind {
	case KindBytes:
		data, err := result.EncodePNG()
		if err != nil {
			return Output{}, err
		}
		return Output{Kind: KindBytes, Bytes: data}, nil
	case KindNumeric:
		return Output{Kind: KindNumeric, Numeric: numeric.FromImage(result)}, nil
	default:
		return Output{Kind: KindImage, Image: result}, nil
	}
}
