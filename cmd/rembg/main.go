// Command rembg removes the background from an image or video file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/crbuch/rembg-go/inference"
	"github.com/crbuch/rembg-go/pipeline"
	"github.com/crbuch/rembg-go/profiler"
	"github.com/crbuch/rembg-go/video"
)

func main() {
	var (
		model     = flag.String("model", pipeline.DefaultModel, "model name (see -list-models)")
		input     = flag.String("i", "", "input image path")
		output    = flag.String("o", "", "output PNG path")
		videoIn   = flag.String("video-in", "", "input video path (video mode)")
		videoOut  = flag.String("video-out", "", "output video path (video mode)")
		matting   = flag.Bool("alpha-matting", false, "refine the mask with alpha matting")
		fg        = flag.Uint("fg", 240, "foreground threshold")
		bg        = flag.Uint("bg", 10, "background threshold")
		erode     = flag.Int("erode", 10, "trimap erode size")
		onlyMask  = flag.Bool("only-mask", false, "output the mask instead of a cutout")
		postMask  = flag.Bool("post-process-mask", false, "binarize and smooth the mask before use")
		cacheDir  = flag.String("cache", "", "model cache directory (default: user cache dir)")
		profile   = flag.Bool("profile", false, "log per-phase timings after processing")
		download  = flag.String("download", "", "comma-separated model names to pre-fetch, then exit")
		listNames = flag.Bool("list-models", false, "print registered model names and exit")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)
	ctx := context.Background()

	if *listNames {
		for _, name := range inference.Names() {
			fmt.Println(name)
		}
		return
	}

	var store *inference.Store
	if *cacheDir != "" {
		store = inference.NewStore(*cacheDir)
	}

	if *download != "" {
		if store == nil {
			store = inference.NewStore(".models")
		}
		names := strings.Split(*download, ",")
		if err := store.DownloadModels(ctx, names); err != nil {
			logger.Error("download failed", "error", err)
			os.Exit(1)
		}
		return
	}

	opts := pipeline.Options{
		Model:               *model,
		AlphaMatting:        *matting,
		ForegroundThreshold: uint8(*fg),
		BackgroundThreshold: uint8(*bg),
		ErodeSize:           *erode,
		OnlyMask:            *onlyMask,
		PostProcessMask:     *postMask,
		Logger:              logger,
	}
	if *profile {
		opts.Profiler = profiler.New(profiler.WithLogger(logger))
		defer opts.Profiler.Report()
	}

	sessionOpts := []inference.SessionOption{
		inference.WithProgress(func(loaded, total int64) {
			if total > 0 {
				fmt.Fprintf(os.Stderr, "\rdownloading model: %d/%d bytes", loaded, total)
			}
		}),
	}
	if store != nil {
		sessionOpts = append(sessionOpts, inference.WithStore(store))
	}
	session, err := inference.NewSession(*model, sessionOpts...)
	if err != nil {
		logger.Error("creating session", "error", err)
		os.Exit(1)
	}
	defer session.Close()
	opts.Session = session

	if *videoIn != "" {
		if *videoOut == "" {
			logger.Error("-video-out is required with -video-in")
			os.Exit(1)
		}
		fc := video.NewGoCVCollaborator(*videoIn, *videoOut)
		onProgress := func(stage string) video.Progress {
			return func(done, total int) {
				fmt.Fprintf(os.Stderr, "\r%s: %d frames", stage, done)
			}
		}
		handle, err := video.RemoveVideo(ctx, fc, opts, onProgress("extracting"), onProgress("assembling"))
		if err != nil {
			logger.Error("video processing failed", "error", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr)
		fmt.Println(handle)
		return
	}

	if *input == "" || *output == "" {
		flag.Usage()
		os.Exit(2)
	}
	data, err := os.ReadFile(*input)
	if err != nil {
		logger.Error("reading input", "error", err)
		os.Exit(1)
	}
	opts.ForceBytes = true
	result, err := pipeline.RemoveOne(ctx, pipeline.BytesInput(data), opts)
	if err != nil {
		logger.Error("background removal failed", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*output, result.Bytes, 0o644); err != nil {
		logger.Error("writing output", "error", err)
		os.Exit(1)
	}
}
