package video

import (
	"context"
	"image"

	"github.com/nvr-ai/go-lpr/pipeline"
)

// FileOpener opens path as a pipeline source.
func FileOpener(path string) pipeline.SourceOpener {
	return func(ctx context.Context) (pipeline.Source, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := OpenSource(path)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}

// FileSinkFactory writes the annotated video to path.
func FileSinkFactory(path string) pipeline.SinkFactory {
	return func(ctx context.Context, fps float64, size image.Point) (pipeline.Sink, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sink, err := CreateSink(path, fps, size)
		if err != nil {
			return nil, err
		}
		return sink, nil
	}
}
