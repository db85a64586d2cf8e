package estimation

import (
	"context"
	"image"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"go.viam.com/scenekit/rimage"
)

func init() {
	Register(MethodConstant, Registration{
		Constructor: func(ctx context.Context, cfg Config, logger golog.Logger) (Predictor, error) {
			if cfg.Depth < 0 {
				return nil, errors.Errorf("constant depth cannot be negative, got %v", cfg.Depth)
			}
			depth := cfg.Depth
			if depth == 0 {
				depth = 1
			}
			return &constantPredictor{depth: depth}, nil
		},
	})
}

type constantPredictor struct {
	depth float32
}

func (c *constantPredictor) Predict(ctx context.Context, img image.Image) (*rimage.FloatDepth, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, errors.New("cannot estimate depth of an empty image")
	}
	fd := rimage.NewFloatDepth(b.Dx(), b.Dy())
	data := fd.Data()
	for i := range data {
		data[i] = c.depth
	}
	return fd, nil
}
