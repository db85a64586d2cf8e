// Package estimation selects monocular depth estimators by method name. Inference runs
// outside this module; backends register a constructor for the methods they serve.
package estimation

import (
	"context"
	"image"
	"strings"

	"github.com/edaniels/golog"
	"github.com/mitchellh/copystructure"
	"github.com/pkg/errors"

	"go.viam.com/scenekit/rimage"
	"go.viam.com/scenekit/utils"
)

// Method names a depth estimation model.
type Method string

// Known methods.
const (
	MethodMidas           = Method("midas")
	MethodDepthAnythingV2 = Method("depth_anything_v2")
	MethodMetric3D        = Method("metric3d")
	MethodDepthPro        = Method("depth_pro")
	MethodMoGe            = Method("moge")
	// MethodConstant predicts the same depth everywhere. It is used for dry runs.
	MethodConstant = Method("constant")
)

var knownMethods = []Method{
	MethodMidas, MethodDepthAnythingV2, MethodMetric3D, MethodDepthPro, MethodMoGe, MethodConstant,
}

var (
	// ErrUnknownMethod is returned when a method name is not a known model.
	ErrUnknownMethod = errors.New("unknown depth estimation method")
	// ErrMethodUnavailable is returned when a known method has no registered backend.
	ErrMethodUnavailable = errors.New("depth estimation method not available")
)

// ParseMethod returns the method named by s, ignoring case.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range knownMethods {
		if m == known {
			return m, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownMethod, "%q", s)
}

// Config is passed to a method's constructor.
type Config struct {
	// ModelPath is the weights to load. Backends pick a default when empty.
	ModelPath string `json:"model_path"`
	// Depth is the value in meters the constant method predicts.
	Depth float32 `json:"depth"`
}

// A Predictor estimates metric depth for an image.
type Predictor interface {
	Predict(ctx context.Context, img image.Image) (*rimage.FloatDepth, error)
}

// A Constructor builds a predictor from a config.
type Constructor func(ctx context.Context, cfg Config, logger golog.Logger) (Predictor, error)

// Registration stores a method's constructor (mandatory).
type Registration struct {
	Constructor Constructor
}

var registry = map[Method]Registration{}

// Register registers a backend for a method. It panics on unknown methods, nil
// constructors and duplicate registrations.
func Register(method Method, reg Registration) {
	if _, err := ParseMethod(string(method)); err != nil {
		panic(err)
	}
	if _, old := registry[method]; old {
		panic(errors.Errorf("trying to register two depth estimators with the same method: %s", method))
	}
	if reg.Constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for depth estimator: %s", method))
	}
	registry[method] = reg
}

// Lookup returns the registration for a method, or nil if there is none.
func Lookup(method Method) *Registration {
	reg, ok := RegisteredMethods()[method]
	if !ok {
		return nil
	}
	return &reg
}

// RegisteredMethods returns a copy of the registered methods.
func RegisteredMethods() map[Method]Registration {
	copied, err := copystructure.Copy(registry)
	if err != nil {
		panic(err)
	}
	methods, ok := copied.(map[Method]Registration)
	if !ok {
		panic(utils.NewUnexpectedTypeError(methods, copied))
	}
	return methods
}

// New builds the predictor for the named method. Unknown names fail here rather than
// at prediction time.
func New(ctx context.Context, name string, cfg Config, logger golog.Logger) (Predictor, error) {
	method, err := ParseMethod(name)
	if err != nil {
		return nil, err
	}
	reg := Lookup(method)
	if reg == nil {
		return nil, errors.Wrapf(ErrMethodUnavailable, "%s", method)
	}
	logger.Debugw("creating depth estimator", "method", method, "model_path", cfg.ModelPath)
	p, err := reg.Constructor(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, utils.NewUnimplementedInterfaceError("estimation.Predictor", p)
	}
	return p, nil
}

// Estimate runs p on img. If resolution is set the image is bilinearly resized to it first; the
// prediction is resized back to the input size when resizeToInput is true.
func Estimate(ctx context.Context, p Predictor, img image.Image, resolution *image.Point, resizeToInput bool) (*rimage.FloatDepth, error) {
	input := img
	if resolution != nil {
		resized, err := rimage.ResizeImageBilinear(img, resolution.X, resolution.Y)
		if err != nil {
			return nil, err
		}
		input = resized
	}
	depth, err := p.Predict(ctx, input)
	if err != nil {
		return nil, err
	}
	if !resizeToInput {
		return depth, nil
	}
	b := img.Bounds()
	if depth.Width() == b.Dx() && depth.Height() == b.Dy() {
		return depth, nil
	}
	return depth.Resize(b.Dx(), b.Dy())
}
