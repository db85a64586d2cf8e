// Package scannetpp reads ScanNet++ iPhone captures: the split depth stream, the RGB and
// mask videos and the aligned scene mesh.
package scannetpp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/edaniels/golog"
	"github.com/klauspost/compress/flate"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"

	"go.viam.com/scenekit/rimage"
)

// Frame size of the iPhone depth sensor.
const (
	DefaultDepthHeight = 192
	DefaultDepthWidth  = 256
	// DefaultMaxFrames caps a capture at a little under six minutes of 60 Hz depth.
	DefaultMaxFrames = 20000
)

var (
	// ErrCorruptFrame is returned when a per-frame payload cannot be decoded or the
	// stream ends inside a frame.
	ErrCorruptFrame = errors.New("corrupt depth frame")
	// ErrTooManyFrames is returned when a stream holds more frames than allowed.
	ErrTooManyFrames = errors.New("depth stream exceeds frame limit")
)

// NewCorruptFrameError is used when frame cannot be decoded. size is the payload size.
func NewCorruptFrameError(frame, size int, reason string) error {
	return errors.Wrapf(ErrCorruptFrame, "frame %d (%d byte payload): %s", frame, size, reason)
}

// Scheme is how a depth stream was compressed.
type Scheme int

const (
	// SchemeWholeStream is one raw deflate stream of float32 frames in meters.
	SchemeWholeStream Scheme = iota
	// SchemePerFrame is a sequence of length prefixed, independently compressed frames.
	SchemePerFrame
)

func (s Scheme) String() string {
	switch s {
	case SchemeWholeStream:
		return "whole_stream"
	case SchemePerFrame:
		return "per_frame"
	default:
		return fmt.Sprintf("Scheme(%d)", int(s))
	}
}

// DepthStreamOptions describe the frames inside a stream.
type DepthStreamOptions struct {
	Height int
	Width  int
	// SampleRate emits only frames whose id is a multiple of it.
	SampleRate int
	// MaxFrames bounds how many frames the stream may hold. Zero means no bound.
	MaxFrames int
}

// DefaultDepthStreamOptions returns the options for the iPhone rig.
func DefaultDepthStreamOptions() DepthStreamOptions {
	return DepthStreamOptions{Height: DefaultDepthHeight, Width: DefaultDepthWidth, SampleRate: 1, MaxFrames: DefaultMaxFrames}
}

func (o DepthStreamOptions) validate() error {
	if o.Height <= 0 || o.Width <= 0 {
		return errors.Errorf("depth frame size must be positive, got %dx%d", o.Width, o.Height)
	}
	if o.SampleRate <= 0 {
		return errors.Errorf("sample rate must be positive, got %d", o.SampleRate)
	}
	if o.MaxFrames < 0 {
		return errors.Errorf("max frames cannot be negative, got %d", o.MaxFrames)
	}
	return nil
}

func (o DepthStreamOptions) pixels() int {
	return o.Height * o.Width
}

// EmitFunc receives each sampled frame in millimeters.
type EmitFunc func(frameID int, dm *rimage.DepthMap) error

// DepthStreamInfo reports how a stream was decoded.
type DepthStreamInfo struct {
	Scheme Scheme
	// Frames is the number of frames in the stream, sampled or not.
	Frames int
	// Emitted is the number of frames passed to the emit function.
	Emitted int
	// Codecs counts the per-frame codec that decoded each emitted frame.
	Codecs map[string]int
}

// DecodeDepthStream decodes a depth.bin stream. The whole buffer is first inflated as
// one raw deflate stream of float32 frames; if that fails it is read as length prefixed
// frames, each decoded by the first codec in frameCodecs that accepts it.
func DecodeDepthStream(data []byte, opts DepthStreamOptions, emit EmitFunc) (*DepthStreamInfo, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	frames, ok, err := inflateWholeStream(data, opts)
	if err != nil {
		return nil, err
	}
	if ok {
		return emitWholeStream(frames, opts, emit)
	}
	return decodePerFrame(data, opts, emit)
}

// inflateWholeStream returns the float frames if data is a single raw deflate stream.
func inflateWholeStream(data []byte, opts DepthStreamOptions) ([]byte, bool, error) {
	frameBytes := int64(opts.pixels()) * 4
	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close() //nolint:errcheck
	var r io.Reader = fr
	limit := int64(-1)
	if opts.MaxFrames > 0 {
		limit = int64(opts.MaxFrames) * frameBytes
		r = io.LimitReader(fr, limit+1)
	}
	inflated, err := io.ReadAll(r)
	if err != nil {
		return nil, false, nil
	}
	size := int64(len(inflated))
	if limit >= 0 && size > limit {
		return nil, false, errors.Wrapf(ErrTooManyFrames, "stream inflates past %d frames", opts.MaxFrames)
	}
	if size == 0 || size%frameBytes != 0 {
		return nil, false, nil
	}
	return inflated, true, nil
}

func emitWholeStream(inflated []byte, opts DepthStreamOptions, emit EmitFunc) (*DepthStreamInfo, error) {
	frameBytes := opts.pixels() * 4
	info := &DepthStreamInfo{Scheme: SchemeWholeStream, Frames: len(inflated) / frameBytes}
	for id := 0; id < info.Frames; id += opts.SampleRate {
		dm, err := floatFrame(inflated[id*frameBytes:(id+1)*frameBytes], opts)
		if err != nil {
			return nil, err
		}
		if err := emit(id, dm); err != nil {
			return nil, err
		}
		info.Emitted++
	}
	return info, nil
}

func decodePerFrame(data []byte, opts DepthStreamOptions, emit EmitFunc) (*DepthStreamInfo, error) {
	info := &DepthStreamInfo{Scheme: SchemePerFrame, Codecs: map[string]int{}}
	offset := 0
	for id := 0; offset < len(data); id++ {
		if opts.MaxFrames > 0 && id >= opts.MaxFrames {
			return nil, errors.Wrapf(ErrTooManyFrames, "stream has more than %d frames", opts.MaxFrames)
		}
		if len(data)-offset < 4 {
			return nil, NewCorruptFrameError(id, len(data)-offset, "truncated length prefix")
		}
		size := int(binary.LittleEndian.Uint32(data[offset:]))
		offset += 4
		if size > len(data)-offset {
			return nil, NewCorruptFrameError(id, size, fmt.Sprintf("only %d bytes remain", len(data)-offset))
		}
		payload := data[offset : offset+size]
		offset += size
		info.Frames++
		if id%opts.SampleRate != 0 {
			continue
		}

		dm, codec := decodeFrame(payload, opts)
		if dm == nil {
			return nil, NewCorruptFrameError(id, size, "no codec could decode it")
		}
		if err := emit(id, dm); err != nil {
			return nil, err
		}
		info.Codecs[codec]++
		info.Emitted++
	}
	return info, nil
}

// frameCodec decodes one payload, reporting false if the payload is not in its format.
type frameCodec struct {
	name   string
	decode func(payload []byte, opts DepthStreamOptions) (*rimage.DepthMap, bool)
}

// frameCodecs are tried in order on each per-frame payload.
var frameCodecs = []frameCodec{
	{name: "lz4", decode: decodeLZ4Frame},
	{name: "deflate", decode: decodeDeflateFrame},
}

func decodeFrame(payload []byte, opts DepthStreamOptions) (*rimage.DepthMap, string) {
	for _, c := range frameCodecs {
		if dm, ok := c.decode(payload, opts); ok {
			return dm, c.name
		}
	}
	return nil, ""
}

// decodeLZ4Frame reads an LZ4 block of uint16 millimeters.
func decodeLZ4Frame(payload []byte, opts DepthStreamOptions) (*rimage.DepthMap, bool) {
	if len(payload) == 0 {
		return nil, false
	}
	raw := make([]byte, opts.pixels()*2)
	n, err := lz4.UncompressBlock(payload, raw)
	if err != nil || n != len(raw) {
		return nil, false
	}
	dm, err := rimage.NewDepthMapFromBytes(opts.Width, opts.Height, raw)
	if err != nil {
		return nil, false
	}
	return dm, true
}

// decodeDeflateFrame reads a raw deflate stream of float32 meters.
func decodeDeflateFrame(payload []byte, opts DepthStreamOptions) (*rimage.DepthMap, bool) {
	want := opts.pixels() * 4
	fr := flate.NewReader(bytes.NewReader(payload))
	defer fr.Close() //nolint:errcheck
	raw, err := io.ReadAll(io.LimitReader(fr, int64(want)+1))
	if err != nil || len(raw) != want {
		return nil, false
	}
	dm, err := floatFrame(raw, opts)
	if err != nil {
		return nil, false
	}
	return dm, true
}

// floatFrame converts little endian float32 meters to millimeters.
func floatFrame(raw []byte, opts DepthStreamOptions) (*rimage.DepthMap, error) {
	meters := make([]float32, opts.pixels())
	for i := range meters {
		meters[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return rimage.NewDepthMapFromMeters(opts.Width, opts.Height, meters)
}

// DecodeDepthFile decodes the depth stream stored at path.
func DecodeDepthFile(path string, opts DepthStreamOptions, logger golog.Logger, emit EmitFunc) (*DepthStreamInfo, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, err := DecodeDepthStream(data, opts, emit)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	logger.Debugw("decoded depth stream",
		"path", path,
		"scheme", info.Scheme.String(),
		"frames", info.Frames,
		"emitted", info.Emitted,
		"codecs", info.Codecs)
	return info, nil
}
