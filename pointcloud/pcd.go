package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	lzf "github.com/zhuyie/golzf"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed binary format for pcd, stored field by field and LZF compressed.
	PCDCompressed PCDType = 2
)

func colorToPCDInt(pt Data) uint32 {
	if pt == nil || !pt.HasColor() {
		return 0
	}
	r, g, b := pt.RGB255()
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

func pcdIntToColor(c uint32) color.NRGBA {
	r := uint8(0xFF & (c >> 16))
	g := uint8(0xFF & (c >> 8))
	b := uint8(0xFF & (c >> 0))
	return color.NRGBA{r, g, b, 255}
}

// ToPCD writes the cloud out in the PCD v0.7 format. Positions are written in meters.
func ToPCD(cloud PointCloud, out io.Writer, outputType PCDType) error {
	var err error

	_, err = fmt.Fprintf(out, "VERSION .7\n")
	if err != nil {
		return err
	}
	if cloud.MetaData().HasColor {
		_, err = fmt.Fprintf(out, "FIELDS x y z rgb\n"+
			"SIZE 4 4 4 4\n"+
			"TYPE F F F I\n"+
			"COUNT 1 1 1 1\n")
	} else {
		_, err = fmt.Fprintf(out, "FIELDS x y z\n"+
			"SIZE 4 4 4\n"+
			"TYPE F F F\n"+
			"COUNT 1 1 1\n")
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n",
		cloud.Size(),
		1,
		cloud.Size())
	if err != nil {
		return err
	}

	switch outputType {
	case PCDBinary:
		_, err = fmt.Fprintf(out, "DATA binary\n")
	case PCDAscii:
		_, err = fmt.Fprintf(out, "DATA ascii\n")
	case PCDCompressed:
		_, err = fmt.Fprintf(out, "DATA binary_compressed\n")
	default:
		return errors.Errorf("unknown pcd output type %d", outputType)
	}
	if err != nil {
		return err
	}
	if outputType == PCDCompressed {
		return writePCDCompressed(cloud, out)
	}
	return writePCDData(cloud, out, outputType)
}

func writePCDData(cloud PointCloud, out io.Writer, pcdtype PCDType) error {
	hasColor := cloud.MetaData().HasColor
	var err error
	cloud.Iterate(0, 0, func(pos r3.Vector, d Data) bool {
		switch pcdtype {
		case PCDBinary:
			buf := make([]byte, 12, 16)
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(pos.X)))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(pos.Y)))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(pos.Z)))
			if hasColor {
				buf = binary.LittleEndian.AppendUint32(buf, colorToPCDInt(d))
			}
			_, err = out.Write(buf)
		default:
			if hasColor {
				_, err = fmt.Fprintf(out, "%f %f %f %d\n", pos.X, pos.Y, pos.Z, colorToPCDInt(d))
			} else {
				_, err = fmt.Fprintf(out, "%f %f %f\n", pos.X, pos.Y, pos.Z)
			}
		}
		return err == nil
	})
	return err
}

// writePCDCompressed lays the points out one field after another before compressing
// so that similar values sit next to each other.
func writePCDCompressed(cloud PointCloud, out io.Writer) error {
	fields := 3
	if cloud.MetaData().HasColor {
		fields = 4
	}
	n := cloud.Size()
	raw := make([]byte, 4*fields*n)
	i := 0
	cloud.Iterate(0, 0, func(pos r3.Vector, d Data) bool {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(float32(pos.X)))
		binary.LittleEndian.PutUint32(raw[4*(n+i):], math.Float32bits(float32(pos.Y)))
		binary.LittleEndian.PutUint32(raw[4*(2*n+i):], math.Float32bits(float32(pos.Z)))
		if fields == 4 {
			binary.LittleEndian.PutUint32(raw[4*(3*n+i):], colorToPCDInt(d))
		}
		i++
		return true
	})

	var compressed []byte
	if len(raw) > 0 {
		compressed = make([]byte, len(raw)+len(raw)/16+64)
		written, err := lzf.Compress(raw, compressed)
		if err != nil {
			return errors.Wrap(err, "error compressing pcd data")
		}
		compressed = compressed[:written]
	}

	sizes := make([]byte, 8)
	binary.LittleEndian.PutUint32(sizes, uint32(len(compressed)))
	binary.LittleEndian.PutUint32(sizes[4:], uint32(len(raw)))
	if _, err := out.Write(sizes); err != nil {
		return err
	}
	_, err := out.Write(compressed)
	return err
}

type pcdFieldType int

const (
	pcdPointOnly  pcdFieldType = 3
	pcdPointColor pcdFieldType = 4
)

type pcdHeader struct {
	fields pcdFieldType
	size   []uint64
	count  []uint64
	width  uint64
	height uint64
	points uint64
	data   PCDType
}

const pcdCommentChar = "#"

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

func parseUints(tokens []string, fields pcdFieldType, name string) ([]uint64, error) {
	if len(tokens) != int(fields) {
		return nil, errors.Errorf("unexpected number of fields in %s line", name)
	}
	out := make([]uint64, len(tokens))
	for i, token := range tokens {
		v, err := strconv.ParseUint(token, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s field %s", name, token)
		}
		out[i] = v
	}
	return out, nil
}

func parsePCDHeaderLine(line string, index int, header *pcdHeader) error {
	var err error
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	tokens := strings.Fields(value)
	if field != name {
		return errors.Errorf("line is supposed to start with %s but is %s", name, line)
	}

	switch name {
	case "VERSION":
		if value != ".7" && value != "0.7" {
			return errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		switch value {
		case "x y z":
			header.fields = pcdPointOnly
		case "x y z rgb":
			header.fields = pcdPointColor
		default:
			return errors.Errorf("unsupported pcd fields %s", value)
		}
	case "SIZE":
		if header.size, err = parseUints(tokens, header.fields, name); err != nil {
			return err
		}
		for _, s := range header.size {
			if s != 4 {
				return errors.Errorf("unsupported pcd field size %d", s)
			}
		}
	case "TYPE":
		if len(tokens) != int(header.fields) {
			return errors.New("unexpected number of fields in TYPE line")
		}
	case "COUNT":
		if header.count, err = parseUints(tokens, header.fields, name); err != nil {
			return err
		}
	case "WIDTH":
		if header.width, err = strconv.ParseUint(value, 10, 64); err != nil {
			return errors.Wrapf(err, "invalid WIDTH field %s", value)
		}
	case "HEIGHT":
		if header.height, err = strconv.ParseUint(value, 10, 64); err != nil {
			return errors.Wrapf(err, "invalid HEIGHT field %s", value)
		}
	case "VIEWPOINT":
		if len(tokens) != 7 {
			return errors.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(tokens))
		}
		for _, token := range tokens {
			if _, err := strconv.ParseFloat(token, 64); err != nil {
				return errors.Wrapf(err, "invalid VIEWPOINT field %s", token)
			}
		}
	case "POINTS":
		var points uint64
		if points, err = strconv.ParseUint(value, 10, 64); err != nil {
			return errors.Wrapf(err, "invalid POINTS field %s", value)
		}
		if points != header.width*header.height {
			return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", points, header.width*header.height)
		}
		header.points = points
	case "DATA":
		switch value {
		case "ascii":
			header.data = PCDAscii
		case "binary":
			header.data = PCDBinary
		case "binary_compressed":
			header.data = PCDCompressed
		default:
			return errors.Errorf("unsupported pcd data type %s", value)
		}
	}
	return nil
}

// ReadPCD reads a cloud written by ToPCD or any PCD v0.7 file with x y z [rgb] float fields.
func ReadPCD(inRaw io.Reader) (PointCloud, error) {
	header := pcdHeader{}
	in := bufio.NewReader(inRaw)
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(err, "error reading header line %d", headerLineCount)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, &header); err != nil {
			return nil, err
		}
		headerLineCount++
	}
	switch header.data {
	case PCDAscii:
		return readPCDAscii(in, header)
	case PCDBinary:
		return readPCDBinary(in, header)
	case PCDCompressed:
		return readPCDCompressed(in, header)
	default:
		return nil, errors.Errorf("unsupported pcd data type %v", header.data)
	}
}

func readPCDAscii(in *bufio.Reader, header pcdHeader) (PointCloud, error) {
	pc := NewWithPrealloc(int(header.points))
	for i := 0; i < int(header.points); i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, errors.Wrapf(err, "error reading point %d", i)
		}
		tokens := strings.Fields(line)
		if len(tokens) != int(header.fields) {
			return nil, errors.Errorf("unexpected number of fields in point %d", i)
		}
		point := make([]float64, len(tokens))
		for j, token := range tokens {
			point[j], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid point %d field %s", i, token)
			}
		}
		if err := setSliceAsPoint(pc, point, header); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func readPCDBinary(in *bufio.Reader, header pcdHeader) (PointCloud, error) {
	pc := NewWithPrealloc(int(header.points))
	buf := make([]byte, 4*int(header.fields))
	pointBuf := make([]float64, int(header.fields))
	for i := 0; i < int(header.points); i++ {
		if _, err := io.ReadFull(in, buf); err != nil {
			return nil, errors.Wrapf(err, "error reading point %d", i)
		}
		for j := range pointBuf {
			pointBuf[j] = decodePCDField(buf[4*j:], j)
		}
		if err := setSliceAsPoint(pc, pointBuf, header); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func readPCDCompressed(in *bufio.Reader, header pcdHeader) (PointCloud, error) {
	sizes := make([]byte, 8)
	if _, err := io.ReadFull(in, sizes); err != nil {
		return nil, errors.Wrap(err, "error reading compressed pcd sizes")
	}
	compressedSize := binary.LittleEndian.Uint32(sizes)
	rawSize := binary.LittleEndian.Uint32(sizes[4:])
	n := int(header.points)
	fields := int(header.fields)
	if int(rawSize) != 4*fields*n {
		return nil, errors.Errorf("compressed pcd holds %d bytes, expected %d", rawSize, 4*fields*n)
	}
	compressed := make([]byte, compressedSize)
	if _, err := io.ReadFull(in, compressed); err != nil {
		return nil, errors.Wrap(err, "error reading compressed pcd data")
	}
	raw := make([]byte, rawSize)
	if rawSize > 0 {
		read, err := lzf.Decompress(compressed, raw)
		if err != nil {
			return nil, errors.Wrap(err, "error decompressing pcd data")
		}
		if read != int(rawSize) {
			return nil, errors.Errorf("decompressed %d pcd bytes, expected %d", read, rawSize)
		}
	}

	pc := NewWithPrealloc(n)
	pointBuf := make([]float64, fields)
	for i := 0; i < n; i++ {
		for j := 0; j < fields; j++ {
			pointBuf[j] = decodePCDField(raw[4*(j*n+i):], j)
		}
		if err := setSliceAsPoint(pc, pointBuf, header); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func decodePCDField(b []byte, field int) float64 {
	bits := binary.LittleEndian.Uint32(b)
	if field == 3 {
		return float64(bits)
	}
	return float64(math.Float32frombits(bits))
}

func setSliceAsPoint(pc PointCloud, slice []float64, header pcdHeader) error {
	pos := r3.Vector{X: slice[0], Y: slice[1], Z: slice[2]}
	switch header.fields {
	case pcdPointOnly:
		return pc.Set(pos, NewBasicData())
	case pcdPointColor:
		return pc.Set(pos, NewColoredData(pcdIntToColor(uint32(slice[3]))))
	default:
		return errors.Errorf("unsupported pcd field type %d", header.fields)
	}
}
