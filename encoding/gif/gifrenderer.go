// Package gif renders text, such as training logs, into an animated GIF.
package gif

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"
	"math"
	"strings"

	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"
)

var regular *truetype.Font

const (
	dpi        = 144.0
	fontsize   = 12.0
	lineheight = 1.2

	// delay of a frame, in 100ths of a second
	frameDelay = 50
	lastDelay  = 300
)

func init() {
	var err error
	if regular, err = truetype.Parse(gomono.TTF); err != nil {
		panic(err)
	}
}

var globPalette = color.Palette{
	color.Gray{0},
	color.Gray{253},
}

// Encoder is an io.Writer which renders every line written to it as a frame
// of an animated GIF. A frame shows the last few lines, like a terminal.
// The GIF is written out on Flush.
//
// Encoder is NOT goroutine-safe. Wrap it in a log.Logger to serialize writes.
type Encoder struct {
	H, W int
	font.Drawer

	dst  io.Writer
	out  *gif.GIF
	face font.Face

	rows       int
	lines      []string
	partial    []byte
	padH, padW int
	dy         int
}

// NewEncoder creates an Encoder of the given width in pixels, showing rows
// lines per frame.
func NewEncoder(dst io.Writer, width, rows int) *Encoder {
	if rows < 1 {
		rows = 1
	}
	face := truetype.NewFace(regular, &truetype.Options{
		Size:    fontsize,
		DPI:     dpi,
		Hinting: font.HintingFull,
	})
	dy := int(math.Ceil(fontsize * lineheight * dpi / 72))
	enc := &Encoder{
		W:    width,
		dst:  dst,
		out:  &gif.GIF{LoopCount: -1},
		face: face,
		rows: rows,
		padH: 10,
		padW: 10,
		dy:   dy,
		Drawer: font.Drawer{
			Src:  image.Black,
			Face: face,
		},
	}
	enc.H = rows*dy + 2*enc.padH
	return enc
}

// Frames returns the number of frames rendered so far.
func (enc *Encoder) Frames() int { return len(enc.out.Image) }

// Write renders a frame for every complete line in p. An incomplete line is
// kept until a later Write completes it.
func (enc *Encoder) Write(p []byte) (int, error) {
	enc.partial = append(enc.partial, p...)
	for {
		i := bytes.IndexByte(enc.partial, '\n')
		if i < 0 {
			break
		}
		enc.addLine(string(enc.partial[:i]))
		enc.partial = enc.partial[i+1:]
	}
	return len(p), nil
}

func (enc *Encoder) addLine(line string) {
	line = strings.Replace(strings.TrimRight(line, "\r"), "\t", "    ", -1)
	enc.lines = append(enc.lines, line)
	if len(enc.lines) > enc.rows {
		enc.lines = enc.lines[len(enc.lines)-enc.rows:]
	}
	enc.render()
}

func (enc *Encoder) render() {
	im := image.NewPaletted(image.Rect(0, 0, enc.W, enc.H), globPalette)
	draw.Draw(im, im.Bounds(), image.White, image.Point{}, draw.Src)
	enc.Dst = im

	y := enc.padH + enc.dy
	for _, s := range enc.lines {
		enc.Dot = fixed.P(enc.padW, y)
		enc.DrawString(s)
		y += enc.dy
	}
	enc.out.Image = append(enc.out.Image, im)
	enc.out.Delay = append(enc.out.Delay, frameDelay)
}

// Flush renders any incomplete line and writes the GIF.
func (enc *Encoder) Flush() error {
	if len(enc.partial) > 0 {
		enc.addLine(string(enc.partial))
		enc.partial = enc.partial[:0]
	}
	if len(enc.out.Image) == 0 {
		return errors.New("nothing to encode")
	}
	enc.out.Delay[len(enc.out.Delay)-1] = lastDelay
	return errors.WithStack(gif.EncodeAll(enc.dst, enc.out))
}
