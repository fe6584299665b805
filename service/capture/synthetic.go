package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/khaledhikmat/vs-traffic/model"
	"github.com/khaledhikmat/vs-traffic/service/config"
)

var (
	syntheticBox        = color.RGBA{0, 255, 0, 255}
	syntheticBackground = color.RGBA{32, 32, 40, 255}
	syntheticLane       = color.RGBA{200, 200, 200, 255}
)

type syntheticService struct {
	CfgSvc config.IService
}

// NewSynthetic generates frames in memory. Device targets never end; file
// targets end after the configured number of frames.
func NewSynthetic(cfgSvc config.IService) IService {
	return &syntheticService{
		CfgSvc: cfgSvc,
	}
}

func (svc *syntheticService) Open(target model.Target) (Source, error) {
	if target.Kind == model.TargetFile && target.Path == "" {
		return nil, &OpenError{Target: target, Err: fmt.Errorf("empty path")}
	}

	limit := -1
	if target.Kind == model.TargetFile {
		limit = svc.CfgSvc.GetSyntheticFileFrames()
	}

	return &syntheticSource{
		width:   svc.CfgSvc.GetSyntheticWidth(),
		height:  svc.CfgSvc.GetSyntheticHeight(),
		quality: svc.CfgSvc.GetJPEGQuality(),
		limit:   limit,
	}, nil
}

type syntheticSource struct {
	width   int
	height  int
	quality int
	limit   int
	frames  int
	closed  bool
}

func (s *syntheticSource) Read() (Frame, error) {
	if s.closed {
		return nil, ErrReadFailed
	}
	if s.limit >= 0 && s.frames >= s.limit {
		return nil, ErrEndOfStream
	}
	s.frames++

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	draw.Draw(img, img.Bounds(), image.NewUniform(syntheticBackground), image.Point{}, draw.Src)

	// A dashed lane marker that scrolls down one step per frame.
	laneX := s.width / 2
	for y := -40 + (s.frames*4)%40; y < s.height; y += 40 {
		dash := image.Rect(laneX-2, y, laneX+2, y+20).Intersect(img.Bounds())
		draw.Draw(img, dash, image.NewUniform(syntheticLane), image.Point{}, draw.Src)
	}
	drawText(img, "frame "+strconv.Itoa(s.frames), image.Pt(s.width-100, s.height-10), syntheticLane)

	return &syntheticFrame{img: img, quality: s.quality}, nil
}

func (s *syntheticSource) Close() error {
	s.closed = true
	return nil
}

type syntheticFrame struct {
	img     *image.RGBA
	quality int
}

func (f *syntheticFrame) Size() (int, int) {
	b := f.img.Bounds()
	return b.Dx(), b.Dy()
}

func (f *syntheticFrame) Render(detections []model.Detection) ([]byte, error) {
	annotated := image.NewRGBA(f.img.Bounds())
	draw.Draw(annotated, annotated.Bounds(), f.img, image.Point{}, draw.Src)

	for _, d := range detections {
		switch d.Kind {
		case model.DetectionCrowd:
			drawText(annotated, "persons: "+strconv.Itoa(d.Count), image.Pt(10, 30), syntheticBox)
		default:
			drawOutline(annotated, image.Rect(d.Box.Left, d.Box.Top, d.Box.Left+d.Box.Width, d.Box.Top+d.Box.Height), 2)
			drawText(annotated, d.Label(), image.Pt(d.Box.Left, d.Box.Top-10), syntheticBox)
		}
	}

	return encodeJPEG(annotated, f.quality)
}

func (f *syntheticFrame) Encode() ([]byte, error) {
	return encodeJPEG(f.img, f.quality)
}

func (f *syntheticFrame) Close() error {
	return nil
}

func drawOutline(img *image.RGBA, r image.Rectangle, thickness int) {
	src := image.NewUniform(syntheticBox)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(img.Bounds()), src, image.Point{}, draw.Src)
	}
}

func drawText(img *image.RGBA, text string, at image.Point, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(at.X, at.Y),
	}
	d.DrawString(text)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
