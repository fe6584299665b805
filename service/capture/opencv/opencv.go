package opencv

import (
	"fmt"
	"image"
	"image/color"
	"strconv"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vs-traffic/model"
	"github.com/khaledhikmat/vs-traffic/service/capture"
	"github.com/khaledhikmat/vs-traffic/service/config"
)

var boxColor = color.RGBA{0, 255, 0, 0}

type gocvService struct {
	CfgSvc config.IService
}

// New opens OpenCV video captures for device indexes and video files.
func New(cfgSvc config.IService) capture.IService {
	return &gocvService{
		CfgSvc: cfgSvc,
	}
}

func (svc *gocvService) Open(target model.Target) (capture.Source, error) {
	var device interface{} = target.Device
	if target.Kind == model.TargetFile {
		device = target.Path
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, &capture.OpenError{Target: target, Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &capture.OpenError{Target: target, Err: fmt.Errorf("capture is not opened")}
	}

	return &gocvSource{
		target:  target,
		vc:      vc,
		quality: svc.CfgSvc.GetJPEGQuality(),
	}, nil
}

type gocvSource struct {
	target  model.Target
	vc      *gocv.VideoCapture
	quality int
}

func (s *gocvSource) Read() (capture.Frame, error) {
	img := gocv.NewMat()
	if ok := s.vc.Read(&img); !ok || img.Empty() {
		img.Close() // Crucial to close the image to avoid memory leaks
		if s.exhausted() {
			return nil, capture.ErrEndOfStream
		}
		return nil, capture.ErrReadFailed
	}

	return &gocvFrame{mat: img, quality: s.quality}, nil
}

func (s *gocvSource) exhausted() bool {
	if s.target.Kind != model.TargetFile {
		return false
	}
	total := s.vc.Get(gocv.VideoCaptureFrameCount)
	return total > 0 && s.vc.Get(gocv.VideoCapturePosFrames) >= total
}

func (s *gocvSource) Close() error {
	return s.vc.Close()
}

type gocvFrame struct {
	mat     gocv.Mat
	quality int
}

func (f *gocvFrame) Size() (int, int) {
	return f.mat.Cols(), f.mat.Rows()
}

func (f *gocvFrame) Render(detections []model.Detection) ([]byte, error) {
	annotated := f.mat.Clone()
	defer annotated.Close()

	for _, d := range detections {
		switch d.Kind {
		case model.DetectionCrowd:
			if err := gocv.PutText(&annotated, "persons: "+strconv.Itoa(d.Count), image.Pt(10, 30),
				gocv.FontHersheySimplex, 1.0, boxColor, 2); err != nil {
				return nil, err
			}
		default:
			rect := image.Rect(d.Box.Left, d.Box.Top, d.Box.Left+d.Box.Width, d.Box.Top+d.Box.Height)
			if err := gocv.Rectangle(&annotated, rect, boxColor, 2); err != nil {
				return nil, err
			}
			if err := gocv.PutText(&annotated, d.Label(), image.Pt(d.Box.Left, d.Box.Top-10),
				gocv.FontHersheySimplex, 0.6, boxColor, 2); err != nil {
				return nil, err
			}
		}
	}

	return encode(annotated, f.quality)
}

func (f *gocvFrame) Encode() ([]byte, error) {
	return encode(f.mat, f.quality)
}

func (f *gocvFrame) Close() error {
	return f.mat.Close()
}

func encode(mat gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}
