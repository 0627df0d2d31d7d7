package opencv

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"classroom-attendance/config"
	"classroom-attendance/internal/attendance"

	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

// Qualität des Originalbilds, das an die Gesichtserkennung geht
const originalJPEGQuality = 95

// CaptureSource liest Frames von einer Kamera oder aus einer Videodatei.
// Sie wird nur von der Capture-Schleife einer Sitzung benutzt.
type CaptureSource struct {
	uri          string
	deviceID     int
	isDevice     bool
	loop         bool
	previewScale float64
	jpegQuality  int

	capture *gocv.VideoCapture
	frame   gocv.Mat
}

// NewCaptureSource erstellt eine Quelle. Eine rein numerische URI gilt als Geräteindex.
func NewCaptureSource(uri string, cfg config.MonitorConfig) *CaptureSource {
	s := &CaptureSource{
		uri:          strings.TrimSpace(uri),
		loop:         cfg.LoopVideoFiles,
		previewScale: cfg.PreviewScale,
		jpegQuality:  cfg.JPEGQuality,
	}
	if id, err := strconv.Atoi(s.uri); err == nil {
		s.deviceID = id
		s.isDevice = true
	}
	return s
}

// NewSourceFactory liefert die Factory, mit der der Monitor Quellen öffnet
func NewSourceFactory(cfg config.MonitorConfig) attendance.SourceFactory {
	return func(spec attendance.SourceSpec) (attendance.VideoSource, error) {
		if strings.TrimSpace(spec.URI) == "" {
			return nil, errors.New("empty video source")
		}
		return NewCaptureSource(spec.URI, cfg), nil
	}
}

// preferredBackend gibt das bevorzugte Kamera-Backend der Plattform zurück
func preferredBackend() gocv.VideoCaptureAPI {
	switch runtime.GOOS {
	case "windows":
		return gocv.VideoCaptureDshow
	case "linux":
		return gocv.VideoCaptureV4L2
	default:
		return gocv.VideoCaptureAny
	}
}

// Open öffnet die Quelle. Für Kameras wird zuerst das bevorzugte Backend probiert,
// danach das Standard-Backend.
func (s *CaptureSource) Open() error {
	var (
		capture *gocv.VideoCapture
		err     error
	)
	if s.isDevice {
		capture, err = gocv.OpenVideoCaptureWithAPI(s.deviceID, preferredBackend())
		if err != nil || !capture.IsOpened() {
			if capture != nil {
				capture.Close()
			}
			log.Debugf("Preferred backend failed for camera %d, falling back to default: %v", s.deviceID, err)
			capture, err = gocv.OpenVideoCapture(s.deviceID)
		}
	} else {
		capture, err = gocv.OpenVideoCapture(s.uri)
	}
	if err != nil {
		return fmt.Errorf("failed to open video source %s: %w", s.uri, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("video source %s could not be opened", s.uri)
	}

	s.capture = capture
	s.frame = gocv.NewMat()
	log.Infof("Video source %s opened (%.0fx%.0f)", s.uri,
		capture.Get(gocv.VideoCaptureFrameWidth), capture.Get(gocv.VideoCaptureFrameHeight))
	return nil
}

// Read liest den nächsten Frame und kodiert Original und Vorschau als JPEG.
// Am Ende einer Videodatei wird attendance.ErrEndOfStream geliefert.
func (s *CaptureSource) Read() (attendance.Frame, error) {
	if s.capture == nil {
		return attendance.Frame{}, errors.New("video source not open")
	}
	if ok := s.capture.Read(&s.frame); !ok || s.frame.Empty() {
		if !s.isDevice {
			return attendance.Frame{}, attendance.ErrEndOfStream
		}
		return attendance.Frame{}, fmt.Errorf("failed to read frame from camera %d", s.deviceID)
	}

	original, err := EncodeJPEG(s.frame, originalJPEGQuality)
	if err != nil {
		return attendance.Frame{}, err
	}
	preview, err := EncodeScaled(s.frame, s.previewScale, s.jpegQuality)
	if err != nil {
		return attendance.Frame{}, err
	}
	return attendance.Frame{Image: original, Preview: preview}, nil
}

// Rewind springt an den Anfang der Videodatei
func (s *CaptureSource) Rewind() error {
	if s.capture == nil || s.isDevice {
		return errors.New("source cannot be rewound")
	}
	s.capture.Set(gocv.VideoCapturePosFrames, 0)
	return nil
}

// Replayable ist für Videodateien wahr, wenn das Wiederholen aktiviert ist
func (s *CaptureSource) Replayable() bool {
	return !s.isDevice && s.loop
}

// Close gibt Kamera bzw. Datei frei
func (s *CaptureSource) Close() error {
	var err error
	if s.capture != nil {
		err = s.capture.Close()
		s.capture = nil
		s.frame.Close()
	}
	return err
}
