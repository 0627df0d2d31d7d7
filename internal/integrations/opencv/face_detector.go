package opencv

import (
	"fmt"
	"image"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

// Parameter des großzügigen Kaskaden-Detektors
const (
	permissiveScaleFactor  = 1.05
	permissiveMinNeighbors = 2
	permissiveMinSize      = 20
)

// Bekannte Installationspfade der OpenCV-Kaskaden
var cascadeFallbackPaths = []string{
	"/usr/local/share/opencv4/haarcascades/haarcascade_frontalface_default.xml",
	"/usr/share/opencv4/haarcascades/haarcascade_frontalface_default.xml",
	"/opt/homebrew/share/opencv4/haarcascades/haarcascade_frontalface_default.xml",
}

// FaceDetector findet Gesichtsbereiche mit einer Haar-Kaskade
type FaceDetector struct {
	classifier gocv.CascadeClassifier
	mutex      sync.Mutex
	closed     bool
}

// NewFaceDetector lädt die Kaskade aus cascadeFile oder einem der Standardpfade
func NewFaceDetector(cascadeFile string) (*FaceDetector, error) {
	classifier := gocv.NewCascadeClassifier()

	candidates := append([]string{cascadeFile}, cascadeFallbackPaths...)
	for _, path := range candidates {
		if path == "" || !fileExists(path) {
			continue
		}
		if classifier.Load(path) {
			log.Infof("Face cascade loaded from %s", path)
			return &FaceDetector{classifier: classifier}, nil
		}
	}

	classifier.Close()
	return nil, fmt.Errorf("failed to load face cascade from %s or default paths", cascadeFile)
}

// Detect sucht Gesichter auf dem um factor verkleinerten Graubild und gibt
// die Rechtecke in Koordinaten des Originalbilds zurück.
func (d *FaceDetector) Detect(data []byte, factor float64) ([]image.Rectangle, error) {
	img, err := DecodeJPEG(data)
	defer img.Close()
	if err != nil {
		return nil, err
	}

	small := gocv.NewMat()
	defer small.Close()
	if factor > 0 && factor < 1 {
		gocv.Resize(img, &small, image.Point{}, factor, factor, gocv.InterpolationLinear)
	} else {
		factor = 1
		img.CopyTo(&small)
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(small, &gray, gocv.ColorBGRToGray)
	gocv.EqualizeHist(gray, &gray)

	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.closed {
		return nil, fmt.Errorf("face detector closed")
	}

	rects := d.classifier.DetectMultiScaleWithParams(
		gray,
		permissiveScaleFactor,
		permissiveMinNeighbors,
		0,
		image.Pt(permissiveMinSize, permissiveMinSize),
		image.Pt(0, 0),
	)

	out := make([]image.Rectangle, len(rects))
	for i, r := range rects {
		out[i] = ScaleRect(r, factor)
	}
	log.Debugf("Cascade detector found %d face regions", len(out))
	return out, nil
}

// Close gibt die Kaskade frei
func (d *FaceDetector) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.classifier.Close()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
