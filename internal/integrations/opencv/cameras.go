package opencv

import (
	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

// MaxProbedCameras ist die Anzahl der geprüften Geräteindizes (0 bis 9)
const MaxProbedCameras = 10

// CameraInfo beschreibt eine verfügbare Kamera
type CameraInfo struct {
	Index  int `json:"index"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ProbeCameras prüft die Geräteindizes 0..limit-1 und liefert alle Kameras,
// die sich öffnen lassen und einen Frame liefern.
func ProbeCameras(limit int) []CameraInfo {
	if limit <= 0 {
		limit = MaxProbedCameras
	}

	cameras := make([]CameraInfo, 0)
	frame := gocv.NewMat()
	defer frame.Close()

	for i := 0; i < limit; i++ {
		capture, err := gocv.OpenVideoCaptureWithAPI(i, preferredBackend())
		if err != nil || !capture.IsOpened() {
			if capture != nil {
				capture.Close()
			}
			capture, err = gocv.OpenVideoCapture(i)
			if err != nil {
				continue
			}
		}
		if capture.IsOpened() && capture.Read(&frame) && !frame.Empty() {
			cameras = append(cameras, CameraInfo{
				Index:  i,
				Width:  frame.Cols(),
				Height: frame.Rows(),
			})
		}
		capture.Close()
	}

	log.Debugf("Camera probe found %d devices", len(cameras))
	return cameras
}
