package opencv

import (
	"errors"
	"fmt"
	"image"

	gocv "gocv.io/x/gocv"
)

// EncodeJPEG kodiert eine Matrix als JPEG mit der angegebenen Qualität
func EncodeJPEG(img gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	defer buf.Close()

	// Bytes kopieren, der native Puffer wird freigegeben
	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// EncodeScaled verkleinert eine Matrix um factor und kodiert sie als JPEG
func EncodeScaled(img gocv.Mat, factor float64, quality int) ([]byte, error) {
	if factor <= 0 || factor >= 1 {
		return EncodeJPEG(img, quality)
	}
	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(img, &scaled, image.Point{}, factor, factor, gocv.InterpolationLinear)
	return EncodeJPEG(scaled, quality)
}

// DecodeJPEG dekodiert Bilddaten in eine Farbmatrix. Der Aufrufer muss die Matrix schließen.
func DecodeJPEG(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), errors.New("empty image data")
	}
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return img, fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Empty() {
		return img, errors.New("failed to decode image: empty result")
	}
	return img, nil
}

// ScaleJPEG verkleinert ein JPEG um factor
func ScaleJPEG(data []byte, factor float64, quality int) ([]byte, error) {
	img, err := DecodeJPEG(data)
	defer img.Close()
	if err != nil {
		return nil, err
	}
	return EncodeScaled(img, factor, quality)
}

// CropJPEG schneidet rect aus einem JPEG aus. rect wird auf die Bildgrenzen beschnitten.
func CropJPEG(data []byte, rect image.Rectangle, quality int) ([]byte, image.Rectangle, error) {
	img, err := DecodeJPEG(data)
	defer img.Close()
	if err != nil {
		return nil, image.Rectangle{}, err
	}

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	rect = rect.Intersect(bounds)
	if rect.Empty() {
		return nil, rect, errors.New("crop outside of image")
	}

	region := img.Region(rect)
	defer region.Close()
	out, err := EncodeJPEG(region, quality)
	return out, rect, err
}

// PadRect vergrößert rect um den Anteil pad auf jeder Seite
func PadRect(rect image.Rectangle, pad float64) image.Rectangle {
	dx := int(float64(rect.Dx()) * pad)
	dy := int(float64(rect.Dy()) * pad)
	return image.Rect(rect.Min.X-dx, rect.Min.Y-dy, rect.Max.X+dx, rect.Max.Y+dy)
}

// ScaleRect rechnet rect aus einem um factor verkleinerten Bild auf das Original um
func ScaleRect(rect image.Rectangle, factor float64) image.Rectangle {
	if factor <= 0 {
		return rect
	}
	return image.Rect(
		int(float64(rect.Min.X)/factor),
		int(float64(rect.Min.Y)/factor),
		int(float64(rect.Max.X)/factor),
		int(float64(rect.Max.Y)/factor),
	)
}
