package facerecognition

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"classroom-attendance/config"
	"classroom-attendance/internal/attendance"
	"classroom-attendance/internal/integrations/opencv"

	"github.com/Kagami/go-face"
	log "github.com/sirupsen/logrus"
)

// Fehler bei der Einschreibung aus einem Foto
var (
	ErrNoFaceDetected = attendance.ErrNoFaceDetected
	ErrMultipleFaces  = attendance.ErrMultipleFaces
	ErrNotLoaded      = errors.New("recognition models not loaded")
)

const (
	cropPadding = 0.25
	cropQuality = 95
	workQuality = 90
)

// Recognizer berechnet Gesichtsdeskriptoren mit dlib (go-face).
// Er implementiert attendance.FaceExtractor mit den vier Erkennungsstufen.
type Recognizer struct {
	rec        *face.Recognizer
	cascade    *opencv.FaceDetector
	downscale  float64
	cnnEnabled bool
	mu         sync.Mutex // go-face ist nicht threadsicher

	cnnSkipped sync.Once
}

// NewRecognizer lädt die dlib-Modelle aus cfg.ModelsDir. Fehlt die Kaskade, entfällt
// die großzügige Stufe.
func NewRecognizer(cfg config.RecognitionConfig) (*Recognizer, error) {
	log.Infof("Loading face recognition models from: %s", cfg.ModelsDir)
	rec, err := face.NewRecognizer(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}

	r := &Recognizer{
		rec:        rec,
		downscale:  cfg.Downscale,
		cnnEnabled: cfg.CNNEnabled,
	}

	cascade, err := opencv.NewFaceDetector(cfg.CascadeFile)
	if err != nil {
		log.Warnf("Permissive detection disabled: %v", err)
	} else {
		r.cascade = cascade
	}

	log.Info("Face recognition models loaded successfully")
	return r, nil
}

// Extract liefert die Gesichter eines Frames für die angegebene Stufe.
// Rechtecke beziehen sich immer auf das Originalbild.
func (r *Recognizer) Extract(ctx context.Context, frame attendance.Frame, mode attendance.DetectMode) ([]attendance.DetectedFace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch mode {
	case attendance.ModePrimary:
		small, err := opencv.ScaleJPEG(frame.Image, r.downscale, workQuality)
		if err != nil {
			return nil, err
		}
		return r.recognize(small, r.downscale, false)

	case attendance.ModePermissive:
		return r.permissive(ctx, frame.Image)

	case attendance.ModeSecondary:
		if !r.cnnEnabled {
			r.cnnSkipped.Do(func() {
				log.Warn("CNN detection disabled (recognition.cnn_enabled=false), skipping secondary stage")
			})
			return nil, nil
		}
		small, err := opencv.ScaleJPEG(frame.Image, r.downscale, workQuality)
		if err != nil {
			return nil, err
		}
		return r.recognize(small, r.downscale, true)

	case attendance.ModeFullSize:
		return r.recognize(frame.Image, 1, false)
	}
	return nil, fmt.Errorf("unknown detection mode %d", mode)
}

func (r *Recognizer) recognize(data []byte, factor float64, cnn bool) ([]attendance.DetectedFace, error) {
	r.mu.Lock()
	if r.rec == nil {
		r.mu.Unlock()
		return nil, ErrNotLoaded
	}
	var (
		faces []face.Face
		err   error
	)
	if cnn {
		faces, err = r.rec.RecognizeCNN(data)
	} else {
		faces, err = r.rec.Recognize(data)
	}
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("face recognition failed: %w", err)
	}
	return convert(faces, factor), nil
}

// permissive sucht Gesichtsbereiche mit der Haar-Kaskade und berechnet die
// Deskriptoren auf den vergrößerten Ausschnitten.
func (r *Recognizer) permissive(ctx context.Context, data []byte) ([]attendance.DetectedFace, error) {
	if r.cascade == nil {
		return nil, nil
	}
	rects, err := r.cascade.Detect(data, r.downscale)
	if err != nil {
		return nil, err
	}

	var out []attendance.DetectedFace
	for _, rect := range rects {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		crop, bounds, err := opencv.CropJPEG(data, opencv.PadRect(rect, cropPadding), cropQuality)
		if err != nil {
			log.Debugf("Skipping face region %v: %v", rect, err)
			continue
		}

		r.mu.Lock()
		if r.rec == nil {
			r.mu.Unlock()
			return out, ErrNotLoaded
		}
		f, err := r.rec.RecognizeSingle(crop)
		r.mu.Unlock()
		if err != nil {
			log.Debugf("Descriptor extraction failed for region %v: %v", rect, err)
			continue
		}
		if f == nil {
			continue
		}
		out = append(out, attendance.DetectedFace{
			Rectangle:  f.Rectangle.Add(bounds.Min),
			Descriptor: descriptor(f.Descriptor),
		})
	}
	return out, nil
}

// DescriptorFromImage berechnet den Referenz-Deskriptor für die Einschreibung.
// Das Bild muss genau ein Gesicht enthalten.
func (r *Recognizer) DescriptorFromImage(ctx context.Context, data []byte) (attendance.Descriptor, error) {
	faces, err := r.recognize(data, 1, false)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 && r.cnnEnabled && ctx.Err() == nil {
		faces, err = r.recognize(data, 1, true)
		if err != nil {
			return nil, err
		}
	}

	switch len(faces) {
	case 0:
		return nil, ErrNoFaceDetected
	case 1:
		return faces[0].Descriptor, nil
	default:
		return nil, ErrMultipleFaces
	}
}

// Close gibt Modelle und Kaskade frei
func (r *Recognizer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec != nil {
		r.rec.Close()
		r.rec = nil
	}
	if r.cascade != nil {
		r.cascade.Close()
	}
}

func convert(faces []face.Face, factor float64) []attendance.DetectedFace {
	out := make([]attendance.DetectedFace, 0, len(faces))
	for _, f := range faces {
		out = append(out, attendance.DetectedFace{
			Rectangle:  opencv.ScaleRect(f.Rectangle, factor),
			Descriptor: descriptor(f.Descriptor),
		})
	}
	return out
}

func descriptor(d face.Descriptor) attendance.Descriptor {
	out := make(attendance.Descriptor, len(d))
	copy(out, d[:])
	return out
}

var _ attendance.FaceExtractor = (*Recognizer)(nil)
