package attendance

import (
	"context"
	"image"
	"time"
)

// Descriptor ist der Merkmalsvektor eines Gesichts (bei dlib 128 Werte).
type Descriptor []float32

// StudentReference ist ein eingeschriebener Schüler mit seinem Referenz-Deskriptor.
type StudentReference struct {
	ID         string
	Descriptor Descriptor
}

// GuardianContact enthält die Kontaktdaten der Erziehungsberechtigten eines Schülers.
type GuardianContact struct {
	StudentName  string
	GuardianName string
	Email        string
	Phone        string
}

// Frame ist ein einzelnes Bild einer Videoquelle.
// Image enthält das Original (JPEG), Preview eine verkleinerte Kopie für Beobachter.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time
	Image      []byte
	Preview    []byte
}

// DetectedFace ist ein gefundenes Gesicht mit Position und Deskriptor.
type DetectedFace struct {
	Rectangle  image.Rectangle
	Descriptor Descriptor
}

// DetectMode beschreibt eine Stufe der Erkennungs-Fallback-Kette.
type DetectMode int

const (
	// ModePrimary nutzt den Standarddetektor auf dem verkleinerten Bild.
	ModePrimary DetectMode = iota
	// ModePermissive nutzt eine großzügigere Detektorkonfiguration.
	ModePermissive
	// ModeSecondary nutzt einen zweiten Detektoralgorithmus.
	ModeSecondary
	// ModeFullSize wiederholt die Erkennung auf dem Originalbild.
	ModeFullSize
)

// DefaultModes ist die feste Reihenfolge der Erkennungsstufen.
var DefaultModes = []DetectMode{ModePrimary, ModePermissive, ModeSecondary, ModeFullSize}

func (m DetectMode) String() string {
	switch m {
	case ModePrimary:
		return "primary"
	case ModePermissive:
		return "permissive"
	case ModeSecondary:
		return "secondary"
	case ModeFullSize:
		return "full_size"
	default:
		return "unknown"
	}
}

// SourceSpec identifiziert eine überwachte Quelle.
// URI ist ein Geräteindex ("0") oder ein Dateipfad bzw. eine Stream-URL.
type SourceSpec struct {
	ID  string
	URI string
}

// RosterStore liefert die eingeschriebenen Schüler.
type RosterStore interface {
	ListStudents(ctx context.Context) ([]StudentReference, error)
	GuardianContact(ctx context.Context, studentID string) (*GuardianContact, error)
}

// Sink empfängt Logzeilen, Vorschaubilder und strukturierte Ereignisse.
// Implementierungen dürfen die Pipeline nie blockieren.
type Sink interface {
	EmitLog(sourceID string, lines []string)
	EmitFrame(sourceID string, jpeg []byte, at time.Time)
	EmitEvent(ev Event)
}

// Alerter verschickt Abwesenheits- und Rückkehrbenachrichtigungen (best effort).
type Alerter interface {
	SendAbsenceAlert(ctx context.Context, studentID string) error
	SendReturnNotice(ctx context.Context, studentID string) error
}

// VideoSource ist eine Quelle für Frames. Sie gehört exklusiv der Capture-Schleife.
type VideoSource interface {
	Open() error
	Read() (Frame, error)
	Rewind() error
	Replayable() bool
	Close() error
}

// SourceFactory erzeugt eine (noch ungeöffnete) Videoquelle.
type SourceFactory func(spec SourceSpec) (VideoSource, error)

// FaceExtractor findet Gesichter in einem Frame und berechnet ihre Deskriptoren.
type FaceExtractor interface {
	Extract(ctx context.Context, frame Frame, mode DetectMode) ([]DetectedFace, error)
}
