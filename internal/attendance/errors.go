package attendance

import "errors"

var (
	// ErrSourceUnavailable wird gemeldet, wenn eine Videoquelle nicht geöffnet
	// oder nicht mehr gelesen werden kann. Die Capture-Schleife endet danach.
	ErrSourceUnavailable = errors.New("video source unavailable")

	// ErrRosterUnavailable wird gemeldet, wenn der Reload der Referenzdaten
	// fehlschlägt. Der bisherige Cache bleibt erhalten.
	ErrRosterUnavailable = errors.New("roster unavailable")

	// ErrNotificationDeliveryFailed markiert eine fehlgeschlagene Benachrichtigung.
	// Der Anwesenheitszustand wird dadurch nicht verändert.
	ErrNotificationDeliveryFailed = errors.New("notification delivery failed")

	// ErrEndOfStream signalisiert das Ende einer (ggf. wiederholbaren) Quelle.
	ErrEndOfStream = errors.New("end of stream")

	// ErrNotMonitoring wird von Stop zurückgegeben, wenn für die Quelle keine Sitzung existiert.
	ErrNotMonitoring = errors.New("source is not monitored")

	// ErrMonitorClosed wird nach Close für alle weiteren Starts zurückgegeben.
	ErrMonitorClosed = errors.New("monitor closed")

	// ErrNoFaceDetected und ErrMultipleFaces werden bei der Einschreibung aus
	// einem Foto zurückgegeben, das nicht genau ein Gesicht enthält.
	ErrNoFaceDetected = errors.New("no face detected in image")
	ErrMultipleFaces  = errors.New("more than one face detected in image")
)
