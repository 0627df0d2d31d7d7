package logger

import (
	"io"
	"os"
	"path/filepath"

	"classroom-attendance/config"

	log "github.com/sirupsen/logrus"
)

var logFile *os.File

// Init konfiguriert den globalen logrus-Logger: Level, Textformat und Ausgabe
// auf stdout plus optional in eine Datei.
func Init(cfg config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to 'info': %v", cfg.Level, err)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	writers := []io.Writer{os.Stdout}

	if cfg.File != "" {
		logDir := filepath.Dir(cfg.File)
		if err := os.MkdirAll(logDir, 0750); err != nil {
			// ohne Logdatei weitermachen
			log.Errorf("Failed to create log directory '%s': %v", logDir, err)
		} else if file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660); err != nil {
			log.Errorf("Failed to open log file '%s': %v", cfg.File, err)
		} else {
			logFile = file
			writers = append(writers, file)
			log.Infof("Logging additionally to file: %s", cfg.File)
		}
	}

	log.SetOutput(io.MultiWriter(writers...))
	log.WithField("level", level.String()).Info("Logger initialized")
	return nil
}

// Close schließt die Logdatei, falls eine geöffnet wurde.
func Close() {
	if logFile == nil {
		return
	}
	log.SetOutput(os.Stdout)
	if err := logFile.Close(); err != nil {
		log.Warnf("Failed to close log file: %v", err)
	}
	logFile = nil
}
