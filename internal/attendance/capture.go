package attendance

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// captureLoop liest Frames, verteilt Vorschaubilder und füllt den Puffer.
// Die Quelle wird genau einmal geschlossen, auch auf Fehlerpfaden.
func (s *session) captureLoop() {
	defer s.wg.Done()

	logger := log.WithField("source", s.spec.ID)
	var closeOnce sync.Once
	release := func() {
		closeOnce.Do(func() {
			if err := s.source.Close(); err != nil {
				logger.WithError(err).Warn("Failed to release video source")
				return
			}
			logger.Info("Video source released")
		})
	}
	defer release()

	logger.Infof("Opening video source %s", s.spec.URI)
	if err := s.source.Open(); err != nil {
		s.fail(err)
		return
	}

	ticker := time.NewTicker(s.m.opts.CaptureInterval)
	defer ticker.Stop()

	rewinds := 0
	for {
		if s.stopped() {
			return
		}

		frame, err := s.source.Read()
		if err != nil {
			if s.stopped() {
				return
			}
			if errors.Is(err, ErrEndOfStream) && s.source.Replayable() && rewinds == 0 {
				rewinds++
				if rerr := s.source.Rewind(); rerr != nil {
					s.fail(fmt.Errorf("rewind failed: %w", rerr))
					return
				}
				logger.Debug("End of video reached, starting over")
				continue
			}
			s.fail(err)
			return
		}
		rewinds = 0

		seq := s.captured.Add(1)
		frame.Seq = seq
		if frame.CapturedAt.IsZero() {
			frame.CapturedAt = s.m.opts.Clock()
		}

		if len(frame.Preview) > 0 {
			s.m.sink.EmitFrame(s.spec.ID, frame.Preview, frame.CapturedAt)
		}
		if !s.buffer.TryPush(frame) {
			logger.Tracef("Frame buffer full, dropped frame %d", seq)
		}

		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

// fail meldet einen fatalen Quellenfehler genau einmal und beendet die Sitzung.
func (s *session) fail(cause error) {
	err := fmt.Errorf("%w: %v", ErrSourceUnavailable, cause)
	s.setErr(err)
	log.WithField("source", s.spec.ID).WithError(cause).Error("Video source unavailable, stopping monitoring")
	s.m.sink.EmitLog(s.spec.ID, []string{s.m.opts.Catalog.Message(MsgSourceUnavailable, map[string]interface{}{
		"SourceID": s.spec.ID,
		"Error":    cause.Error(),
	})})
	s.halt()
}
