package broker

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// receiveLoop pumps frames from a transport into the entry's pending table
// until the transport closes. It never terminates the worker itself; the
// connection handler's cleanup path owns that decision.
func (s *Server) receiveLoop(entry *ClientEntry, transport Transport, logger *log.Entry) {
	logger.Info("receiver starting")

	for transport.IsOpen() {
		isBinary, data, err := transport.ReadMessage(s.config.ReadTimeout)
		switch {
		case errors.Is(err, ErrReadTimeout):
			// idle cycle, yield briefly so cancellation stays responsive
			time.Sleep(receiveYield)
			continue
		case err != nil:
			logger.WithError(err).Warn("connection closed, stopping receiver")
			return
		}

		frame, err := DecodeFrame(isBinary, data)
		if err != nil {
			logger.WithError(err).Warn("dropping malformed frame")
			continue
		}
		entry.Deliver(frame.ID, frame.Payload)
	}

	logger.Warn("connection no longer open, receiver exiting")
}
