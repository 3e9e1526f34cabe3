// internal/middleware/logging.go

package middleware

import (
	"time"

	"github.com/sirupsen/logrus"
)

// LogConnect logs a message when a peer connects to one of the framed TCP listeners.
func LogConnect(logger *logrus.Logger, remoteAddr string, listener string) {
	logger.WithFields(logrus.Fields{
		"remote":   remoteAddr,
		"listener": listener,
	}).Info("connected")
}

// LogDisconnect logs a message when a peer goes away. err is nil for a clean close.
func LogDisconnect(logger *logrus.Logger, remoteAddr string, listener string, err error) {
	fields := logrus.Fields{
		"remote":   remoteAddr,
		"listener": listener,
	}
	if err != nil {
		fields["error"] = err
	}
	logger.WithFields(fields).Info("disconnected")
}

// LogRequest starts timing one request. Call the returned func with the reply
// status (and failure reason, if any) once the request is answered.
func LogRequest(logger *logrus.Logger, remoteAddr string, action string) func(status, reason string) {
	start := time.Now()
	return func(status, reason string) {
		fields := logrus.Fields{
			"remote":   remoteAddr,
			"action":   action,
			"status":   status,
			"duration": time.Since(start),
		}
		if reason != "" {
			fields["reason"] = reason
		}
		logger.WithFields(fields).Debug("request")
	}
}
