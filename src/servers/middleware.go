package servers

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	applog "github.com/shongo-go/connector/src/log"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func log(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(rec, r)
		applog.GetLogger().WithFields(logrus.Fields{
			"Method":     r.Method,
			"Path":       r.RequestURI,
			"RemoteAddr": r.RemoteAddr,
			"Status":     rec.status,
			"Duration":   time.Since(start).String(),
		}).Debug("Http Request")
	})
}
