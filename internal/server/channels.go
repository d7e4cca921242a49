package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"harvestlink/internal/engine"
	"harvestlink/internal/sms"
)

const unavailableReply = "END Service temporarily unavailable. Please try again."

// ussdHandler serves the aggregator callback. Menu outcomes, including
// invalid input and oracle failures, are always 200 with a CON or END body.
func ussdHandler(d engine.Driver, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writePlain(w, http.StatusBadRequest, "END Invalid request")
			return
		}
		req := engine.Request{
			SessionID:   strings.TrimSpace(r.FormValue("sessionId")),
			PhoneNumber: strings.TrimSpace(r.FormValue("phoneNumber")),
			ServiceCode: strings.TrimSpace(r.FormValue("serviceCode")),
			Text:        r.FormValue("text"),
		}
		reply, err := d.Handle(r.Context(), req)
		switch {
		case errors.Is(err, engine.ErrMissingSessionID):
			writePlain(w, http.StatusBadRequest, "END "+err.Error())
		case err != nil:
			log.Error("ussd request failed", zap.String("session_id", req.SessionID), zap.Error(err))
			writePlain(w, http.StatusInternalServerError, unavailableReply)
		default:
			writePlain(w, http.StatusOK, reply.String())
		}
	}
}

func smsHandler(s sms.Responder, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writePlain(w, http.StatusBadRequest, "invalid form")
			return
		}
		msg := s.Reply(r.Context(), strings.TrimSpace(r.FormValue("From")), r.FormValue("Body"))
		out, err := sms.TwiML(msg)
		if err != nil {
			log.Error("render twiml", zap.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusOK)
		w.Write(out)
	}
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, body)
}
