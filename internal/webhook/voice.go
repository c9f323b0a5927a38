// Package webhook exposes the carrier-facing voice endpoints and the
// authenticated admin API.
package webhook

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dialcraft/router/internal/metrics"
	"github.com/dialcraft/router/internal/ncco"
	"github.com/dialcraft/router/internal/provider"
	"github.com/dialcraft/router/internal/queue"
	"github.com/dialcraft/router/internal/routing"
	"github.com/rs/zerolog"
)

// VoiceHandler answers carrier webhooks. Responses are always HTTP 200
// with a valid instruction list; a failed webhook would drop the call.
type VoiceHandler struct {
	engine  *routing.Engine
	queue   *queue.Manager
	carrier provider.Provider
	logger  zerolog.Logger
}

// NewVoiceHandler creates the voice webhook handler
func NewVoiceHandler(engine *routing.Engine, qm *queue.Manager, carrier provider.Provider, logger zerolog.Logger) *VoiceHandler {
	return &VoiceHandler{engine: engine, queue: qm, carrier: carrier, logger: logger}
}

// Answer handles the initial webhook for an inbound call
func (h *VoiceHandler) Answer(w http.ResponseWriter, r *http.Request) {
	params, ok := h.parseAndValidate(w, r)
	if !ok {
		return
	}

	start := time.Now()
	list := h.engine.HandleInbound(r.Context(), routing.InboundCall{
		CallID:      params["CallSid"],
		PhoneNumber: params["To"],
		FromNumber:  params["From"],
	})
	metrics.Get().RecordHTTPRequest("/webhooks/voice/answer", http.StatusOK, time.Since(start))

	writeInstructions(w, list)
}

// DTMF handles keypad input posted by the carrier
func (h *VoiceHandler) DTMF(w http.ResponseWriter, r *http.Request) {
	params, ok := h.parseAndValidate(w, r)
	if !ok {
		return
	}

	callID := params["CallSid"]
	digit := params["Digits"]

	list, err := h.engine.HandleDTMF(r.Context(), callID, digit)
	if err != nil {
		h.logger.Error().Err(err).Str("call_id", callID).Str("digit", digit).Msg("dtmf handling failed")
		list = []ncco.Instruction{ncco.Talk("We're sorry, something went wrong. Please call back later.")}
	}

	writeInstructions(w, list)
}

// Connect answers the redirect of a caller promoted out of the queue
func (h *VoiceHandler) Connect(w http.ResponseWriter, r *http.Request) {
	params, ok := h.parseAndValidate(w, r)
	if !ok {
		return
	}

	workspaceID := r.URL.Query().Get("workspace")
	list := h.engine.ConnectQueued(r.Context(), workspaceID, params["CallSid"])
	writeInstructions(w, list)
}

// Recordings receives completed voicemail recordings
func (h *VoiceHandler) Recordings(w http.ResponseWriter, r *http.Request) {
	params, ok := h.parseAndValidate(w, r)
	if !ok {
		return
	}

	h.logger.Info().
		Str("call_id", params["CallSid"]).
		Str("recording_url", params["RecordingUrl"]).
		Str("duration", params["RecordingDuration"]).
		Msg("voicemail recording received")

	w.WriteHeader(http.StatusOK)
}

// Events receives call status callbacks. A caller who hangs up while
// waiting is removed from the queue so positions behind them improve;
// a call that was connected to an agent frees that agent again.
func (h *VoiceHandler) Events(w http.ResponseWriter, r *http.Request) {
	params, ok := h.parseAndValidate(w, r)
	if !ok {
		return
	}

	callID := params["CallSid"]
	status := params["CallStatus"]

	switch status {
	case "completed", "canceled", "busy", "no-answer", "failed":
		if entry := h.queue.Abandon(r.Context(), callID); entry != nil {
			metrics.Get().RecordAbandon()
			h.logger.Info().
				Str("call_id", callID).
				Str("status", status).
				Msg("waiting caller left the queue")
		}
		h.engine.FinishCall(r.Context(), callID)
	}

	h.logger.Debug().Str("call_id", callID).Str("status", status).Msg("call event received")
	w.WriteHeader(http.StatusOK)
}

// parseAndValidate parses the posted form and checks the carrier
// signature. Invalid signatures get 403 with no instruction list.
func (h *VoiceHandler) parseAndValidate(w http.ResponseWriter, r *http.Request) (map[string]string, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return nil, false
	}

	params := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		params[key] = r.PostForm.Get(key)
	}

	if !h.carrier.ValidateSignature(r, params) {
		http.Error(w, "invalid signature", http.StatusForbidden)
		return nil, false
	}
	return params, true
}

// writeInstructions serializes the instruction list for the carrier
func writeInstructions(w http.ResponseWriter, list []ncco.Instruction) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}
