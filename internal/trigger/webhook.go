package trigger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"text/template"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/HarinGuptha/FlowBit-Harin/internal/classify"
)

// WebhookHandler turns named webhook posts into pipeline runs.
type WebhookHandler struct {
	proc     Processor
	webhooks map[string]WebhookTrigger
}

// NewWebhookHandler creates a handler from the trigger configuration.
func NewWebhookHandler(proc Processor, cfg *Config) *WebhookHandler {
	wh := &WebhookHandler{proc: proc, webhooks: map[string]WebhookTrigger{}}
	if cfg != nil {
		for _, w := range cfg.Webhooks {
			wh.webhooks[w.Name] = w
		}
	}
	return wh
}

type webhookResponse struct {
	Status      string `json:"status"`
	SessionID   string `json:"session_id,omitempty"`
	FinalStatus string `json:"final_status,omitempty"`
	Error       string `json:"error,omitempty"`
}

// HandleWebhook renders the named trigger's content template with the
// posted payload and runs it through the pipeline.
func (wh *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	trig, ok := wh.webhooks[name]
	if !ok {
		writeWebhookJSON(w, http.StatusNotFound, webhookResponse{
			Status: "error", Error: fmt.Sprintf("trigger %q not found", name),
		})
		return
	}

	var payload interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeWebhookJSON(w, http.StatusBadRequest, webhookResponse{
			Status: "error", Error: "invalid JSON body",
		})
		return
	}

	content, err := renderTemplate(trig.ContentTemplate, map[string]interface{}{"payload": payload})
	if err != nil {
		writeWebhookJSON(w, http.StatusInternalServerError, webhookResponse{
			Status: "error", Error: fmt.Sprintf("template error: %v", err),
		})
		return
	}

	log.Info().Str("trigger", name).Msg("webhook_trigger_fired")

	sess, err := wh.proc.Process(r.Context(), []byte(content), classify.FormatType(trig.Hint))
	if err != nil {
		log.Error().Err(err).Str("trigger", name).Msg("webhook_trigger_failed")
		writeWebhookJSON(w, http.StatusServiceUnavailable, webhookResponse{
			Status: "error", Error: err.Error(),
		})
		return
	}

	writeWebhookJSON(w, http.StatusOK, webhookResponse{
		Status:      "ok",
		SessionID:   sess.ID,
		FinalStatus: string(sess.FinalStatus),
	})
}

func writeWebhookJSON(w http.ResponseWriter, status int, resp webhookResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func renderTemplate(tmplStr string, data interface{}) (string, error) {
	tmpl, err := template.New("webhook").Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}
	return buf.String(), nil
}
