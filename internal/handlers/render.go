package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/templ"

	"chaintetris/internal/chain"
	"chaintetris/internal/game"
)

func render(w http.ResponseWriter, r *http.Request, component templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := component.Render(r.Context(), w); err != nil {
		http.Error(w, "failed to render", http.StatusInternalServerError)
	}
}

func renderToString(r *http.Request, component templ.Component) string {
	var buf bytes.Buffer
	_ = component.Render(r.Context(), &buf)
	return buf.String()
}

func writeSSE(w http.ResponseWriter, event string, data string) {
	_, _ = w.Write([]byte("event: " + event + "\n"))
	for _, line := range strings.Split(data, "\n") {
		_, _ = w.Write([]byte("data: " + line + "\n"))
	}
	_, _ = w.Write([]byte("\n"))
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("Hx-Request") == "true"
}

// statusFor maps an action error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrInvalidMove):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrReadOnly), errors.Is(err, chain.ErrNoSigner):
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

func fail(w http.ResponseWriter, r *http.Request, log *slog.Logger, action string, err error) {
	code := statusFor(err)
	log.Warn("action failed", "action", action, "path", r.URL.Path, "status", code, "err", err)
	http.Error(w, err.Error(), code)
}
