package handlers

import (
	"net/http"

	"scenecap/internal/httpkit"
)

// Health performs a health check of the service.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":  "ok",
		"service": "scenecap",
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := map[string]any{
			"browser":    h.checkBrowser(),
			"dispatcher": h.checkDispatcher(),
		}
		health["checks"] = checks

		for _, c := range checks {
			if m, ok := c.(map[string]any); ok && m["status"] != "ok" {
				health["status"] = "degraded"
				h.log.FromContext(r.Context()).Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) checkBrowser() map[string]any {
	result := map[string]any{"status": "ok"}
	if h.browser == nil {
		result["status"] = "unknown"
		return result
	}
	if err := h.browser.Check(); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}
	return result
}

func (h *Handler) checkDispatcher() map[string]any {
	s := h.dispatcher.Stats()
	return map[string]any{
		"status":  "ok",
		"active":  s.Active,
		"waiting": s.Waiting,
		"total":   s.Submitted,
		"limit":   s.Limit,
	}
}
