package httpapi

import (
	"net/http"
)

type healthResponse struct {
	Status         string `json:"status"`
	Store          bool   `json:"store"`
	StoreLatencyMS int64  `json:"storeLatencyMs"`
	Redis          *bool  `json:"redis,omitempty"`
	RedisLatencyMS int64  `json:"redisLatencyMs,omitempty"`
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	status := h.service.Health(r.Context())
	resp := healthResponse{
		Status:         "ok",
		Store:          status.StoreAvailable,
		StoreLatencyMS: status.StoreLatency.Milliseconds(),
	}
	if status.RedisConfigured {
		up := status.RedisAvailable
		resp.Redis = &up
		resp.RedisLatencyMS = status.RedisLatency.Milliseconds()
	}

	code := http.StatusOK
	if !status.Healthy() {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
