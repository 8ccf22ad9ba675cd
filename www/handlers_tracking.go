package www

import (
	"net"
	"net/http"
)

func (h *Handlers) apiMintToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkOrderID int64 `json:"work_order_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	mint, err := h.engine.Tracking().Mint(req.WorkOrderID)
	if err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, mint)
}

func (h *Handlers) apiRevokeToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkOrderID int64 `json:"work_order_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.engine.Tracking().Revoke(req.WorkOrderID); err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, map[string]any{"revoked": true})
}

// handleTrack is the public client-facing progress view. Any
// verification failure comes back as the same opaque 401.
func (h *Handlers) handleTrack(w http.ResponseWriter, r *http.Request) {
	workOrderID, ok := queryInt64(r, "wo")
	if !ok {
		h.jsonError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	token := r.URL.Query().Get("token")
	view, err := h.engine.Tracking().VerifyAndProgress(workOrderID, token, clientIP(r), r.UserAgent())
	if err != nil {
		h.jsonFault(w, err)
		return
	}
	h.jsonOK(w, view)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
