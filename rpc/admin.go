package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"flashsettle/native/flashloan"
	"flashsettle/observability/logging"
)

type adminContextKey struct{}

const maxAdminBody = 1 << 16

// requireAdmin restores the admin cap presented in AdminHeader. Whether the
// cap actually governs the configuration is decided by the engine, which
// rejects foreign caps with ErrForbidden.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get(AdminHeader))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "admin token required")
			return
		}
		holder, err := flashloan.RestoreAdminCap(token)
		if err != nil {
			s.logger.Warn("admin token rejected",
				slog.String("route", r.URL.Path),
				logging.MaskField("token", token),
				slog.String("remote", r.RemoteAddr))
			writeEngineError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), adminContextKey{}, holder)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func adminFrom(ctx context.Context) *flashloan.AdminCap {
	holder, _ := ctx.Value(adminContextKey{}).(*flashloan.AdminCap)
	return holder
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		badRequest(w, "invalid JSON payload: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bps *uint64 `json:"bps"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Bps == nil {
		badRequest(w, "bps required")
		return
	}
	if err := s.node.Admin().SetServiceFee(r.Context(), adminFrom(r.Context()), *req.Bps); err != nil {
		writeEngineError(w, err)
		return
	}
	s.handleConfig(w, r)
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paused *bool `json:"paused"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Paused == nil {
		badRequest(w, "paused required")
		return
	}
	if err := s.node.Admin().SetPaused(r.Context(), adminFrom(r.Context()), *req.Paused); err != nil {
		writeEngineError(w, err)
		return
	}
	s.handleConfig(w, r)
}

func (s *Server) handleSetTreasury(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if !common.IsHexAddress(req.Address) {
		badRequest(w, "address must be a 20-byte hex address")
		return
	}
	if err := s.node.Admin().SetTreasury(r.Context(), adminFrom(r.Context()), common.HexToAddress(req.Address)); err != nil {
		writeEngineError(w, err)
		return
	}
	s.handleConfig(w, r)
}

func (s *Server) handleAddAsset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Asset string `json:"asset"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Asset) == "" {
		badRequest(w, "asset required")
		return
	}
	if err := s.node.Admin().AddAllowedAsset(r.Context(), adminFrom(r.Context()), req.Asset); err != nil {
		writeEngineError(w, err)
		return
	}
	s.handleConfig(w, r)
}

func (s *Server) handleSetAdapter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Protocol *uint64 `json:"protocol"`
		Location string  `json:"location"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Protocol == nil {
		badRequest(w, "protocol required")
		return
	}
	if err := s.node.Admin().SetAdapterLocation(r.Context(), adminFrom(r.Context()), *req.Protocol, req.Location); err != nil {
		writeEngineError(w, err)
		return
	}
	s.handleConfig(w, r)
}

// handleRegistry appends location, or repoints an existing entry when
// protocol is supplied.
func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Protocol *uint64 `json:"protocol,omitempty"`
		Location string  `json:"location"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Location) == "" {
		badRequest(w, "location required")
		return
	}
	admin := s.node.Admin()
	holder := adminFrom(r.Context())
	if req.Protocol != nil {
		if err := admin.UpdateAdapter(r.Context(), holder, *req.Protocol, req.Location); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"protocol": *req.Protocol, "location": req.Location})
		return
	}
	id, err := admin.AppendAdapter(r.Context(), holder, req.Location)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"protocol": id, "location": req.Location})
}

// handleRotate re-keys the admin authority and returns the new token. The
// presented token stops working once this returns.
func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	next, err := s.node.Admin().RotateCap(r.Context(), adminFrom(r.Context()))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	token, err := next.Export()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.logger.Info("admin token rotated", logging.MaskField("token", token))
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
