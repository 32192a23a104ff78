package api

import (
	"net/http"

	"tenantledger/ledger"
)

type initBCRequest struct {
	TryToReset bool `json:"trytoreset"`
}

func (s *Server) handleInitBC(w http.ResponseWriter, r *http.Request) {
	var req initBCRequest
	decodeOptionalBody(r, &req)
	if req.TryToReset {
		if err := s.engine.Reset(); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleDeliverPooling(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeliverPooling(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleBlocking(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Blocking(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSyncBlocked(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.SyncBlocked(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type openTenantRequest struct {
	AdminID      string `json:"adminId"`
	RecallPhrase string `json:"recallPhrase"`
}

func (s *Server) handleOpenTenant(w http.ResponseWriter, r *http.Request) {
	var req openTenantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := s.tenants.Open(req.AdminID, req.RecallPhrase)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tenantId": t.TenantID})
}

type closeTenantRequest struct {
	AdminID  string `json:"adminId"`
	TenantID string `json:"tenantId"`
}

func (s *Server) handleCloseTenant(w http.ResponseWriter, r *http.Request) {
	var req closeTenantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TenantID == "" {
		writeError(w, ledger.Fail(ledger.KindTenantUnknown, "api", "handleCloseTenant", "tenantId is required", nil))
		return
	}
	if err := s.tenants.Close(req.AdminID, req.TenantID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
