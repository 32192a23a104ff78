package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tenantledger/ledger"
)

func (s *Server) handlePostByJSON(w http.ResponseWriter, r *http.Request) {
	if s.maxPayloadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxPayloadBytes)
	}
	var req ledger.IngressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := s.engine.Ingress(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

type byJSONQuery struct {
	Tenant string `json:"tenant,omitempty"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

func (s *Server) handleGetByJSON(w http.ResponseWriter, r *http.Request) {
	var q byJSONQuery
	if !decodeJSON(w, r, &q) {
		return
	}
	tenant, err := s.tenants.Resolve(q.Tenant)
	if err != nil {
		writeError(w, err)
		return
	}
	txs, err := s.engine.ListPool(tenant, ledger.Filter{Key: q.Key, Value: q.Value})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

type tenantOnlyQuery struct {
	Tenant string `json:"tenant,omitempty"`
}

func (s *Server) handleGetByOID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !ledger.IsValidObjectID(id) {
		writeError(w, ledger.Fail(ledger.KindNotFound, "api", "handleGetByOID", "malformed id", nil))
		return
	}
	var q tenantOnlyQuery
	decodeOptionalBody(r, &q)
	tenant, err := s.tenants.Resolve(q.Tenant)
	if err != nil {
		writeError(w, err)
		return
	}
	tx, err := s.engine.TxByID(tenant, id)
	if err != nil {
		if ledger.KindOf(err) == ledger.KindNotFound {
			writeJSON(w, http.StatusOK, map[string]any{})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleGetPooling(w http.ResponseWriter, r *http.Request) {
	s.listHandler(w, r, s.engine.ListPool)
}

func (s *Server) handleGetPoolingDelivered(w http.ResponseWriter, r *http.Request) {
	s.listHandler(w, r, s.engine.ListDelivered)
}

func (s *Server) handleGetBlocked(w http.ResponseWriter, r *http.Request) {
	s.listHandler(w, r, s.engine.ListBlocked)
}

func (s *Server) handleGetAllTxs(w http.ResponseWriter, r *http.Request) {
	var q tenantOnlyQuery
	decodeOptionalBody(r, &q)
	tenant, err := s.tenants.Resolve(q.Tenant)
	if err != nil {
		writeError(w, err)
		return
	}
	txs, err := s.engine.AllTxs(tenant)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) listHandler(w http.ResponseWriter, r *http.Request, list func(string, ledger.Filter) ([]*ledger.Tx, error)) {
	var q tenantOnlyQuery
	decodeOptionalBody(r, &q)
	tenant, err := s.tenants.Resolve(q.Tenant)
	if err != nil {
		writeError(w, err)
		return
	}
	txs, err := list(tenant, ledger.Filter{})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !ledger.IsValidObjectID(id) {
		writeError(w, ledger.Fail(ledger.KindNotFound, "api", "handleGetHistory", "malformed id", nil))
		return
	}
	var q tenantOnlyQuery
	decodeOptionalBody(r, &q)
	tenant, err := s.tenants.Resolve(q.Tenant)
	if err != nil {
		writeError(w, err)
		return
	}
	chain, err := s.engine.History(tenant, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chain)
}

func (s *Server) handleGetTotalNumber(w http.ResponseWriter, r *http.Request) {
	var q tenantOnlyQuery
	decodeOptionalBody(r, &q)
	tenant, err := s.tenants.Resolve(q.Tenant)
	if err != nil {
		writeError(w, err)
		return
	}
	n, err := s.engine.TotalNumber(tenant)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleGetLastBlock(w http.ResponseWriter, r *http.Request) {
	var q tenantOnlyQuery
	decodeOptionalBody(r, &q)
	if _, err := s.tenants.Resolve(q.Tenant); err != nil {
		writeError(w, err)
		return
	}
	b, err := s.engine.LastBlockView()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// decodeOptionalBody best-effort decodes r's body into v; GET requests in
// this API carry a JSON body for query parameters (tenant, key/value), but
// an empty body is valid and simply leaves v at its zero value.
func decodeOptionalBody(r *http.Request, v any) {
	if r.Body == nil {
		return
	}
	defer r.Body.Close()
	_ = decodeJSONLenient(r.Body, v)
}
