// Package api is the authenticated API edge: two HTTP surfaces (user and
// admin) built on github.com/go-chi/chi/v5, request validation, tenant
// binding, and the single point that translates a ledger.Error's Kind into
// an HTTP status code.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"tenantledger/ledger"
)

// Credentials is one listener's configured auth pair plus mode.
type Credentials struct {
	AuthMode string // "basic" or "bearer"
	Username string
	Password string
}

// Server bundles the dependencies both the user and admin listeners need.
type Server struct {
	engine          *ledger.Engine
	tenants         *ledger.Registry
	log             *logrus.Logger
	tokens          *tokenStore
	userAuth        Credentials
	adminAuth       Credentials
	userPassHash    []byte
	adminPassHash   []byte
	maxPayloadBytes int64
}

// NewServer wires a Server from explicit dependencies. maxPayloadBytes
// bounds /post/byjson's request body, returning 413 when exceeded. Each
// listener's password is bcrypt-hashed once here rather than on every
// request.
func NewServer(engine *ledger.Engine, tenants *ledger.Registry, log *logrus.Logger, userAuth, adminAuth Credentials, maxPayloadBytes int64) *Server {
	return &Server{
		engine:          engine,
		tenants:         tenants,
		log:             log,
		tokens:          newTokenStore(),
		userAuth:        userAuth,
		adminAuth:       adminAuth,
		userPassHash:    hashPassword(userAuth.Password),
		adminPassHash:   hashPassword(adminAuth.Password),
		maxPayloadBytes: maxPayloadBytes,
	}
}

// UserRouter builds the User API listener: read/write tenant data.
func (s *Server) UserRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Post("/login", s.handleLogin(s.userAuth, s.userPassHash, "user"))

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware(s.userAuth, s.userPassHash, "user"))
		r.Post("/post/byjson", s.handlePostByJSON)
		r.Get("/get/byjson", s.handleGetByJSON)
		r.Get("/get/byoid/{id}", s.handleGetByOID)
		r.Get("/get/pooling", s.handleGetPooling)
		r.Get("/get/poolingdelivered", s.handleGetPoolingDelivered)
		r.Get("/get/blocked", s.handleGetBlocked)
		r.Get("/get/alltxs", s.handleGetAllTxs)
		r.Get("/get/history/{id}", s.handleGetHistory)
		r.Get("/get/totalnumber", s.handleGetTotalNumber)
		r.Get("/get/lastblock", s.handleGetLastBlock)
	})
	return r
}

// AdminRouter builds the Admin API listener: system control.
func (s *Server) AdminRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Post("/login", s.handleLogin(s.adminAuth, s.adminPassHash, "admin"))

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware(s.adminAuth, s.adminPassHash, "admin"))
		r.Post("/sys/initbc", s.handleInitBC)
		r.Post("/sys/deliverpooling", s.handleDeliverPooling)
		r.Post("/sys/blocking", s.handleBlocking)
		r.Post("/sys/syncblocked", s.handleSyncBlocked)
		r.Post("/sys/opentenant", s.handleOpenTenant)
		r.Post("/sys/closetenant", s.handleCloseTenant)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.status,
			"duration": time.Since(start),
		}).Info("handled request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
