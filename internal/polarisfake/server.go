// Package polarisfake is an in-memory stand-in for the catalog service's
// management API. It keeps catalogs, roles, grants and bindings in memory,
// answers duplicates with 409 and can be told to fail specific routes.
package polarisfake

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lakehouse-tools/polaris-bootstrap/pkg/polaris"
)

// Route names a fake endpoint for call counting and failure injection.
type Route string

const (
	RouteProbe               Route = "GET /"
	RouteToken               Route = "POST " + polaris.TokenPath
	RouteCreateCatalog       Route = "POST /catalogs"
	RouteListCatalogs        Route = "GET /catalogs"
	RouteCreateCatalogRole   Route = "POST /catalogs/{catalog}/catalog-roles"
	RouteGrant               Route = "PUT /catalogs/{catalog}/catalog-roles/{catalogRole}/grants"
	RouteCreatePrincipalRole Route = "POST /principal-roles"
	RouteAssignCatalogRole   Route = "PUT /principal-roles/{principalRole}/catalog-roles/{catalog}"
	RouteAssignPrincipalRole Route = "PUT /principals/{principal}/principal-roles"
	RouteListPrincipalRoles  Route = "GET /principals/{principal}/principal-roles"
)

// DefaultCatalogRole is created alongside every catalog, as the real
// service does.
const DefaultCatalogRole = "catalog_admin"

const tokenTTL = time.Hour

// Server is the fake. The zero value is not usable; call New.
type Server struct {
	mu sync.Mutex

	clients    map[string]string
	signingKey []byte

	probeStatus        int
	omitAccessToken    bool
	failures           map[Route]int
	calls              map[Route]int
	catalogs           map[string]polaris.Catalog
	catalogRoles       map[string]mapset.Set[string]
	grants             mapset.Set[string]
	principalRoles     mapset.Set[string]
	principals         map[string]mapset.Set[string]
	catalogRoleBinding mapset.Set[string]
}

// Option configures a Server.
type Option func(*Server)

// WithClient registers an OAuth client. Without any WithClient option the
// fake accepts root/secret.
func WithClient(id, secret string) Option {
	return func(s *Server) {
		s.clients[id] = secret
	}
}

// WithPrincipal registers an additional principal. "root" always exists.
func WithPrincipal(name string) Option {
	return func(s *Server) {
		s.principals[name] = mapset.NewSet[string]()
	}
}

// New creates an empty fake service.
func New(opts ...Option) *Server {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("polarisfake: generating signing key: %v", err))
	}
	s := &Server{
		clients:            map[string]string{},
		signingKey:         key,
		probeStatus:        http.StatusOK,
		failures:           map[Route]int{},
		calls:              map[Route]int{},
		catalogs:           map[string]polaris.Catalog{},
		catalogRoles:       map[string]mapset.Set[string]{},
		grants:             mapset.NewSet[string](),
		principalRoles:     mapset.NewSet[string](),
		principals:         map[string]mapset.Set[string]{"root": mapset.NewSet[string]()},
		catalogRoleBinding: mapset.NewSet[string](),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.clients) == 0 {
		s.clients["root"] = "secret"
	}
	return s
}

// SetProbeStatus changes the status served on the service root.
func (s *Server) SetProbeStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probeStatus = code
}

// SetOmitAccessToken makes the token endpoint answer 200 without an
// access_token field.
func (s *Server) SetOmitAccessToken(omit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitAccessToken = omit
}

// FailRoute makes every request to route answer with status.
// A status of 0 clears the failure.
func (s *Server) FailRoute(route Route, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, route)
		return
	}
	s.failures[route] = status
}

// Calls returns how many requests reached route.
func (s *Server) Calls(route Route) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// ResetCalls zeroes all call counters.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = map[Route]int{}
}

// State is a sorted snapshot of everything the fake holds.
type State struct {
	Catalogs             []string
	CatalogRoles         map[string][]string
	Grants               []string
	PrincipalRoles       []string
	CatalogRoleBindings  []string
	PrincipalAssignments map[string][]string
}

// Snapshot returns the current state.
func (s *Server) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		CatalogRoles:         map[string][]string{},
		Grants:               sorted(s.grants),
		PrincipalRoles:       sorted(s.principalRoles),
		CatalogRoleBindings:  sorted(s.catalogRoleBinding),
		PrincipalAssignments: map[string][]string{},
	}
	for name := range s.catalogs {
		st.Catalogs = append(st.Catalogs, name)
	}
	sort.Strings(st.Catalogs)
	for name, roles := range s.catalogRoles {
		st.CatalogRoles[name] = sorted(roles)
	}
	for name, roles := range s.principals {
		st.PrincipalAssignments[name] = sorted(roles)
	}
	return st
}

// Catalog returns the stored create payload of a catalog.
func (s *Server) Catalog(name string) (polaris.Catalog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.catalogs[name]
	return c, ok
}

func sorted(set mapset.Set[string]) []string {
	out := set.ToSlice()
	sort.Strings(out)
	return out
}

// Handler returns the HTTP handler serving the fake API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.route(RouteProbe, s.handleProbe))
	r.Post(polaris.TokenPath, s.route(RouteToken, s.handleToken))

	r.Route("/api/management/v1", func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Post("/catalogs", s.route(RouteCreateCatalog, s.handleCreateCatalog))
		r.Get("/catalogs", s.route(RouteListCatalogs, s.handleListCatalogs))
		r.Post("/catalogs/{catalog}/catalog-roles", s.route(RouteCreateCatalogRole, s.handleCreateCatalogRole))
		r.Put("/catalogs/{catalog}/catalog-roles/{catalogRole}/grants", s.route(RouteGrant, s.handleGrant))
		r.Post("/principal-roles", s.route(RouteCreatePrincipalRole, s.handleCreatePrincipalRole))
		r.Put("/principal-roles/{principalRole}/catalog-roles/{catalog}", s.route(RouteAssignCatalogRole, s.handleAssignCatalogRole))
		r.Put("/principals/{principal}/principal-roles", s.route(RouteAssignPrincipalRole, s.handleAssignPrincipalRole))
		r.Get("/principals/{principal}/principal-roles", s.route(RouteListPrincipalRoles, s.handleListPrincipalRoles))
	})

	return r
}

// route counts calls and applies injected failures before h runs.
func (s *Server) route(name Route, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[name]++
		status, failing := s.failures[name]
		s.mu.Unlock()

		if failing {
			writeError(w, status, "InjectedFailure", fmt.Sprintf("injected failure for %s", name))
			return
		}
		h(w, r)
	}
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "NotAuthorizedException", "missing bearer token")
			return
		}
		_, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			return s.signingKey, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "NotAuthorizedException", "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.probeStatus
	s.mu.Unlock()

	writeJSON(w, status, map[string]string{"service": "mock-polaris"})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if r.PostForm.Get("grant_type") != "client_credentials" {
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type")
		return
	}

	id, secret := r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	s.mu.Lock()
	want, known := s.clients[id]
	omit := s.omitAccessToken
	s.mu.Unlock()
	if !known || want != secret {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client")
		return
	}

	if omit {
		writeJSON(w, http.StatusOK, map[string]any{"token_type": "bearer", "expires_in": int(tokenTTL.Seconds())})
		return
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   id,
		"scope": r.PostForm.Get("scope"),
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   now.Add(tokenTTL).Unix(),
		"iss":   "mock-polaris",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":      signed,
		"token_type":        "bearer",
		"issued_token_type": "urn:ietf:params:oauth:token-type:access_token",
		"expires_in":        int(tokenTTL.Seconds()),
	})
}

func (s *Server) handleCreateCatalog(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Catalog *polaris.Catalog `json:"catalog"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Catalog == nil || req.Catalog.Name == "" {
		writeError(w, http.StatusBadRequest, "BadRequestException", "request must contain catalog with a name")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.catalogs[req.Catalog.Name]; exists {
		writeError(w, http.StatusConflict, "AlreadyExistsException",
			fmt.Sprintf("Cannot create Catalog %s. Catalog already exists or resolution failed", req.Catalog.Name))
		return
	}
	s.catalogs[req.Catalog.Name] = *req.Catalog
	s.catalogRoles[req.Catalog.Name] = mapset.NewSet(DefaultCatalogRole)
	writeJSON(w, http.StatusCreated, req.Catalog)
}

func (s *Server) handleListCatalogs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.catalogs))
	for name := range s.catalogs {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]polaris.Catalog, 0, len(names))
	for _, name := range names {
		out = append(out, s.catalogs[name])
	}
	writeJSON(w, http.StatusOK, map[string]any{"catalogs": out})
}

func (s *Server) handleCreateCatalogRole(w http.ResponseWriter, r *http.Request) {
	catalog := chi.URLParam(r, "catalog")
	var req struct {
		CatalogRole polaris.CatalogRole `json:"catalogRole"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CatalogRole.Name == "" {
		writeError(w, http.StatusBadRequest, "BadRequestException", "request must contain catalogRole with a name")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	roles, ok := s.catalogRoles[catalog]
	if !ok {
		writeError(w, http.StatusNotFound, "NotFoundException", fmt.Sprintf("Catalog %s not found", catalog))
		return
	}
	if !roles.Add(req.CatalogRole.Name) {
		writeError(w, http.StatusConflict, "AlreadyExistsException",
			fmt.Sprintf("CatalogRole %s already exists", req.CatalogRole.Name))
		return
	}
	writeJSON(w, http.StatusCreated, req.CatalogRole)
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	catalog, role := chi.URLParam(r, "catalog"), chi.URLParam(r, "catalogRole")
	var req struct {
		Grant polaris.CatalogGrant `json:"grant"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Grant.Privilege == "" {
		writeError(w, http.StatusBadRequest, "BadRequestException", "request must contain grant with a privilege")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	roles, ok := s.catalogRoles[catalog]
	if !ok || !roles.Contains(role) {
		writeError(w, http.StatusNotFound, "NotFoundException", fmt.Sprintf("CatalogRole %s/%s not found", catalog, role))
		return
	}
	if !s.grants.Add(catalog + "/" + role + "/" + req.Grant.Privilege) {
		writeError(w, http.StatusConflict, "AlreadyExistsException", "grant already exists")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleCreatePrincipalRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PrincipalRole polaris.PrincipalRole `json:"principalRole"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PrincipalRole.Name == "" {
		writeError(w, http.StatusBadRequest, "BadRequestException", "request must contain principalRole with a name")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.principalRoles.Add(req.PrincipalRole.Name) {
		writeError(w, http.StatusConflict, "AlreadyExistsException",
			fmt.Sprintf("PrincipalRole %s already exists", req.PrincipalRole.Name))
		return
	}
	writeJSON(w, http.StatusCreated, req.PrincipalRole)
}

func (s *Server) handleAssignCatalogRole(w http.ResponseWriter, r *http.Request) {
	principalRole, catalog := chi.URLParam(r, "principalRole"), chi.URLParam(r, "catalog")
	var req struct {
		CatalogRole polaris.CatalogRole `json:"catalogRole"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CatalogRole.Name == "" {
		writeError(w, http.StatusBadRequest, "BadRequestException", "request must contain catalogRole with a name")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.principalRoles.Contains(principalRole) {
		writeError(w, http.StatusNotFound, "NotFoundException", fmt.Sprintf("PrincipalRole %s not found", principalRole))
		return
	}
	roles, ok := s.catalogRoles[catalog]
	if !ok || !roles.Contains(req.CatalogRole.Name) {
		writeError(w, http.StatusNotFound, "NotFoundException",
			fmt.Sprintf("CatalogRole %s/%s not found", catalog, req.CatalogRole.Name))
		return
	}
	if !s.catalogRoleBinding.Add(principalRole + "/" + catalog + "/" + req.CatalogRole.Name) {
		writeError(w, http.StatusConflict, "AlreadyExistsException", "catalog role already assigned")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleAssignPrincipalRole(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")
	var req struct {
		PrincipalRole polaris.PrincipalRole `json:"principalRole"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PrincipalRole.Name == "" {
		writeError(w, http.StatusBadRequest, "BadRequestException", "request must contain principalRole with a name")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	assigned, ok := s.principals[principal]
	if !ok {
		writeError(w, http.StatusNotFound, "NotFoundException", fmt.Sprintf("Principal %s not found", principal))
		return
	}
	if !s.principalRoles.Contains(req.PrincipalRole.Name) {
		writeError(w, http.StatusNotFound, "NotFoundException",
			fmt.Sprintf("PrincipalRole %s not found", req.PrincipalRole.Name))
		return
	}
	if !assigned.Add(req.PrincipalRole.Name) {
		writeError(w, http.StatusConflict, "AlreadyExistsException", "principal role already assigned")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleListPrincipalRoles(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")

	s.mu.Lock()
	defer s.mu.Unlock()
	assigned, ok := s.principals[principal]
	if !ok {
		writeError(w, http.StatusNotFound, "NotFoundException", fmt.Sprintf("Principal %s not found", principal))
		return
	}
	roles := make([]polaris.PrincipalRole, 0, assigned.Cardinality())
	for _, name := range sorted(assigned) {
		roles = append(roles, polaris.PrincipalRole{Name: name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the service's error envelope.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    kind,
			"code":    status,
		},
	})
}

func writeOAuthError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
