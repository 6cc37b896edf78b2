package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BruceJL/mysql-json-bridge/pkg/httputil"
	"github.com/BruceJL/mysql-json-bridge/pkg/inflect"
	"github.com/BruceJL/mysql-json-bridge/pkg/mysql"
	"github.com/BruceJL/mysql-json-bridge/pkg/tenant"
)

// Pool hands out per-tenant connections. Satisfied by *mysql.PoolManager.
type Pool interface {
	Acquire(ctx context.Context, identifier string) (*mysql.Conn, error)
	Close()
}

// Server dispatches resourceful HTTP requests onto per-tenant databases.
type Server struct {
	pool       Pool
	exec       *mysql.Executor
	schema     *mysql.SchemaCache
	inflector  *inflect.Inflector
	mux        *http.ServeMux
	server     *http.Server
	logger     *zap.Logger
	middleware []httputil.Middleware
	baseURL    string
	// now feeds the sentinel-timestamp coercion; swapped out in tests
	now func() time.Time
}

func NewServer(pool Pool, logger *zap.Logger, baseURL string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		pool:      pool,
		exec:      mysql.NewExecutor(logger),
		schema:    mysql.NewSchemaCache(),
		inflector: inflect.New(),
		mux:       http.NewServeMux(),
		server:    &http.Server{},
		logger:    logger,
		baseURL:   baseURL,
		now:       time.Now,
	}

	s.registerHandlers()
	return s
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc(fmt.Sprintf("GET %s/healthz", s.baseURL), s.handleHealth)
	s.mux.HandleFunc(fmt.Sprintf("GET %s/{tenant}/{collection}", s.baseURL), s.handleList)
	s.mux.HandleFunc(fmt.Sprintf("POST %s/{tenant}/{collection}", s.baseURL), s.handleCreate)
	s.mux.HandleFunc(fmt.Sprintf("GET %s/{tenant}/{collection}/{id}", s.baseURL), s.handleGet)
	s.mux.HandleFunc(fmt.Sprintf("PUT %s/{tenant}/{collection}/{id}", s.baseURL), s.handleUpdate)
}

// AddMiddleware wraps the whole mux; middleware run in the order added.
func (s *Server) AddMiddleware(mw ...httputil.Middleware) {
	s.middleware = append(s.middleware, mw...)
}

// Start serves HTTP on the given address until Shutdown.
func (s *Server) Start(addr string) error {
	s.server.Addr = addr
	s.server.Handler = httputil.Chain(s.mux, s.middleware...)
	s.logger.Info("server starting", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and closes all tenant handles.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.pool.Close()
	return err
}

// Handler returns the routing handler without middleware, for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// resource is one resolved request target: the tenant connection plus the
// collection's naming pair.
type resource struct {
	conn     *mysql.Conn
	plural   string
	singular string
}

// resolveResource maps the path's tenant and collection segments to a live
// connection and a validated table name. It writes the error response itself
// and returns false when the request cannot be served.
func (s *Server) resolveResource(w http.ResponseWriter, r *http.Request) (resource, bool) {
	tenantID := r.PathValue("tenant")
	collection := r.PathValue("collection")

	singular, ok := s.inflector.Singular(collection)
	if !ok || !validIdentifier(singular) {
		httputil.Error(w, http.StatusNotFound, fmt.Sprintf("unknown collection %q", collection))
		return resource{}, false
	}

	conn, err := s.pool.Acquire(r.Context(), tenantID)
	if err != nil {
		if !errors.Is(err, tenant.ErrUnknownTenant) {
			s.logger.Error("failed to acquire tenant connection",
				zap.String("tenant", tenantID), zap.Error(err))
		}
		// connection failures surface as not-found, never as a stack trace
		httputil.Error(w, http.StatusNotFound, fmt.Sprintf("unknown tenant %q", tenantID))
		return resource{}, false
	}

	if _, ok, err := s.schema.Table(r.Context(), conn, singular); err != nil {
		s.respondError(w, err)
		return resource{}, false
	} else if !ok {
		httputil.Error(w, http.StatusNotFound, fmt.Sprintf("unknown collection %q", collection))
		return resource{}, false
	}

	return resource{conn: conn, plural: collection, singular: singular}, true
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resolveResource(w, r)
	if !ok {
		return
	}

	rows, err := s.exec.Execute(r.Context(), res.conn, listStatement(res.singular))
	if err != nil {
		s.respondError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, listEnvelope(res.plural, rows))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resolveResource(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	rows, err := s.exec.Execute(r.Context(), res.conn, getStatement(res.singular, id))
	if err != nil {
		s.respondError(w, err)
		return
	}
	if len(rows) == 0 {
		httputil.Error(w, http.StatusNotFound, fmt.Sprintf("no %s with id %q", res.singular, id))
		return
	}
	row := rows[0]

	include := r.URL.Query().Get("include")
	if include == "" {
		httputil.JSON(w, http.StatusOK, resourceEnvelope(res.plural, row))
		return
	}

	// the include parameter may name the relation in singular or plural form
	includeSingular := include
	if singular, ok := s.inflector.Singular(include); ok {
		includeSingular = singular
	}
	if !validIdentifier(includeSingular) {
		httputil.Error(w, http.StatusNotFound, fmt.Sprintf("unknown relation %q", include))
		return
	}
	if _, ok, err := s.schema.Table(r.Context(), res.conn, includeSingular); err != nil {
		s.respondError(w, err)
		return
	} else if !ok {
		httputil.Error(w, http.StatusNotFound, fmt.Sprintf("unknown relation %q", include))
		return
	}

	related, err := s.exec.Execute(r.Context(), res.conn, includeStatement(includeSingular, res.singular, id))
	if err != nil {
		s.respondError(w, err)
		return
	}

	includePlural := s.inflector.Plural(includeSingular)
	httputil.JSON(w, http.StatusOK, includeEnvelope(res.plural, row, includePlural, related))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resolveResource(w, r)
	if !ok {
		return
	}

	fields, ok := s.readBody(w, r, res)
	if !ok {
		return
	}

	stmt, err := insertStatement(res.singular, fields, s.now)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	// the insert, the id read and the re-fetch run as one critical section on
	// the tenant connection; auto-commit still means no atomicity across them
	fresh, err := s.exec.Insert(r.Context(), res.conn, stmt, func(id string) mysql.Statement {
		return getStatement(res.singular, id)
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	if len(fresh) == 0 {
		httputil.Error(w, http.StatusInternalServerError, "could not re-fetch inserted row")
		return
	}

	httputil.JSON(w, http.StatusCreated, createdEnvelope(res.singular, fresh[0]))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resolveResource(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	fields, ok := s.readBody(w, r, res)
	if !ok {
		return
	}

	stmt, err := updateStatement(res.singular, fields, id, s.now)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.exec.Execute(r.Context(), res.conn, stmt); err != nil {
		s.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
}

// readBody parses the `{singular: {col: val, ...}}` request body and checks
// every column name against the identifier pattern and the tenant's schema
// allow-list.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request, res resource) ([]Field, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "could not read request body")
		return nil, false
	}

	fields, err := parseFields(body, res.singular)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	for _, f := range fields {
		if !validIdentifier(f.Column) {
			httputil.Error(w, http.StatusBadRequest, fmt.Sprintf("invalid column name %q", f.Column))
			return nil, false
		}
		ok, err := s.schema.HasColumn(r.Context(), res.conn, res.singular, f.Column)
		if err != nil {
			s.respondError(w, err)
			return nil, false
		}
		if !ok {
			httputil.Error(w, http.StatusBadRequest,
				fmt.Sprintf("unknown column %q on %s", f.Column, res.singular))
			return nil, false
		}
	}
	return fields, true
}

// respondError maps the error taxonomy onto status codes. Database errors
// are already logged with their statement by the executor; the client only
// sees a generic message.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	var dbErr *mysql.DatabaseError
	switch {
	case errors.Is(err, tenant.ErrUnknownTenant):
		httputil.Error(w, http.StatusNotFound, "unknown tenant")
	case errors.Is(err, mysql.ErrNoLastInsertID):
		httputil.Error(w, http.StatusInternalServerError, "could not determine inserted id")
	case errors.As(err, &dbErr):
		httputil.Error(w, http.StatusInternalServerError, "database error")
	default:
		s.logger.Error("request failed", zap.Error(err))
		httputil.Error(w, http.StatusInternalServerError, "internal error")
	}
}
