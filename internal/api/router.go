package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/soaringjerry/Sigmo/internal/middleware"
	"github.com/soaringjerry/Sigmo/internal/questionnaire"
	"github.com/soaringjerry/Sigmo/internal/services"
	"github.com/soaringjerry/Sigmo/internal/utils"
)

const maxBodyBytes = 1 << 20

// Services bundles what the handlers call into.
type Services struct {
	Questionnaire *services.QuestionnaireService
	Protocols     *services.ProtocolService
	Auth          *services.AuthService
	Analytics     *services.AnalyticsService
	Export        *services.ExportService
}

type Router struct {
	svc    Services
	auth   *middleware.Auth
	logger *zap.Logger
}

func NewRouter(svc Services, auth *middleware.Auth, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{svc: svc, auth: auth, logger: logger}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/public/questionnaire/today", rt.handleToday)
	mux.HandleFunc("/api/public/questionnaire/daily-log", rt.handleDailyLog)
	mux.HandleFunc("/api/public/questionnaire/history", rt.handleHistory)
	mux.HandleFunc("/api/public/protocol/end", rt.handleEndTest)
	mux.HandleFunc("/api/public/protocol/{shareLink}", rt.handlePublicProtocol)

	mux.HandleFunc("/api/admin/login", rt.handleLogin)
	mux.HandleFunc("/api/admin/init", rt.handleInit)

	admin := func(h http.HandlerFunc) http.Handler {
		return rt.auth.WithAuth(middleware.RequireAuth(h))
	}
	mux.Handle("/api/admin/protocols", admin(rt.handleProtocols))
	mux.Handle("/api/admin/protocols/{id}", admin(rt.handleProtocol))
	mux.Handle("/api/admin/protocols/{id}/analytics", admin(rt.handleAnalytics))
	mux.Handle("/api/admin/protocols/{id}/export", admin(rt.handleExport))
	mux.Handle("/api/admin/questions/preview", admin(rt.handlePreview))
	mux.Handle("/api/admin/templates", admin(rt.handleTemplates))
}

func refFromQuery(r *http.Request) services.ProtocolRef {
	q := r.URL.Query()
	return services.ProtocolRef{ShareLink: q.Get("shareLink"), ProtocolID: q.Get("protocolId")}
}

// GET /api/public/questionnaire/today?shareLink=&userId=
func (rt *Router) handleToday(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	res, err := rt.svc.Questionnaire.Today(r.Context(), refFromQuery(r), r.URL.Query().Get("userId"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/public/questionnaire/daily-log
func (rt *Router) handleDailyLog(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req services.SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.svc.Questionnaire.Submit(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/public/questionnaire/history?shareLink=&userId=
func (rt *Router) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	res, err := rt.svc.Questionnaire.History(r.Context(), refFromQuery(r), r.URL.Query().Get("userId"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/public/protocol/end {shareLink, userId, reason}
func (rt *Router) handleEndTest(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req struct {
		ShareLink  string `json:"shareLink"`
		ProtocolID string `json:"protocolId"`
		UserID     string `json:"userId"`
		Reason     string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	ref := services.ProtocolRef{ShareLink: req.ShareLink, ProtocolID: req.ProtocolID}
	res, err := rt.svc.Questionnaire.EndTest(r.Context(), ref, req.UserID, req.Reason)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/public/protocol/{shareLink}
func (rt *Router) handlePublicProtocol(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	p, err := rt.svc.Protocols.GetByShareLink(r.Context(), r.PathValue("shareLink"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Public())
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /api/admin/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var c credentials
	if err := decodeJSON(r, &c); err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.svc.Auth.Login(r.Context(), c.Email, c.Password)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/admin/init creates the first admin; refused once one exists.
func (rt *Router) handleInit(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var c credentials
	if err := decodeJSON(r, &c); err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.svc.Auth.Bootstrap(r.Context(), c.Email, c.Password)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GET|POST /api/admin/protocols
func (rt *Router) handleProtocols(w http.ResponseWriter, r *http.Request) {
	adminID, _ := middleware.AdminIDFromContext(r.Context())
	switch r.Method {
	case http.MethodGet:
		list, err := rt.svc.Protocols.List(r.Context(), adminID)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"protocols": list})
	case http.MethodPost:
		var in services.ProtocolInput
		if err := decodeJSON(r, &in); err != nil {
			rt.writeError(w, r, err)
			return
		}
		p, err := rt.svc.Protocols.Create(r.Context(), adminID, in)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// GET|PUT|DELETE /api/admin/protocols/{id}
func (rt *Router) handleProtocol(w http.ResponseWriter, r *http.Request) {
	adminID, _ := middleware.AdminIDFromContext(r.Context())
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		p, err := rt.svc.Protocols.Get(r.Context(), adminID, id)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodPut:
		var in services.ProtocolInput
		if err := decodeJSON(r, &in); err != nil {
			rt.writeError(w, r, err)
			return
		}
		p, err := rt.svc.Protocols.Update(r.Context(), adminID, id, in)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodDelete:
		if err := rt.svc.Protocols.Delete(r.Context(), adminID, id); err != nil {
			rt.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// GET /api/admin/protocols/{id}/analytics
func (rt *Router) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	adminID, _ := middleware.AdminIDFromContext(r.Context())
	res, err := rt.svc.Analytics.Summary(r.Context(), adminID, r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/admin/protocols/{id}/export?format=long|wide
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	adminID, _ := middleware.AdminIDFromContext(r.Context())
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "long"
	}
	res, err := rt.svc.Export.ExportCSV(r.Context(), services.ExportParams{
		AdminID:    adminID,
		ProtocolID: r.PathValue("id"),
		Format:     format,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+res.Filename)
	_, _ = w.Write(res.Data)
}

// POST /api/admin/questions/preview
func (rt *Router) handlePreview(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req services.PreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	g, err := rt.svc.Questionnaire.Preview(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, previewResponse(g))
}

func previewResponse(g *questionnaire.Generated) map[string]any {
	return map[string]any{
		"state":             g.State,
		"questions":         g.Questions,
		"validation":        g.Validation,
		"source":            g.Outcome,
		"generationContext": g.Context,
	}
}

// GET /api/admin/templates
func (rt *Router) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": rt.svc.Questionnaire.Templates()})
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	methodNotAllowed(w, r, method)
	return false
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, methods ...string) {
	w.Header().Set("Allow", strings.Join(methods, ", "))
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
		"error": utils.T(locale, "error.method_not_allowed"),
		"code":  "method_not_allowed",
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return services.NewInvalidError("request body required")
		}
		return services.NewInvalidError("invalid JSON: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var statusByCode = map[services.ErrorCode]int{
	services.ErrorInvalid:      http.StatusBadRequest,
	services.ErrorForbidden:    http.StatusForbidden,
	services.ErrorNotFound:     http.StatusNotFound,
	services.ErrorConflict:     http.StatusConflict,
	services.ErrorUnauthorized: http.StatusUnauthorized,
	services.ErrorBadGateway:   http.StatusBadGateway,
}

// writeError renders err as {error, code, message[, key, field, expectedDay]}.
// The error text is localised; message keeps the service's own wording.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	locale := middleware.LocaleFromContext(r.Context())
	se, ok := services.AsServiceError(err)
	if !ok {
		rt.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": utils.T(locale, "error.internal"),
			"code":  "internal",
		})
		return
	}
	status, known := statusByCode[se.Code]
	if !known {
		status = http.StatusInternalServerError
	}
	body := map[string]any{
		"code":    se.Code,
		"message": se.Message,
	}
	switch {
	case se.Key == "error.wrong_day":
		body["error"] = utils.TF(locale, se.Key, se.ExpectedDay)
	case se.Key == "error.invalid_field":
		body["error"] = utils.TF(locale, se.Key, se.Field)
	case se.Key != "":
		body["error"] = utils.T(locale, se.Key)
	default:
		body["error"] = utils.T(locale, "error."+string(se.Code))
	}
	if se.Key != "" {
		body["key"] = se.Key
	}
	if se.Field != "" {
		body["field"] = se.Field
	}
	if se.ExpectedDay > 0 {
		body["expectedDay"] = se.ExpectedDay
	}
	writeJSON(w, status, body)
}
