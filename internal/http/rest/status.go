package rest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/loan_downloader/internal/logctx"
	"github.com/italolelis/loan_downloader/internal/storage"
	"github.com/italolelis/loan_downloader/internal/telemetry"
)

// LedgerReader is the read side of the ledger repository.
type LedgerReader interface {
	Load(ctx context.Context) (storage.Ledger, error)
}

type titleResponse struct {
	Title        string `json:"title"`
	DownloadedAt string `json:"downloaded_at"`
	FilePath     string `json:"file_path"`
	CatalogID    *int64 `json:"catalog_id,omitempty"`
	ReturnedAt   string `json:"returned_at,omitempty"`
	Active       bool   `json:"active"`
}

func newTitleResponse(rec *storage.TitleRecord) titleResponse {
	resp := titleResponse{
		Title:        rec.Title,
		DownloadedAt: rec.DownloadedAt.UTC().Format(timeLayout),
		FilePath:     rec.FilePath,
		CatalogID:    rec.CatalogID,
		Active:       rec.Active(),
	}

	if rec.ReturnedAt != nil {
		resp.ReturnedAt = rec.ReturnedAt.UTC().Format(timeLayout)
	}

	return resp
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// StatusHandler serves a read-only view of the ledger.
type StatusHandler struct {
	username  string
	password  string
	ledger    LedgerReader
	telemetry *telemetry.Telemetry
}

// NewStatusHandler creates the status API. Basic auth is enforced on /titles when a
// username is configured.
func NewStatusHandler(username, password string, ledger LedgerReader, t *telemetry.Telemetry) *StatusHandler {
	return &StatusHandler{
		username:  username,
		password:  password,
		ledger:    ledger,
		telemetry: t,
	}
}

func (h *StatusHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID, telemetry.HTTPLogging, telemetry.NewHTTPMiddleware(h.telemetry).Middleware)

	r.Get("/healthz", h.HandleHealth)
	r.Method(http.MethodGet, "/metrics", h.telemetry.Handler())

	r.Group(func(r chi.Router) {
		if h.username != "" {
			r.Use(h.basicAuthMiddleware)
		}

		r.Get("/titles", h.HandleListTitles)
		r.Get("/titles/{title}", h.HandleGetTitle)
	})

	return r
}

func (h *StatusHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleListTitles lists ledger records ordered by download time. The optional state query
// parameter narrows the list to "active" or "returned" titles.
func (h *StatusHandler) HandleListTitles(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	state := r.URL.Query().Get("state")
	if state != "" && state != "active" && state != "returned" {
		http.Error(w, "state must be active or returned", http.StatusBadRequest)

		return
	}

	ledger, err := h.ledger.Load(r.Context())
	if err != nil {
		logger.Error("failed to load ledger", "err", err)
		http.Error(w, "failed to load ledger", http.StatusInternalServerError)

		return
	}

	titles := make([]titleResponse, 0, len(ledger))

	for _, rec := range ledger.Sorted() {
		switch {
		case state == "active" && !rec.Active():
			continue
		case state == "returned" && rec.Active():
			continue
		}

		titles = append(titles, newTitleResponse(rec))
	}

	writeJSON(w, http.StatusOK, titles)
}

func (h *StatusHandler) HandleGetTitle(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	title := chi.URLParam(r, "title")

	ledger, err := h.ledger.Load(r.Context())
	if err != nil {
		logger.Error("failed to load ledger", "err", err)
		http.Error(w, "failed to load ledger", http.StatusInternalServerError)

		return
	}

	rec, ok := ledger[title]
	if !ok {
		http.Error(w, "title not found", http.StatusNotFound)

		return
	}

	writeJSON(w, http.StatusOK, newTitleResponse(rec))
}

func (h *StatusHandler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="loan_downloader"`)
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)

			return
		}

		userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(password), []byte(h.password)) == 1

		if !userOK || !passOK {
			http.Error(w, "invalid username or password", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
