package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/prospect-crm/internal/csvimport"
	"github.com/ignite/prospect-crm/internal/domain"
	"github.com/ignite/prospect-crm/internal/pkg/httputil"
	"github.com/ignite/prospect-crm/internal/pkg/logger"
	"github.com/ignite/prospect-crm/internal/worker"
)

// Sessions stores import wizards between requests. *worker.SessionStore implements it.
type Sessions interface {
	Create(ctx context.Context) (*csvimport.Wizard, error)
	Save(ctx context.Context, w *csvimport.Wizard) error
	Get(ctx context.Context, id string) (*csvimport.Wizard, error)
	Delete(ctx context.Context, id string) error
	GetProgress(ctx context.Context, id string) (domain.ImportProgress, error)
}

// Runner commits a session. *worker.ImportRunner implements it.
type Runner interface {
	Run(ctx context.Context, sessionID string, actor domain.Actor) (*csvimport.Wizard, error)
	// Recover moves a session stuck in importing with no live commit
	// back to preview.
	Recover(ctx context.Context, sessionID string) (*csvimport.Wizard, error)
}

// JobReader reads the journal entry of a commit. *postgres.ImportJobRepo and
// *storage.JobLedger implement it.
type JobReader interface {
	Get(ctx context.Context, id string) (*domain.ImportJob, error)
}

// Archiver keeps a copy of raw uploads. *storage.Archive implements it.
type Archiver interface {
	Put(ctx context.Context, sessionID, filename, uploadedBy string, content []byte) (string, error)
}

// ActorResolver identifies the user behind a request. *auth.AuthManager implements it.
type ActorResolver interface {
	ActorFromRequest(r *http.Request) (domain.Actor, error)
}

// ImportHandlers serves the prospect import wizard.
type ImportHandlers struct {
	sessions     Sessions
	runner       Runner
	actors       ActorResolver
	archive      Archiver
	jobs         JobReader
	previewLimit int
	maxUpload    int64
}

// ImportOptions holds the optional settings of ImportHandlers.
type ImportOptions struct {
	Archive      Archiver  // nil disables archiving
	Jobs         JobReader // nil hides the job route
	PreviewLimit int
	MaxUpload    int64 // bytes
}

// NewImportHandlers creates the import handlers.
func NewImportHandlers(sessions Sessions, runner Runner, actors ActorResolver, opts ImportOptions) *ImportHandlers {
	if opts.PreviewLimit <= 0 {
		opts.PreviewLimit = csvimport.DefaultPreviewLimit
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = 10 << 20
	}
	return &ImportHandlers{
		sessions:     sessions,
		runner:       runner,
		actors:       actors,
		archive:      opts.Archive,
		jobs:         opts.Jobs,
		previewLimit: opts.PreviewLimit,
		maxUpload:    opts.MaxUpload,
	}
}

// RegisterRoutes mounts the import routes on r.
func (h *ImportHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/imports", func(r chi.Router) {
		r.Get("/fields", h.HandleFields)
		r.Get("/template", h.HandleTemplate)
		r.Post("/", h.HandleUpload)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Delete("/", h.HandleDelete)
			r.Put("/mapping", h.HandleMapping)
			r.Post("/confirm", h.HandleConfirm)
			r.Post("/back", h.HandleBack)
			r.Post("/reset", h.HandleReset)
			r.Post("/commit", h.HandleCommit)
			r.Get("/progress", h.HandleProgress)
			r.Get("/job", h.HandleJob)
		})
	})
}

// HandleFields lists the canonical fields a column can be mapped to.
// GET /api/imports/fields
func (h *ImportHandlers) HandleFields(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{"fields": csvimport.Fields()})
}

// HandleTemplate downloads the empty import template.
// GET /api/imports/template
func (h *ImportHandlers) HandleTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+csvimport.TemplateFilename+`"`)
	w.Write(csvimport.Template())
}

type uploadRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// HandleUpload starts a session from an uploaded file.
// POST /api/imports
// Content-Type: multipart/form-data with a "file" field, or JSON {filename, content}.
func (h *ImportHandlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	filename, content, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	if !acceptedExtension(filename) {
		httputil.ErrorCode(w, http.StatusBadRequest, "unsupported_file",
			"accepted file types: "+strings.Join(csvimport.AcceptedExtensions, ", "), nil)
		return
	}
	if !utf8.Valid(content) {
		httputil.ErrorCode(w, http.StatusBadRequest, "parse_error", "file is not valid UTF-8 text", nil)
		return
	}
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))

	ctx := r.Context()
	wiz, err := h.sessions.Create(ctx)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if err := wiz.Load(filename, string(content)); err != nil {
		_ = h.sessions.Delete(ctx, wiz.ID)
		writeImportError(w, err)
		return
	}
	if err := h.sessions.Save(ctx, wiz); err != nil {
		httputil.InternalError(w, err)
		return
	}
	h.archiveUpload(r, wiz.ID, filename, content)

	logger.Info("import file loaded", "session", wiz.ID, "filename", filename,
		"rows", len(wiz.Table.Rows), "columns", len(wiz.Table.Headers))
	httputil.Created(w, newSessionView(wiz))
}

func (h *ImportHandlers) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(h.maxUpload); err != nil {
			httputil.ErrorCode(w, http.StatusRequestEntityTooLarge, "file_too_large", "file too large or malformed upload", nil)
			return "", nil, false
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			httputil.BadRequest(w, "file is required")
			return "", nil, false
		}
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			httputil.BadRequest(w, "failed to read file")
			return "", nil, false
		}
		return header.Filename, content, true
	}

	var req uploadRequest
	if !httputil.Decode(w, r, &req) {
		return "", nil, false
	}
	if req.Filename == "" {
		httputil.BadRequest(w, "filename is required")
		return "", nil, false
	}
	return req.Filename, []byte(req.Content), true
}

func acceptedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range csvimport.AcceptedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

func (h *ImportHandlers) archiveUpload(r *http.Request, sessionID, filename string, content []byte) {
	if h.archive == nil {
		return
	}
	var uploadedBy string
	if actor, err := h.actors.ActorFromRequest(r); err == nil {
		uploadedBy = actor.ID
	}
	key, err := h.archive.Put(r.Context(), sessionID, filename, uploadedBy, content)
	if err != nil {
		logger.Warn("archive upload failed", "session", sessionID, "error", err)
		return
	}
	logger.Debug("upload archived", "session", sessionID, "key", key)
}

// load fetches the session named in the URL, writing the error response on
// failure. A session left in importing by a dead commit is recovered first.
func (h *ImportHandlers) load(w http.ResponseWriter, r *http.Request) (*csvimport.Wizard, bool) {
	id := chi.URLParam(r, "id")
	wiz, err := h.sessions.Get(r.Context(), id)
	if err == nil && wiz.Stage == csvimport.StageImporting {
		wiz, err = h.runner.Recover(r.Context(), id)
	}
	if err != nil {
		writeImportError(w, err)
		return nil, false
	}
	return wiz, true
}

// update loads the session, applies step and saves the result. A failing
// step is still saved when it recorded an error on the wizard.
func (h *ImportHandlers) update(w http.ResponseWriter, r *http.Request, step func(*csvimport.Wizard) error) {
	wiz, ok := h.load(w, r)
	if !ok {
		return
	}
	before := wiz.UpdatedAt
	stepErr := step(wiz)
	if stepErr == nil || !wiz.UpdatedAt.Equal(before) {
		if err := h.sessions.Save(r.Context(), wiz); err != nil {
			httputil.InternalError(w, err)
			return
		}
	}
	if stepErr != nil {
		writeImportError(w, stepErr)
		return
	}
	httputil.OK(w, newSessionView(wiz))
}

// HandleGet returns the session state.
// GET /api/imports/{id}
func (h *ImportHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	wiz, ok := h.load(w, r)
	if !ok {
		return
	}
	httputil.OK(w, newSessionView(wiz))
}

type mappingEntry struct {
	Header string `json:"header"`
	Field  string `json:"field"` // empty clears the header
}

type mappingRequest struct {
	Entries []mappingEntry `json:"entries"`
}

// HandleMapping changes column mappings; entries are applied in order.
// PUT /api/imports/{id}/mapping
func (h *ImportHandlers) HandleMapping(w http.ResponseWriter, r *http.Request) {
	var req mappingRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	h.update(w, r, func(wiz *csvimport.Wizard) error {
		orig, updated := wiz.Mapping.Clone(), wiz.UpdatedAt
		for _, e := range req.Entries {
			var err error
			if e.Field == "" {
				err = wiz.ClearMapping(e.Header)
			} else {
				err = wiz.SetMapping(e.Header, csvimport.CanonicalField(e.Field))
			}
			if err != nil {
				wiz.Mapping, wiz.UpdatedAt = orig, updated
				return err
			}
		}
		return nil
	})
}

// HandleConfirm aggregates the rows and builds the preview.
// POST /api/imports/{id}/confirm
func (h *ImportHandlers) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(wiz *csvimport.Wizard) error { return wiz.Confirm(h.previewLimit) })
}

// HandleBack returns from the preview to the mapping step.
// POST /api/imports/{id}/back
func (h *ImportHandlers) HandleBack(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(wiz *csvimport.Wizard) error { return wiz.BackToMapping() })
}

// HandleReset empties the session and returns it to the upload step.
// POST /api/imports/{id}/reset
func (h *ImportHandlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(wiz *csvimport.Wizard) error {
		if wiz.Stage == csvimport.StageImporting {
			return worker.ErrImportInProgress
		}
		wiz.Reset()
		return nil
	})
}

// HandleCommit writes the previewed companies to the CRM. The request
// returns once the commit finished; progress can be polled meanwhile.
// POST /api/imports/{id}/commit
func (h *ImportHandlers) HandleCommit(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actors.ActorFromRequest(r)
	if err != nil {
		writeImportError(w, err)
		return
	}
	wiz, err := h.runner.Run(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeImportError(w, err)
		return
	}
	httputil.OK(w, newSessionView(wiz))
}

// HandleProgress reports commit progress.
// GET /api/imports/{id}/progress
func (h *ImportHandlers) HandleProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wiz, ok := h.load(w, r)
	if !ok {
		return
	}
	p, err := h.sessions.GetProgress(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"stage":   wiz.Stage,
		"current": p.Current,
		"total":   p.Total,
	})
}

// HandleJob returns the journal entry of the session's last commit.
// GET /api/imports/{id}/job
func (h *ImportHandlers) HandleJob(w http.ResponseWriter, r *http.Request) {
	wiz, ok := h.load(w, r)
	if !ok {
		return
	}
	if h.jobs == nil || wiz.JobID == "" {
		writeImportError(w, domain.ErrImportJobNotFound)
		return
	}
	job, err := h.jobs.Get(r.Context(), wiz.JobID)
	if err != nil {
		writeImportError(w, err)
		return
	}
	httputil.OK(w, job)
}

// HandleDelete discards the session.
// DELETE /api/imports/{id}
func (h *ImportHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	wiz, ok := h.load(w, r)
	if !ok {
		return
	}
	if wiz.Stage == csvimport.StageImporting {
		writeImportError(w, worker.ErrImportInProgress)
		return
	}
	if err := h.sessions.Delete(r.Context(), wiz.ID); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}
