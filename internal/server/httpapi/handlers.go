// Package httpapi is the HTTP surface of the server: authenticated file
// operations, ranged streaming, public links and stream sessions on a chi
// router.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/files"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/rangereader"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage"
	"github.com/dmitrijs2005/gophdrive/internal/server/tokens"
)

const maxFieldSize = 4 << 10

// multipartSlack is allowed on top of the upload limit for part headers and
// form fields.
const multipartSlack = 1 << 20

// Config carries the collaborators and limits of a Handler.
type Config struct {
	Files  *files.Service
	Tokens *tokens.Manager
	// Secret verifies caller bearer JWTs.
	Secret []byte
	// MaxUploadSize bounds the request body of an upload; zero disables it.
	MaxUploadSize int64
	// SecureCookies marks the stream-session cookie Secure.
	SecureCookies bool
	// Checks are pinged by /health.
	Checks map[string]storage.Pinger
	Logger logging.Logger
}

type Handler struct {
	files         *files.Service
	tokens        *tokens.Manager
	secret        []byte
	maxUploadSize int64
	secureCookies bool
	checks        map[string]storage.Pinger
	logger        logging.Logger
}

func NewHandler(c Config) *Handler {
	return &Handler{
		files:         c.Files,
		tokens:        c.Tokens,
		secret:        c.Secret,
		maxUploadSize: c.MaxUploadSize,
		secureCookies: c.SecureCookies,
		checks:        c.Checks,
		logger:        c.Logger.With("module", "httpapi"),
	}
}

// ObjectResponse is the JSON view of a stored object.
type ObjectResponse struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"contentType"`
	Size         int64     `json:"size"`
	ParentID     string    `json:"parentId,omitempty"`
	PersonalFile bool      `json:"personalFile"`
	IsVideo      bool      `json:"isVideo"`
	HasThumbnail bool      `json:"hasThumbnail"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toObjectResponse(o *models.StoredObject) ObjectResponse {
	return ObjectResponse{
		ID:           o.ID,
		Filename:     o.Filename,
		ContentType:  o.ContentType,
		Size:         o.Length,
		ParentID:     o.ParentID,
		PersonalFile: o.PersonalFile,
		IsVideo:      o.IsVideo,
		HasThumbnail: o.HasThumbnail,
		CreatedAt:    o.CreatedAt,
	}
}

// LinkResponse describes an issued public link.
type LinkResponse struct {
	Token     string     `json:"token"`
	URL       string     `json:"url"`
	OneTime   bool       `json:"oneTime"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func toLinkResponse(t *models.AccessToken) LinkResponse {
	return LinkResponse{
		Token:     t.Value,
		URL:       "/api/public/" + t.ObjectID + "/" + t.Value,
		OneTime:   t.Kind == models.TokenPublicOneTime,
		ExpiresAt: t.ExpiresAt,
	}
}

// PublicInfoResponse is what an anonymous holder of a link may learn.
type PublicInfoResponse struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	IsVideo     bool   `json:"isVideo"`
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartSlack)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	req := files.UploadRequest{OwnerID: UserIDFromContext(r.Context())}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			WriteError(w, http.StatusBadRequest, CodeBadRequest, "missing file part")
			return
		}
		if err != nil {
			h.failMultipart(w, r, err)
			return
		}

		switch part.FormName() {
		case "parent", "personal":
			value, err := readField(part)
			if err != nil {
				h.failMultipart(w, r, err)
				return
			}
			if part.FormName() == "parent" {
				req.ParentID = value
			} else {
				req.PersonalFile, _ = strconv.ParseBool(value)
			}
		case "file":
			req.Filename = part.FileName()
			req.ContentType = part.Header.Get("Content-Type")
			obj, err := h.files.Upload(r.Context(), req, part)
			if err != nil {
				h.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, toObjectResponse(obj))
			return
		}
		_ = part.Close()
	}
}

// failMultipart reports an error reading the multipart envelope. Apart from
// an exceeded body limit these are malformed requests.
func (h *Handler) failMultipart(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := statusFor(err); status == http.StatusRequestEntityTooLarge {
		h.fail(w, r, err)
		return
	}
	WriteError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
}

func readField(part io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldSize))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (h *Handler) info(w http.ResponseWriter, r *http.Request) {
	obj, err := h.files.Stat(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toObjectResponse(obj))
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	obj, rd, err := h.files.Download(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	setObjectHeaders(w, obj, true)
	h.serve(w, r, rd, http.StatusOK)
}

// stream serves a byte range of an object to the holder of a stream-session
// cookie. Without a Range header the whole object is returned with 200.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(common.StreamSessionCookieName)
	if err != nil || cookie.Value == "" {
		WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "missing stream session")
		return
	}
	session, err := h.tokens.ValidateStreamSession(r.Context(), cookie.Value)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	obj, err := h.files.Stat(r.Context(), session.UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	start, end, partial, err := ParseRange(r.Header.Get("Range"), obj.Length)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", obj.Length))
		h.fail(w, r, err)
		return
	}
	if !partial {
		start, end = 0, rangereader.EOF
	}

	rd, err := h.files.Open(r.Context(), obj, start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	setObjectHeaders(w, obj, false)
	status := http.StatusOK
	if partial {
		w.Header().Set("Content-Range", contentRange(start, end, obj.Length))
		status = http.StatusPartialContent
	}
	h.serve(w, r, rd, status)
}

func (h *Handler) thumbnail(w http.ResponseWriter, r *http.Request) {
	data, err := h.files.Thumbnail(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// makePublic issues a repeatable link. An optional ttl query parameter
// (a Go duration such as "2h") overrides the default lifetime.
func (h *Handler) makePublic(w http.ResponseWriter, r *http.Request) {
	var ttl time.Duration
	if v := r.URL.Query().Get("ttl"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			WriteError(w, http.StatusBadRequest, CodeBadRequest, "invalid ttl")
			return
		}
		ttl = d
	}

	t, err := h.files.MakePublic(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "id"), ttl)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLinkResponse(t))
}

func (h *Handler) makeOneTimePublic(w http.ResponseWriter, r *http.Request) {
	t, err := h.files.MakeOneTimePublic(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLinkResponse(t))
}

func (h *Handler) removeLink(w http.ResponseWriter, r *http.Request) {
	if err := h.files.RemoveLink(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) publicDownload(w http.ResponseWriter, r *http.Request) {
	obj, rd, err := h.files.PublicDownload(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "token"))
	if err != nil {
		h.failPublic(w, r, err)
		return
	}
	setObjectHeaders(w, obj, true)
	h.serve(w, r, rd, http.StatusOK)
}

func (h *Handler) publicInfo(w http.ResponseWriter, r *http.Request) {
	obj, err := h.files.PublicInfo(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "token"))
	if err != nil {
		h.failPublic(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PublicInfoResponse{
		Filename:    obj.Filename,
		ContentType: obj.ContentType,
		Size:        obj.Length,
		IsVideo:     obj.IsVideo,
	})
}

func (h *Handler) deleteObject(w http.ResponseWriter, r *http.Request) {
	if err := h.files.Delete(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// startStreamSession issues a stream-session token for the caller's device
// and hands it out as an HttpOnly cookie scoped to the file routes.
func (h *Handler) startStreamSession(w http.ResponseWriter, r *http.Request) {
	deviceID := strings.TrimSpace(r.Header.Get(common.DeviceIDHeaderName))
	if deviceID == "" {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, "missing "+common.DeviceIDHeaderName+" header")
		return
	}

	signed, t, err := h.tokens.IssueStreamSession(r.Context(), UserIDFromContext(r.Context()), deviceID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	cookie := &http.Cookie{
		Name:     common.StreamSessionCookieName,
		Value:    signed,
		Path:     "/api",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
	if t.ExpiresAt != nil {
		cookie.Expires = *t.ExpiresAt
	}
	http.SetCookie(w, cookie)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) endStreamSession(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(common.StreamSessionCookieName); err == nil && cookie.Value != "" {
		if err := h.tokens.RevokeStreamSession(r.Context(), cookie.Value); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     common.StreamSessionCookieName,
		Value:    "",
		Path:     "/api",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeDevice(w http.ResponseWriter, r *http.Request) {
	n, err := h.tokens.RevokeAllForDevice(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "deviceID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"revoked": n})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn(ctx, "health check failed", "check", name, "error", err)
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "unavailable"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

// setObjectHeaders sets the content headers of an object response.
// Content-Length is left to serve.
func setObjectHeaders(w http.ResponseWriter, obj *models.StoredObject, attachment bool) {
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if attachment {
		w.Header().Set("Content-Disposition", contentDisposition(obj.Filename))
	}
}

func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}

// serve copies rd to the client. Once headers are out a failure can only
// be signalled by aborting the connection, so a short body is never
// mistaken for a complete one.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, rd *rangereader.Reader, status int) {
	defer rd.Close()

	w.Header().Set("Content-Length", strconv.FormatInt(rd.Len(), 10))
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}

	if _, err := io.Copy(w, rd); err != nil {
		if r.Context().Err() == nil {
			h.logger.Error(r.Context(), "response aborted", "path", r.URL.Path, "error", err)
		}
		panic(http.ErrAbortHandler)
	}
}
