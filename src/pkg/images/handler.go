package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	oapi "github.com/oapi-codegen/runtime"
	"github.com/q-controller/imagestore/src/pkg/images/journal"
	"github.com/q-controller/imagestore/src/pkg/images/storage"
	"github.com/q-controller/imagestore/src/pkg/images/upload"
)

const maxFormMemory = 32 << 20

type Handler struct {
	svc      ImageService
	upgrader websocket.Upgrader
}

type imageResponse struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

type uploadResponse struct {
	SessionID  string        `json:"session_id"`
	Image      imageResponse `json:"image"`
	StatusCode int           `json:"status_code"`
	Body       string        `json:"body"`
}

func toResponse(record storage.ImageRecord) imageResponse {
	return imageResponse{URI: record.URI, Name: record.DisplayName()}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		slog.Warn("Failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrStorageUnavailable), errors.Is(err, ErrUploadNotConfigured):
		status = http.StatusServiceUnavailable
	case errors.Is(err, upload.ErrUploadFailed):
		status = http.StatusBadGateway
	}
	http.Error(w, err.Error(), status)
}

func imageName(pathParams map[string]string) (string, error) {
	var name string
	if err := oapi.BindStyledParameterWithOptions("simple", "name", pathParams["name"], &name, oapi.BindStyledParameterOptions{
		ParamLocation: oapi.ParamLocationPath,
		Explode:       false,
		Required:      true,
	}); err != nil {
		return "", err
	}
	return name, nil
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	refresh := true
	if err := oapi.BindQueryParameter("form", true, false, "refresh", r.URL.Query(), &refresh); err != nil {
		http.Error(w, fmt.Sprintf("invalid refresh parameter: %s", err.Error()), http.StatusBadRequest)
		return
	}

	records, listErr := h.svc.List(r.Context(), refresh)
	if listErr != nil {
		writeError(w, listErr)
		return
	}

	images := make([]imageResponse, 0, len(records))
	for _, record := range records {
		images = append(images, toResponse(record))
	}
	writeJSON(w, http.StatusOK, map[string][]imageResponse{"images": images})
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	if parseErr := r.ParseMultipartForm(maxFormMemory); parseErr != nil {
		http.Error(w, fmt.Sprintf("failed to parse form: %s", parseErr.Error()), http.StatusBadRequest)
		return
	}

	file, _, fileErr := r.FormFile(upload.FieldName)
	if fileErr != nil {
		http.Error(w, "Failed to retrieve file: "+fileErr.Error(), http.StatusBadRequest)
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("Failed to close file", "error", err)
		}
	}()

	staged, stageErr := stage(file)
	if stageErr != nil {
		http.Error(w, "Failed to stage file: "+stageErr.Error(), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.RemoveAll(filepath.Dir(staged)); err != nil {
			slog.Warn("Failed to remove staged file", "error", err)
		}
	}()

	record, addErr := h.svc.Add(r.Context(), staged)
	if addErr != nil {
		writeError(w, addErr)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(record))
}

func stage(r io.Reader) (string, error) {
	dir, dirErr := os.MkdirTemp("", "imagestore-post-*")
	if dirErr != nil {
		return "", dirErr
	}

	path := filepath.Join(dir, "upload")
	file, createErr := os.Create(path)
	if createErr != nil {
		return "", errors.Join(createErr, os.RemoveAll(dir))
	}
	if _, copyErr := io.Copy(file, r); copyErr != nil {
		return "", errors.Join(copyErr, file.Close(), os.RemoveAll(dir))
	}
	if closeErr := file.Close(); closeErr != nil {
		return "", errors.Join(closeErr, os.RemoveAll(dir))
	}
	return path, nil
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	name, nameErr := imageName(pathParams)
	if nameErr != nil {
		http.Error(w, "Missing name parameter: "+nameErr.Error(), http.StatusBadRequest)
		return
	}

	if err := h.svc.Remove(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Content(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	name, nameErr := imageName(pathParams)
	if nameErr != nil {
		http.Error(w, "Missing name parameter: "+nameErr.Error(), http.StatusBadRequest)
		return
	}

	reader, _, openErr := h.svc.Open(r.Context(), name)
	if openErr != nil {
		writeError(w, openErr)
		return
	}
	defer func() {
		if err := reader.Close(); err != nil {
			slog.Warn("Failed to close image", "image", name, "error", err)
		}
	}()

	w.Header().Set("Content-Type", "image/jpeg")
	if _, err := io.Copy(w, reader); err != nil {
		slog.Warn("Failed to stream image", "image", name, "error", err)
	}
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	name, nameErr := imageName(pathParams)
	if nameErr != nil {
		http.Error(w, "Missing name parameter: "+nameErr.Error(), http.StatusBadRequest)
		return
	}

	outcome, uploadErr := h.svc.Upload(r.Context(), name)
	if uploadErr != nil {
		writeError(w, uploadErr)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		SessionID:  outcome.SessionID,
		Image:      toResponse(outcome.Image),
		StatusCode: outcome.Result.StatusCode,
		Body:       string(outcome.Result.Body),
	})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	name, nameErr := imageName(pathParams)
	if nameErr != nil {
		http.Error(w, "Missing name parameter: "+nameErr.Error(), http.StatusBadRequest)
		return
	}

	entries, historyErr := h.svc.History(r.Context(), name)
	if historyErr != nil {
		writeError(w, historyErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]journal.Entry{"uploads": entries})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// Events streams busy transitions over a websocket, starting with the
// current state.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	conn, upgradeErr := h.upgrader.Upgrade(w, r, nil)
	if upgradeErr != nil {
		slog.Warn("Failed to upgrade connection", "error", upgradeErr)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("Failed to close websocket", "error", err)
		}
	}()

	events := h.svc.Subscribe()
	defer h.svc.Unsubscribe(events)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	status := h.svc.Status()
	if err := conn.WriteJSON(upload.BusyEvent{Busy: status.Busy, Active: status.Active, Timestamp: time.Now().UnixMilli()}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				slog.Debug("Failed to send event", "error", err)
				return
			}
		}
	}
}

// Register adds the image routes under prefix (e.g. /v1).
func (h *Handler) Register(mux *runtime.ServeMux, prefix string) error {
	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{http.MethodGet, "/images", h.Get},
		{http.MethodPost, "/images", h.Post},
		{http.MethodDelete, "/images/{name}", h.Delete},
		{http.MethodGet, "/images/{name}/content", h.Content},
		{http.MethodPost, "/images/{name}/upload", h.Upload},
		{http.MethodGet, "/images/{name}/uploads", h.History},
		{http.MethodGet, "/status", h.Status},
		{http.MethodGet, "/events", h.Events},
	}

	for _, route := range routes {
		if err := mux.HandlePath(route.method, prefix+route.pattern, route.handler); err != nil {
			return fmt.Errorf("failed to register %s %s: %w", route.method, route.pattern, err)
		}
	}
	return nil
}

func CreateHandler(svc ImageService) (*Handler, error) {
	if svc == nil {
		return nil, fmt.Errorf("image service is required")
	}
	return &Handler{
		svc: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}
