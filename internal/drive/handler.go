package drive

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// Handler exposes Drive imports on the operations listener.
type Handler struct {
	source        FileSource
	ingestService *IngestService
	folderID      string
}

func NewHandler(source FileSource, ingestService *IngestService, defaultFolderID string) *Handler {
	return &Handler{
		source:        source,
		ingestService: ingestService,
		folderID:      defaultFolderID,
	}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ops/drive/files", h.ListFiles).Methods(http.MethodGet)
	router.HandleFunc("/ops/drive/import", h.Import).Methods(http.MethodPost)
}

func (h *Handler) folder(r *http.Request) string {
	if id := r.URL.Query().Get("folderId"); id != "" {
		return id
	}
	return h.folderID
}

func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.source.ListFiles(r.Context(), h.folder(r))
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// Import ingests one file when fileId and name are given, otherwise the whole
// folder.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var (
		results []ImportResult
		err     error
	)
	if fileID := query.Get("fileId"); fileID != "" {
		name := query.Get("name")
		if name == "" {
			name = fileID + ".csv"
		}
		var result ImportResult
		result, err = h.ingestService.IngestFile(r.Context(), &File{ID: fileID, Name: name})
		if err == nil {
			results = append(results, result)
		}
	} else {
		results, err = h.ingestService.IngestFolder(r.Context(), h.folder(r))
	}

	if err != nil {
		log.Error().Err(err).Msg("Drive import failed")
		status := http.StatusBadGateway
		if errors.Is(err, domain.ErrInvalidInput) {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, map[string]any{"error": err.Error(), "imported": results})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "imported": results})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
