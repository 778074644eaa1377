package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pliu/smartaid/internal/logging"
	"github.com/pliu/smartaid/internal/models"
	"github.com/pliu/smartaid/internal/storage"
	"github.com/pliu/smartaid/internal/store"
	"github.com/pliu/smartaid/internal/validation"
)

const (
	documentPrefix = "documents"
	presignExpiry  = 15 * time.Minute
	maxTitleLength = 200
)

// LibraryHandler manages the shared resource catalog. Uploaded files live in
// Objects; the catalog row only keeps the object key.
type LibraryHandler struct {
	Store   store.Store
	Objects storage.ObjectStore
}

type libraryResponse struct {
	PDFs       []models.Resource `json:"pdfs"`
	Flashcards []models.Resource `json:"flashcards"`
	Videos     []models.Resource `json:"videos"`
}

type flashcardRequest struct {
	DeckName  string `json:"deck_name" validate:"required,notblank,max=150"`
	CardCount int    `json:"card_count" validate:"gte=0"`
}

type videoRequest struct {
	Topic string `json:"topic" validate:"required,notblank,max=150"`
	URL   string `json:"url" validate:"required,http_url"`
}

func fileURL(id int) string {
	return "/resources/" + strconv.Itoa(id) + "/file"
}

func (h *LibraryHandler) List(w http.ResponseWriter, r *http.Request) {
	resources, err := h.Store.ListResources()
	if err != nil {
		internalError(w, r, err)
		return
	}

	resp := libraryResponse{
		PDFs:       []models.Resource{},
		Flashcards: []models.Resource{},
		Videos:     []models.Resource{},
	}
	for _, res := range resources {
		if res.FileKey != "" {
			res.FileURL = fileURL(res.ID)
		}
		switch res.ResourceType {
		case models.ResourcePDF:
			resp.PDFs = append(resp.PDFs, res)
		case models.ResourceFlashcard:
			resp.Flashcards = append(resp.Flashcards, res)
		case models.ResourceVideo:
			resp.Videos = append(resp.Videos, res)
		}
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *LibraryHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	file, header, ok := formPDF(w, r, "pdf_file")
	if !ok {
		return
	}
	defer file.Close()

	title := strings.TrimSpace(r.FormValue("title"))
	switch {
	case title == "":
		respondWithFieldErrors(w, validation.FieldErrors{"title": "This field is required."})
		return
	case utf8.RuneCountInString(title) > maxTitleLength:
		respondWithFieldErrors(w, validation.FieldErrors{"title": fmt.Sprintf("Ensure this field has no more than %d characters.", maxTitleLength)})
		return
	}

	key := storage.NewKey(documentPrefix, header.Filename)
	if err := h.Objects.Put(r.Context(), key, file, header.Size, "application/pdf"); err != nil {
		internalError(w, r, fmt.Errorf("store upload: %w", err))
		return
	}

	res := &models.Resource{
		Title:        title,
		Description:  "Uploaded via Study Tools on " + header.Filename,
		ResourceType: models.ResourcePDF,
		FileKey:      key,
	}
	if err := h.Store.CreateResource(res); err != nil {
		if delErr := h.Objects.Delete(r.Context(), key); delErr != nil {
			logging.Ctx(r.Context()).Warn().Err(delErr).Str("key", key).Msg("Could not remove orphaned upload")
		}
		internalError(w, r, err)
		return
	}
	res.FileURL = fileURL(res.ID)
	respondWithJSON(w, http.StatusCreated, res)
}

func (h *LibraryHandler) SaveFlashcard(w http.ResponseWriter, r *http.Request) {
	var req flashcardRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.create(w, r, &models.Resource{
		Title:        "Flashcard Deck: " + strings.TrimSpace(req.DeckName),
		Description:  fmt.Sprintf("Generated Deck with %d cards.", req.CardCount),
		ResourceType: models.ResourceFlashcard,
	})
}

func (h *LibraryHandler) SaveVideo(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.create(w, r, &models.Resource{
		Title:        "Video: " + strings.TrimSpace(req.Topic),
		Description:  "Saved external video link.",
		ResourceType: models.ResourceVideo,
		URL:          req.URL,
	})
}

func (h *LibraryHandler) create(w http.ResponseWriter, r *http.Request, res *models.Resource) {
	if err := h.Store.CreateResource(res); err != nil {
		internalError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, res)
}

// File redirects to a presigned URL when the backend supports it and
// streams the object otherwise.
func (h *LibraryHandler) File(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.Store.GetResource(id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && res.FileKey == "") {
		respondWithError(w, r, http.StatusNotFound, "Not found.", nil)
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}

	url, err := h.Objects.PresignGet(r.Context(), res.FileKey, presignExpiry)
	if err == nil {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	if !errors.Is(err, storage.ErrPresignUnsupported) {
		internalError(w, r, err)
		return
	}

	obj, err := h.Objects.Get(r.Context(), res.FileKey)
	if errors.Is(err, storage.ErrNotFound) {
		respondWithError(w, r, http.StatusNotFound, "Not found.", nil)
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", res.Title+".pdf"))
	if _, err := io.Copy(w, obj); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Int("resource_id", id).Msg("Error streaming resource file")
	}
}
