package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/pliu/smartaid/internal/ai"
	"github.com/pliu/smartaid/internal/ingest"
	"github.com/pliu/smartaid/internal/store"
)

// AIService is the part of the AI gateway used by handlers. It never fails;
// degraded results carry fallback texts.
type AIService interface {
	Chat(ctx context.Context, userID int, message string) string
	MoodSuggestion(ctx context.Context, userID int, mood, notes string) string
	SummarizeAndFlashcard(ctx context.Context, userID int, text, title string) ai.StudyResult
}

// AIHandler serves the assistant, mood log and study tool endpoints. AI is
// nil when no API key is configured.
type AIHandler struct {
	Store store.Store
	AI    AIService
}

type chatRequest struct {
	Message string `json:"message" validate:"required,notblank,max=2000"`
}

type chatResponse struct {
	Response string `json:"response"`
}

func (h *AIHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if h.AI == nil {
		respondWithError(w, r, http.StatusInternalServerError, ai.ErrMissingCredential.Error(), nil)
		return
	}
	respondWithJSON(w, http.StatusOK, chatResponse{Response: h.AI.Chat(r.Context(), userID, req.Message)})
}

// multipart overhead allowed on top of the file itself
const formOverhead = 1 << 20

// StudyTools turns an uploaded PDF into a summary and flashcards.
func (h *AIHandler) StudyTools(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if h.AI == nil {
		respondWithError(w, r, http.StatusInternalServerError, ai.ErrMissingCredential.Error(), nil)
		return
	}

	file, header, ok := formPDF(w, r, "pdf_file")
	if !ok {
		return
	}
	defer file.Close()

	text := ingest.ExtractText(file)
	if !ingest.Sufficient(text) {
		respondWithError(w, r, http.StatusBadRequest,
			"Could not extract text from the PDF file. Check if it's a valid text-based PDF.", nil)
		return
	}

	result := h.AI.SummarizeAndFlashcard(r.Context(), userID, ingest.Truncate(text), header.Filename)
	if result.Error != "" {
		respondWithError(w, r, http.StatusInternalServerError, result.Error, result.Err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// formPDF returns the uploaded file under field, enforcing the upload size
// limit. On failure it writes the 400 response.
func formPDF(w http.ResponseWriter, r *http.Request, field string) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, ingest.MaxUploadSize+formOverhead)
	if err := r.ParseMultipartForm(ingest.MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, r, http.StatusBadRequest, "File size exceeds 10MB limit.", nil)
			return nil, nil, false
		}
		respondWithError(w, r, http.StatusBadRequest, "No PDF file uploaded.", err)
		return nil, nil, false
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		respondWithError(w, r, http.StatusBadRequest, "No PDF file uploaded.", nil)
		return nil, nil, false
	}
	if header.Size > ingest.MaxUploadSize {
		file.Close()
		respondWithError(w, r, http.StatusBadRequest, "File size exceeds 10MB limit.", nil)
		return nil, nil, false
	}
	return file, header, true
}
