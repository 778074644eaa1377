// Package ingest turns uploaded PDF documents into plain text for the AI
// study tools.
package ingest

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/pliu/smartaid/internal/logging"
)

const (
	// MaxUploadSize bounds the bytes read from an upload.
	MaxUploadSize = 10 << 20
	// MinTextLength is the least amount of extracted text worth summarizing.
	MinTextLength = 50
	// MaxTextLength caps the text sent to the completion service, in runes.
	MaxTextLength = 15000
)

// ExtractText returns the normalized plain text of every readable page.
// It never fails: unreadable input yields "" and bad pages are skipped.
func ExtractText(r io.Reader) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Warn().Str("panic", fmt.Sprint(rec)).Msg("PDF parser panicked")
			text = ""
		}
	}()

	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize))
	if err != nil || len(data) == 0 {
		return ""
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		logging.Debug().Err(err).Msg("Could not open PDF")
		return ""
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		if pageText := pageText(reader, i); pageText != "" {
			pages = append(pages, pageText)
		}
	}
	return strings.Join(pages, "\n")
}

func pageText(reader *pdf.Reader, num int) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Debug().Int("page", num).Str("panic", fmt.Sprint(rec)).Msg("Skipping unreadable PDF page")
			text = ""
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return ""
	}
	raw, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return normalizeText(raw)
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// Sufficient reports whether text is long enough to process.
func Sufficient(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) >= MinTextLength
}

// Truncate caps text at MaxTextLength runes.
func Truncate(text string) string {
	if utf8.RuneCountInString(text) <= MaxTextLength {
		return text
	}
	return string([]rune(text)[:MaxTextLength])
}
