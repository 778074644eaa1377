package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/pliu/smartaid/internal/ai"
	"github.com/pliu/smartaid/internal/middleware"
	"github.com/pliu/smartaid/internal/models"
	"github.com/pliu/smartaid/internal/store/sqlstore"
)

func newTestStore(t *testing.T) *sqlstore.SQLStore {
	t.Helper()
	st, err := sqlstore.New("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func createUser(t *testing.T, st *sqlstore.SQLStore, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@example.com", Password: "hash"}
	if err := st.CreateUser(u); err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", username, err)
	}
	return u
}

// jsonRequest builds a request with a JSON body, authenticated as userID
// unless it is 0.
func jsonRequest(t *testing.T, method, target string, userID int, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
}

// fakeAI is an AIService with canned answers.
type fakeAI struct {
	mu         sync.Mutex
	reply      string
	suggestion string
	study      ai.StudyResult
	moodCalls  int
	gotText    string
	gotTitle   string
}

func (f *fakeAI) Chat(ctx context.Context, userID int, message string) string {
	return f.reply
}

func (f *fakeAI) MoodSuggestion(ctx context.Context, userID int, mood, notes string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moodCalls++
	return f.suggestion
}

func (f *fakeAI) SummarizeAndFlashcard(ctx context.Context, userID int, text, title string) ai.StudyResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotText = text
	f.gotTitle = title
	res := f.study
	res.Title = title
	return res
}
