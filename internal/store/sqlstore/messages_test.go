package sqlstore

import (
	"fmt"
	"testing"
	"time"

	"github.com/pliu/smartaid/internal/models"
)

func setupGroup(t *testing.T) (*models.User, *models.StudyGroup) {
	t.Helper()
	u := mustCreateUser(t, "user1")
	g := &models.StudyGroup{Name: "Calculus", CreatedBy: u.ID}
	if err := testStore.CreateGroup(g); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	return u, g
}

func TestSaveMessage(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	u, g := setupGroup(t)
	at := time.Date(2024, 1, 1, 10, 0, 0, 123456789, time.UTC)

	msg, err := testStore.SaveMessage(g.ID, u.ID, "Hello", at)
	if err != nil {
		t.Fatalf("Failed to save message: %v", err)
	}
	if msg.Username != "user1" {
		t.Errorf("Expected username user1, got %s", msg.Username)
	}
	if !msg.Timestamp.Equal(at.Truncate(time.Microsecond)) {
		t.Errorf("Expected timestamp truncated to microseconds, got %v", msg.Timestamp)
	}

	messages, err := testStore.RecentMessages(g.ID, 50)
	if err != nil {
		t.Fatalf("Failed to get messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}
	if messages[0].Content != "Hello" || !messages[0].Timestamp.Equal(msg.Timestamp) {
		t.Errorf("Unexpected stored message: %+v", messages[0])
	}
}

func TestSaveMessageFailureStoresNothing(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	_, g := setupGroup(t)
	if _, err := testStore.SaveMessage(g.ID, 9999, "ghost", time.Now()); err == nil {
		t.Fatal("Expected an error for an unknown author")
	}

	messages, err := testStore.RecentMessages(g.ID, 50)
	if err != nil {
		t.Fatalf("Failed to get messages: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("Expected no stored messages, got %+v", messages)
	}
	var rows int
	if err := testStore.db.QueryRow("SELECT COUNT(*) FROM group_messages").Scan(&rows); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if rows != 0 {
		t.Errorf("Expected no message rows, got %d", rows)
	}
}

func TestRecentMessagesReturnsLastNAscending(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	u, g := setupGroup(t)
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		testStore.SaveMessage(g.ID, u.ID, fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Second))
	}

	messages, err := testStore.RecentMessages(g.ID, 50)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(messages) != 50 {
		t.Fatalf("Expected 50 messages, got %d", len(messages))
	}
	if messages[0].Content != "m10" || messages[49].Content != "m59" {
		t.Errorf("Expected m10..m59, got %s..%s", messages[0].Content, messages[49].Content)
	}
}

func TestMessagesSinceIsStrict(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	u, g := setupGroup(t)
	t1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(5 * time.Second)
	testStore.SaveMessage(g.ID, u.ID, "hi", t1)
	testStore.SaveMessage(g.ID, u.ID, "anyone?", t2)

	messages, err := testStore.MessagesSince(g.ID, t1)
	if err != nil {
		t.Fatalf("MessagesSince failed: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "anyone?" {
		t.Errorf("Expected only the later message, got %+v", messages)
	}

	messages, _ = testStore.MessagesSince(g.ID, t2)
	if len(messages) != 0 {
		t.Errorf("Expected no messages after the last timestamp, got %d", len(messages))
	}

	// A cursor between two stored microseconds must not drop the next message.
	messages, _ = testStore.MessagesSince(g.ID, t2.Add(-500*time.Nanosecond))
	if len(messages) != 1 {
		t.Errorf("Expected sub-microsecond cursor to return the message, got %d", len(messages))
	}
}

func TestMessagesAreGroupScoped(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	u, g := setupGroup(t)
	other := &models.StudyGroup{Name: "Other", CreatedBy: u.ID}
	testStore.CreateGroup(other)
	testStore.SaveMessage(other.ID, u.ID, "elsewhere", now())

	messages, _ := testStore.RecentMessages(g.ID, 50)
	if len(messages) != 0 {
		t.Errorf("Expected no messages in group, got %d", len(messages))
	}
}
