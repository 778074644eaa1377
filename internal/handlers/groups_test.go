package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pliu/smartaid/internal/auth"
	"github.com/pliu/smartaid/internal/middleware"
	"github.com/pliu/smartaid/internal/models"
	"github.com/pliu/smartaid/internal/store/sqlstore"
	"github.com/pliu/smartaid/internal/ws"
)

type groupFixture struct {
	store    *sqlstore.SQLStore
	broker   *ws.LocalBroker
	signer   *auth.CookieSigner
	router   *mux.Router
	creator  *models.User
	member   *models.User
	outsider *models.User
	group    *models.StudyGroup
}

func setupGroups(t *testing.T, groupName string) *groupFixture {
	t.Helper()
	st := newTestStore(t)
	broker := ws.NewLocalBroker()
	hub := ws.NewHub(st, broker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	f := &groupFixture{
		store:    st,
		broker:   broker,
		signer:   auth.NewCookieSigner("test-secret"),
		creator:  createUser(t, st, "creator"),
		member:   createUser(t, st, "member"),
		outsider: createUser(t, st, "outsider"),
	}
	f.group = &models.StudyGroup{Name: groupName, Description: "weekly problem sets", CreatedBy: f.creator.ID}
	require.NoError(t, st.CreateGroup(f.group))
	_, err := st.AddMember(f.group.ID, f.member.ID)
	require.NoError(t, err)

	h := &GroupHandler{Store: st, Hub: hub}
	r := mux.NewRouter()
	r.Use(middleware.Auth(f.signer))
	pc := r.PathPrefix("/peer-connect").Subrouter()
	pc.HandleFunc("/peer_connect/", h.ListGroups).Methods("GET")
	pc.HandleFunc("/peer_connect/", h.CreateGroup).Methods("POST")
	pc.HandleFunc("/chat/{group_id}/", h.ChatRoom).Methods("GET")
	pc.HandleFunc("/chat/{group_id}/", h.SendMessage).Methods("POST")
	pc.HandleFunc("/send_message/{group_id}/", h.SendMessage).Methods("POST")
	pc.HandleFunc("/fetch_messages/{group_id}/", h.FetchMessages).Methods("GET")
	pc.HandleFunc("/join_group/{group_id}/", h.JoinGroup).Methods("POST")
	pc.HandleFunc("/leave_group/{group_id}/", h.LeaveGroup).Methods("POST")
	pc.HandleFunc("/delete_group/{group_id}/", h.DeleteGroup).Methods("POST")
	r.HandleFunc("/ws/chat/{group_name}/", h.ServeChat)
	f.router = r
	return f
}

// do sends a request as user; a nil user sends no session cookie.
func (f *groupFixture) do(t *testing.T, method, path string, user *models.User, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.AddCookie(f.signer.SessionCookie(user.ID))
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *groupFixture) path(action string) string {
	return "/peer-connect/" + action + "/" + strconv.Itoa(f.group.ID) + "/"
}

func TestListGroupsPartitionsByMembership(t *testing.T) {
	f := setupGroups(t, "Calculus")
	other := &models.StudyGroup{Name: "Algebra", CreatedBy: f.outsider.ID}
	require.NoError(t, f.store.CreateGroup(other))

	rr := f.do(t, "GET", "/peer-connect/peer_connect/", f.member, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp groupsResponse
	decodeBody(t, rr, &resp)
	require.Len(t, resp.MyGroups, 1)
	require.Len(t, resp.OtherGroups, 1)
	assert.Equal(t, "Calculus", resp.MyGroups[0].Name)
	assert.Equal(t, 2, resp.MyGroups[0].MemberCount)
	assert.Equal(t, "Algebra", resp.OtherGroups[0].Name)
	assert.Equal(t, 1, resp.OtherGroups[0].MemberCount)
}

func TestCreateGroup(t *testing.T) {
	f := setupGroups(t, "Calculus")

	rr := f.do(t, "POST", "/peer-connect/peer_connect/", f.outsider, `{"name":"Organic Chemistry","description":"labs"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var group models.StudyGroup
	decodeBody(t, rr, &group)
	assert.Equal(t, f.outsider.ID, group.CreatedBy)

	isMember, err := f.store.IsMember(group.ID, f.outsider.ID)
	require.NoError(t, err)
	assert.True(t, isMember, "creator is joined automatically")

	rr = f.do(t, "POST", "/peer-connect/peer_connect/", f.member, `{"name":"Calculus"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	var resp errorResponse
	decodeBody(t, rr, &resp)
	assert.Contains(t, resp.Fields, "name")

	rr = f.do(t, "POST", "/peer-connect/peer_connect/", f.member, `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGroupEndpointsRequireSession(t *testing.T) {
	f := setupGroups(t, "Calculus")

	rr := f.do(t, "GET", f.path("fetch_messages"), nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = f.do(t, "POST", f.path("send_message"), nil, `{"content":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	messages, err := f.store.RecentMessages(f.group.ID, 50)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestJoinAndLeaveGroup(t *testing.T) {
	f := setupGroups(t, "Calculus")

	rr := f.do(t, "POST", f.path("join_group"), f.outsider, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var status statusResponse
	decodeBody(t, rr, &status)
	assert.Equal(t, "success", status.Status)

	rr = f.do(t, "POST", f.path("join_group"), f.outsider, "")
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &status)
	assert.Equal(t, "info", status.Status)

	rr = f.do(t, "POST", f.path("leave_group"), f.outsider, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, "POST", f.path("leave_group"), f.outsider, "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	var resp errorResponse
	decodeBody(t, rr, &resp)
	assert.Equal(t, "You are not currently a member of this group.", resp.Error)

	rr = f.do(t, "POST", "/peer-connect/join_group/999/", f.outsider, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOnlyCreatorCanDeleteGroup(t *testing.T) {
	f := setupGroups(t, "Calculus")

	for _, user := range []*models.User{f.member, f.outsider} {
		rr := f.do(t, "POST", f.path("delete_group"), user, "")
		require.Equal(t, http.StatusForbidden, rr.Code)
		var resp errorResponse
		decodeBody(t, rr, &resp)
		assert.Equal(t, "You do not have permission to delete this group.", resp.Error)
	}
	_, err := f.store.GetGroup(f.group.ID)
	require.NoError(t, err, "group must survive a rejected delete")

	rr := f.do(t, "POST", f.path("delete_group"), f.creator, "")
	require.Equal(t, http.StatusOK, rr.Code)
	_, err = f.store.GetGroup(f.group.ID)
	assert.Error(t, err)
}

func TestChatRoom(t *testing.T) {
	f := setupGroups(t, "Calculus")

	rr := f.do(t, "GET", f.path("chat"), f.creator, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var room chatRoomResponse
	decodeBody(t, rr, &room)
	assert.True(t, room.IsCreator)
	assert.Equal(t, "Calculus", room.Group.Name)

	rr = f.do(t, "GET", f.path("chat"), f.member, "")
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &room)
	assert.False(t, room.IsCreator)

	rr = f.do(t, "GET", f.path("chat"), f.outsider, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestSendMessage(t *testing.T) {
	f := setupGroups(t, "Calculus")

	for _, action := range []string{"send_message", "chat"} {
		rr := f.do(t, "POST", f.path(action), f.member, `{"content":"Anyone done problem 3?"}`)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var resp sentMessageResponse
		decodeBody(t, rr, &resp)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "member", resp.Message.Username)
	}

	rr := f.do(t, "POST", f.path("send_message"), f.member, `{"content":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, "POST", f.path("send_message"), f.outsider, `{"content":"let me in"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
	var resp errorResponse
	decodeBody(t, rr, &resp)
	assert.Equal(t, "Permission denied. Not a group member.", resp.Error)

	messages, err := f.store.RecentMessages(f.group.ID, 50)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func (f *groupFixture) fetch(t *testing.T, user *models.User, lastTimestamp string) []models.GroupMessage {
	t.Helper()
	target := f.path("fetch_messages")
	if lastTimestamp != "" {
		target += "?last_timestamp=" + url.QueryEscape(lastTimestamp)
	}
	rr := f.do(t, "GET", target, user, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp messagesResponse
	decodeBody(t, rr, &resp)
	return resp.Messages
}

func TestFetchMessagesSinceTimestamp(t *testing.T) {
	f := setupGroups(t, "Calculus")

	rr := f.do(t, "POST", f.path("send_message"), f.member, `{"content":"Limits quiz moved to Friday"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var sent sentMessageResponse
	decodeBody(t, rr, &sent)
	t1 := sent.Message.Timestamp
	t0 := t1.Add(-time.Second)

	got := f.fetch(t, f.creator, t0.Format(time.RFC3339Nano))
	require.Len(t, got, 1)
	assert.Equal(t, "Limits quiz moved to Friday", got[0].Content)
	assert.Equal(t, "member", got[0].Username)
	assert.Equal(t, f.member.ID, got[0].UserID)

	assert.Empty(t, f.fetch(t, f.creator, t1.Format(time.RFC3339Nano)))
	assert.Empty(t, f.fetch(t, f.creator, t1.Format("2006-01-02T15:04:05.999999")), "naive timestamps are UTC")
	assert.Empty(t, f.fetch(t, f.creator, t1.Format("2006-01-02T15:04:05.999999-07:00")))
}

func TestFetchMessagesWithoutOrBadCursor(t *testing.T) {
	f := setupGroups(t, "Calculus")
	base := time.Now().UTC().Add(-time.Hour)
	for i := range 55 {
		_, err := f.store.SaveMessage(f.group.ID, f.member.ID, "msg "+strconv.Itoa(i), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	for _, cursor := range []string{"", "yesterday", "2024-13-45T99:00:00"} {
		got := f.fetch(t, f.member, cursor)
		require.Len(t, got, recentMessageLimit, "cursor %q", cursor)
		assert.Equal(t, "msg 5", got[0].Content)
		assert.Equal(t, "msg 54", got[len(got)-1].Content)
	}
}

func TestFetchMessagesRequiresMembership(t *testing.T) {
	f := setupGroups(t, "Calculus")

	rr := f.do(t, "GET", f.path("fetch_messages"), f.outsider, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// membership is checked on every poll
	_, err := f.store.RemoveMember(f.group.ID, f.member.ID)
	require.NoError(t, err)
	rr = f.do(t, "GET", f.path("fetch_messages"), f.member, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func (f *groupFixture) dial(t *testing.T, srv *httptest.Server, slug string, user *models.User) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if user != nil {
		c := f.signer.SessionCookie(user.ID)
		header.Set("Cookie", c.Name+"="+c.Value)
	}
	target := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/" + slug + "/"
	conn, resp, err := websocket.DefaultDialer.Dial(target, header)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func TestServeChatRejectsBeforeUpgrade(t *testing.T) {
	f := setupGroups(t, "Calculus II")
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	tests := []struct {
		name   string
		slug   string
		user   *models.User
		status int
	}{
		{"no session", "Calculus_II", nil, http.StatusUnauthorized},
		{"unknown group", "Geometry", f.member, http.StatusNotFound},
		{"not a member", "Calculus_II", f.outsider, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := f.dial(t, srv, tt.slug, tt.user)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestServeChatReceivesHTTPPostsAndClosesOnDelete(t *testing.T) {
	f := setupGroups(t, "Calculus II")
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	conn, resp, err := f.dial(t, srv, "Calculus_II", f.member)
	require.NoError(t, err)
	resp.Body.Close()
	topic := ws.Topic(f.group.ID)
	require.Eventually(t, func() bool { return f.broker.SubscriberCount(topic) == 1 }, 2*time.Second, 10*time.Millisecond)

	rr := f.do(t, "POST", f.path("send_message"), f.creator, `{"content":"Posted over HTTP"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame ws.Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "Posted over HTTP", frame.Message)
	assert.Equal(t, "creator", frame.Username)

	rr = f.do(t, "POST", f.path("delete_group"), f.creator, "")
	require.Equal(t, http.StatusOK, rr.Code)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "expected normal close, got %v", err)
}

func TestCreateGroupRejectsCollidingSlug(t *testing.T) {
	f := setupGroups(t, "Calculus")
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	rr := f.do(t, "POST", "/peer-connect/peer_connect/", f.outsider, `{"name":"Calc_1"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var group models.StudyGroup
	decodeBody(t, rr, &group)
	assert.Equal(t, "Calc_1", group.Slug)

	rr = f.do(t, "POST", "/peer-connect/peer_connect/", f.creator, `{"name":"Calc 1"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
	var resp errorResponse
	decodeBody(t, rr, &resp)
	assert.Contains(t, resp.Fields, "name")

	conn, resp2, err := f.dial(t, srv, "Calc_1", f.outsider)
	require.NoError(t, err, "the owner keeps access to their group's socket")
	resp2.Body.Close()
	conn.Close()
}

func TestLeaveGroupClosesMemberSockets(t *testing.T) {
	f := setupGroups(t, "Calculus II")
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	conn, resp, err := f.dial(t, srv, "Calculus_II", f.member)
	require.NoError(t, err)
	resp.Body.Close()
	creatorConn, resp, err := f.dial(t, srv, "Calculus_II", f.creator)
	require.NoError(t, err)
	resp.Body.Close()
	topic := ws.Topic(f.group.ID)
	require.Eventually(t, func() bool { return f.broker.SubscriberCount(topic) == 2 }, 2*time.Second, 10*time.Millisecond)

	rr := f.do(t, "POST", f.path("leave_group"), f.member, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 1, f.broker.SubscriberCount(topic))

	rr = f.do(t, "POST", f.path("send_message"), f.creator, `{"content":"after leave"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "expected normal close, got %v (data %s)", err, data)

	creatorConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err = creatorConn.ReadMessage()
	require.NoError(t, err)
	var frame ws.Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "after leave", frame.Message)
}
