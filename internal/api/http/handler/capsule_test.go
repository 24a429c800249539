package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	httpctx "github.com/capsulevault/capsule-server/internal/api/http/context"
	"github.com/capsulevault/capsule-server/internal/model"
	"github.com/capsulevault/capsule-server/internal/scheduler"
	"github.com/capsulevault/capsule-server/internal/testutil"
)

// MockCapsuleService mocks the CapsuleService interface
type MockCapsuleService struct {
	mock.Mock
}

func (m *MockCapsuleService) ListCapsules(ctx context.Context, username string) ([]model.Capsule, error) {
	args := m.Called(ctx, username)
	return args.Get(0).([]model.Capsule), args.Error(1)
}

func (m *MockCapsuleService) LockCapsule(ctx context.Context, params model.LockCapsuleParams) (model.Capsule, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(model.Capsule), args.Error(1)
}

func (m *MockCapsuleService) OpenCapsule(ctx context.Context, username string, capsuleID int64) (model.Capsule, error) {
	args := m.Called(ctx, username, capsuleID)
	return args.Get(0).(model.Capsule), args.Error(1)
}

func (m *MockCapsuleService) PruneExpired(ctx context.Context, username string) (int, error) {
	args := m.Called(ctx, username)
	return args.Int(0), args.Error(1)
}

func (m *MockCapsuleService) GetImage(ctx context.Context, username string, capsuleID int64) (io.ReadCloser, error) {
	args := m.Called(ctx, username, capsuleID)
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

var ctxMgr = httpctx.NewManager()

func newCapsuleHandler(service CapsuleService) *Capsule {
	lifecycle := scheduler.New(service.(scheduler.CapsuleSource), 10*time.Millisecond, testutil.MakeNoopLogger())
	return NewCapsule(service, lifecycle, ctxMgr, testutil.MakeNoopLogger())
}

func authedRequest(r *http.Request, username string) *http.Request {
	return r.WithContext(ctxMgr.SetUsernameToContext(r.Context(), username))
}

func TestCapsuleHandler_List(t *testing.T) {
	service := &MockCapsuleService{}
	service.On("ListCapsules", mock.Anything, "alice").Return([]model.Capsule{
		{ID: 1, Message: "sealed", UnlockAt: time.Now().Add(time.Hour), State: model.CapsuleStateLocked},
	}, nil)
	h := newCapsuleHandler(service)

	rec := httptest.NewRecorder()
	h.List(rec, authedRequest(httptest.NewRequest(http.MethodGet, "/v1/capsules", nil), "alice"))

	require.Equal(t, http.StatusOK, rec.Code)

	var views []scheduler.CapsuleView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, scheduler.ViewStateLocked, views[0].State)
	assert.Empty(t, views[0].Message, "locked content must not leak through the list")
}

func TestCapsuleHandler_List_Unauthorized(t *testing.T) {
	h := newCapsuleHandler(&MockCapsuleService{})

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/v1/capsules", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func newLockRequest(t *testing.T, message, unlockAt string, image []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("message", message))
	require.NoError(t, writer.WriteField("unlock_at", unlockAt))
	if image != nil {
		part, err := writer.CreateFormFile("image", "photo.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/capsules", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestCapsuleHandler_Lock(t *testing.T) {
	unlockAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	service := &MockCapsuleService{}
	service.On("LockCapsule", mock.Anything, mock.MatchedBy(func(p model.LockCapsuleParams) bool {
		return p.Username == "alice" && p.Message == "hi" && p.UnlockAt.Equal(unlockAt) && p.Image == nil
	})).Return(model.Capsule{ID: 1, UnlockAt: unlockAt, State: model.CapsuleStateLocked}, nil)
	h := newCapsuleHandler(service)

	rec := httptest.NewRecorder()
	h.Lock(rec, authedRequest(newLockRequest(t, "hi", unlockAt.Format(time.RFC3339), nil), "alice"))

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp lockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.ID)
}

func TestCapsuleHandler_Lock_WithImage(t *testing.T) {
	unlockAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	service := &MockCapsuleService{}
	service.On("LockCapsule", mock.Anything, mock.MatchedBy(func(p model.LockCapsuleParams) bool {
		return p.Image != nil
	})).Return(model.Capsule{ID: 2, UnlockAt: unlockAt, ImageKey: "k", State: model.CapsuleStateLocked}, nil)
	h := newCapsuleHandler(service)

	rec := httptest.NewRecorder()
	h.Lock(rec, authedRequest(newLockRequest(t, "hi", unlockAt.Format(time.RFC3339), []byte{0x89, 0x50}), "alice"))

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCapsuleHandler_Lock_BadTimestamp(t *testing.T) {
	h := newCapsuleHandler(&MockCapsuleService{})

	rec := httptest.NewRecorder()
	h.Lock(rec, authedRequest(newLockRequest(t, "hi", "tomorrow-ish", nil), "alice"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCapsuleHandler_Lock_ValidationError(t *testing.T) {
	unlockAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	service := &MockCapsuleService{}
	service.On("LockCapsule", mock.Anything, mock.Anything).Return(model.Capsule{}, model.ErrInvalidInput)
	h := newCapsuleHandler(service)

	rec := httptest.NewRecorder()
	h.Lock(rec, authedRequest(newLockRequest(t, "", unlockAt.Format(time.RFC3339), nil), "alice"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func openRequest(username, id string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/capsules/"+id+"/open", nil)
	req = mux.SetURLVars(req, map[string]string{"id": id})
	return authedRequest(req, username)
}

func TestCapsuleHandler_Open(t *testing.T) {
	openedAt := time.Now().UTC().Truncate(time.Second)
	service := &MockCapsuleService{}
	service.On("OpenCapsule", mock.Anything, "alice", int64(3)).Return(model.Capsule{
		ID:       3,
		Message:  "surprise",
		State:    model.CapsuleStateOpened,
		OpenedAt: &openedAt,
	}, nil)
	h := newCapsuleHandler(service)

	rec := httptest.NewRecorder()
	h.Open(rec, openRequest("alice", "3"))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp openResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "surprise", resp.Message)
	assert.Equal(t, string(model.CapsuleStateOpened), resp.State)
}

func TestCapsuleHandler_Open_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{name: "not found", serviceErr: model.ErrNotFound, wantStatus: http.StatusNotFound},
		{name: "too early", serviceErr: model.ErrNotYetUnlockable, wantStatus: http.StatusConflict},
		{name: "already opened", serviceErr: model.ErrAlreadyOpened, wantStatus: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &MockCapsuleService{}
			service.On("OpenCapsule", mock.Anything, "alice", int64(3)).Return(model.Capsule{}, tt.serviceErr)
			h := newCapsuleHandler(service)

			rec := httptest.NewRecorder()
			h.Open(rec, openRequest("alice", "3"))

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestCapsuleHandler_Image(t *testing.T) {
	service := &MockCapsuleService{}
	service.On("GetImage", mock.Anything, "alice", int64(1)).
		Return(io.NopCloser(strings.NewReader("image-bytes")), nil)
	h := newCapsuleHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/v1/capsules/1/image", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	h.Image(rec, authedRequest(req, "alice"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image-bytes", rec.Body.String())
}

func TestCapsuleHandler_Watch_StreamsSnapshots(t *testing.T) {
	service := &MockCapsuleService{}
	service.On("PruneExpired", mock.Anything, "alice").Return(0, nil)
	service.On("ListCapsules", mock.Anything, "alice").Return([]model.Capsule{
		{ID: 1, UnlockAt: time.Now().Add(time.Hour), State: model.CapsuleStateLocked},
	}, nil)
	h := newCapsuleHandler(service)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/v1/capsules/watch", nil).WithContext(ctx)
	req = authedRequest(req, "alice")
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Watch(rec, req)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not terminate after context cancellation")
	}

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	scanner := bufio.NewScanner(rec.Body)
	var events int
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		events++
		var snapshot scheduler.Snapshot
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snapshot))
		assert.Equal(t, "alice", snapshot.Username)
		require.Len(t, snapshot.Capsules, 1)
	}
	assert.GreaterOrEqual(t, events, 1, "at least one tick snapshot must be streamed")
}
