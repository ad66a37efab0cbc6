package collab

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestCreateRoom(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.Method, "POST")
		assert.Equal(t, r.URL.Path, "/v1/rooms")

		adminKey, adminSecret, ok := r.BasicAuth()
		assert.Equal(t, ok, true)
		assert.Equal(t, adminKey, "adminkey")
		assert.Equal(t, adminSecret, "adminsecret")

		bodyBytes, err := io.ReadAll(r.Body)
		assert.Equal(t, err, nil)
		args := &CreateRoomArgs{}
		assert.Equal(t, json.Unmarshal(bodyBytes, args), nil)
		assert.Equal(t, args.Name, "demo")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&CreateRoomResult{Name: "demo", Sid: "RM_demo"})
	}))
	defer server.Close()

	roomApi := NewRoomApi(server.URL, "adminkey", "adminsecret")
	defer roomApi.Close()

	result, err := roomApi.CreateRoomSync(&CreateRoomArgs{Name: "demo"})
	assert.Equal(t, err, nil)
	assert.Equal(t, result.Name, "demo")
	assert.Equal(t, result.Sid, "RM_demo")
}

func TestCreateRoomBearerAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.Header.Get("Authorization"), "Bearer admin-jwt")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	roomApi := NewRoomApi(server.URL, "adminkey", "adminsecret")
	defer roomApi.Close()
	roomApi.SetBearerToken("admin-jwt")

	_, err := roomApi.CreateRoomSync(&CreateRoomArgs{Name: "demo"})
	assert.Equal(t, err, nil)
}

func TestCreateRoomNonSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "room already exists", http.StatusConflict)
	}))
	defer server.Close()

	roomApi := NewRoomApi(server.URL, "adminkey", "adminsecret")
	defer roomApi.Close()

	// reportable, not fatal: the caller connects regardless
	_, err := roomApi.CreateRoomSync(&CreateRoomArgs{Name: "demo"})
	var transportErr *TransportError
	assert.Equal(t, errors.As(err, &transportErr), true)
	assert.Equal(t, transportErr.Status, http.StatusConflict)
}

func TestCreateRoomWsUrlInput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// a ws:// input derives the http admin base
	wsUrl := NormalizeWsUrl(server.URL)
	roomApi := NewRoomApi(wsUrl, "adminkey", "adminsecret")
	defer roomApi.Close()

	_, err := roomApi.CreateRoomSync(&CreateRoomArgs{Name: "demo"})
	assert.Equal(t, err, nil)
}

func TestCreateRoomAsync(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&CreateRoomResult{Name: "demo"})
	}))
	defer server.Close()

	roomApi := NewRoomApi(server.URL, "adminkey", "adminsecret")
	defer roomApi.Close()

	callback, c := NewBlockingApiCallback[*CreateRoomResult]()
	roomApi.CreateRoom(&CreateRoomArgs{Name: "demo"}, callback)

	select {
	case result := <-c:
		assert.Equal(t, result.Error, nil)
		assert.Equal(t, result.Result.Name, "demo")
	case <-time.After(5 * time.Second):
		t.Fatal("no callback")
	}
}

func TestRoomApiAlternatePath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.URL.Path, "/admin/v1/rooms")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	roomApi := NewRoomApi(server.URL, "adminkey", "adminsecret")
	defer roomApi.Close()
	roomApi.settings.RoomsPath = "/admin/v1/rooms"

	_, err := roomApi.CreateRoomSync(&CreateRoomArgs{Name: "demo"})
	assert.Equal(t, err, nil)
}
