package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
)

const defaultHttpTimeout = 60 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

func defaultClient() *http.Client {
	// see https://medium.com/@nate510/don-t-use-go-s-default-http-client-4804cb19f779
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

type apiCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleApiCallback[R any] struct {
	callback func(result R, err error)
}

func NewApiCallback[R any](callback func(result R, err error)) apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: callback,
	}
}

func NewNoopApiCallback[R any]() apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: func(result R, err error) {},
	}
}

func (self *simpleApiCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type ApiCallbackResult[R any] struct {
	Result R
	Error  error
}

func NewBlockingApiCallback[R any]() (apiCallback[R], chan ApiCallbackResult[R]) {
	c := make(chan ApiCallbackResult[R])
	apiCallback := NewApiCallback[R](func(result R, err error) {
		c <- ApiCallbackResult[R]{
			Result: result,
			Error:  err,
		}
	})
	return apiCallback, c
}

type RoomApiSettings struct {
	// some deployments mount the admin api under /admin
	RoomsPath string
}

func DefaultRoomApiSettings() *RoomApiSettings {
	return &RoomApiSettings{
		RoomsPath: "/v1/rooms",
	}
}

// RoomApi issues out-of-band administrative requests against the room
// service, using an elevated credential distinct from a participant
// credential. Auth is either basic (admin key/secret) or a bearer admin
// token, depending on deployment.
type RoomApi struct {
	ctx    context.Context
	cancel context.CancelFunc

	adminUrl    string
	adminKey    string
	adminSecret string
	// when set, used instead of basic auth
	bearerToken string

	settings *RoomApiSettings
}

func NewRoomApi(adminUrl string, adminKey string, adminSecret string) *RoomApi {
	return NewRoomApiWithContext(context.Background(), adminUrl, adminKey, adminSecret)
}

func NewRoomApiWithContext(ctx context.Context, adminUrl string, adminKey string, adminSecret string) *RoomApi {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &RoomApi{
		ctx:         cancelCtx,
		cancel:      cancel,
		adminUrl:    AdminBaseUrl(adminUrl),
		adminKey:    adminKey,
		adminSecret: adminSecret,
		settings:    DefaultRoomApiSettings(),
	}
}

func (self *RoomApi) SetBearerToken(bearerToken string) {
	self.bearerToken = bearerToken
}

type CreateRoomCallback apiCallback[*CreateRoomResult]

type CreateRoomArgs struct {
	Name string `json:"name"`
}

type CreateRoomResult struct {
	Name string `json:"name,omitempty"`
	Sid  string `json:"sid,omitempty"`
}

// CreateRoom sends the create request on a background goroutine. A
// non-success response is a reportable *TransportError, not fatal: the
// room may already exist, and the caller proceeds to connect with a
// participant credential regardless.
func (self *RoomApi) CreateRoom(createRoom *CreateRoomArgs, callback CreateRoomCallback) {
	go self.post(
		fmt.Sprintf("%s%s", self.adminUrl, self.settings.RoomsPath),
		createRoom,
		&CreateRoomResult{},
		callback,
	)
}

func (self *RoomApi) CreateRoomSync(createRoom *CreateRoomArgs) (*CreateRoomResult, error) {
	return self.post(
		fmt.Sprintf("%s%s", self.adminUrl, self.settings.RoomsPath),
		createRoom,
		&CreateRoomResult{},
		NewNoopApiCallback[*CreateRoomResult](),
	)
}

func (self *RoomApi) post(url string, args any, result *CreateRoomResult, callback CreateRoomCallback) (*CreateRoomResult, error) {
	requestBodyBytes, err := json.Marshal(args)
	if err != nil {
		callback.Result(nil, err)
		return nil, err
	}

	req, err := http.NewRequestWithContext(self.ctx, "POST", url, bytes.NewReader(requestBodyBytes))
	if err != nil {
		callback.Result(nil, err)
		return nil, err
	}

	req.Header.Add("Content-Type", "application/json")

	if self.bearerToken != "" {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", self.bearerToken))
	} else {
		req.SetBasicAuth(self.adminKey, self.adminSecret)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		transportErr := &TransportError{Op: "create room", Cause: err}
		callback.Result(nil, transportErr)
		return nil, transportErr
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		transportErr := &TransportError{Op: "create room", Cause: err}
		callback.Result(nil, transportErr)
		return nil, transportErr
	}

	// the body is logged but never parsed for control flow.
	// status is the success signal.
	glog.V(2).Infof("[room]%s response %d: %s\n", url, r.StatusCode, responseBodyBytes)

	if r.StatusCode < 200 || 300 <= r.StatusCode {
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		transportErr := &TransportError{
			Op:     "create room",
			Status: r.StatusCode,
			Cause:  fmt.Errorf("%s", errorMessage),
		}
		callback.Result(nil, transportErr)
		return nil, transportErr
	}

	if err := json.Unmarshal(responseBodyBytes, result); err != nil {
		// tolerate bodies that are not the expected shape
		glog.V(1).Infof("[room]unparsed response body: %s\n", err)
	}

	callback.Result(result, nil)
	return result, nil
}

func (self *RoomApi) Close() {
	self.cancel()
}
