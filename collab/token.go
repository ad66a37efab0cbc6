package collab

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// participant tokens live for an hour. The elevated admin token minted to
// authorize a room-creation call lives for one minute.
const DefaultTokenTtl = 1 * time.Hour
const AdminTokenTtl = 1 * time.Minute

// the room-service grants carried inside the signed claims
type VideoGrants struct {
	RoomJoin       bool   `json:"room_join"`
	Room           string `json:"room"`
	RoomCreate     bool   `json:"room_create,omitempty"`
	CanPublish     bool   `json:"can_publish,omitempty"`
	CanPublishData bool   `json:"can_publish_data,omitempty"`
}

type Claims struct {
	Name  string       `json:"name,omitempty"`
	Video *VideoGrants `json:"video,omitempty"`
	gojwt.RegisteredClaims
}

// AccessToken mints a signed, time-bounded capability for one identity to
// present to the room service. Signing is symmetric hmac with the
// service's shared secret. Minted on demand, never mutated, never reused
// past expiry.
type AccessToken struct {
	apiKey    string
	apiSecret string
	identity  string
	name      string
	grants    *VideoGrants
	validFor  time.Duration
}

func NewAccessToken(apiKey string, apiSecret string) *AccessToken {
	return &AccessToken{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		validFor:  DefaultTokenTtl,
	}
}

func (self *AccessToken) WithIdentity(identity string) *AccessToken {
	self.identity = identity
	return self
}

func (self *AccessToken) WithName(name string) *AccessToken {
	self.name = name
	return self
}

func (self *AccessToken) WithGrants(grants *VideoGrants) *AccessToken {
	self.grants = grants
	return self
}

func (self *AccessToken) WithValidFor(d time.Duration) *AccessToken {
	self.validFor = d
	return self
}

// Jwt signs the claims. This fails closed: on any failure the token is
// the empty string and the error is a *SigningError, and callers must
// never treat an empty string as a credential.
func (self *AccessToken) Jwt() (string, error) {
	if self.apiKey == "" || self.apiSecret == "" {
		return "", &SigningError{Cause: errors.New("api key and secret are required")}
	}
	if self.identity == "" {
		return "", &SigningError{Cause: errors.New("identity is required")}
	}

	now := time.Now()
	claims := &Claims{
		Name:  self.name,
		Video: self.grants,
		RegisteredClaims: gojwt.RegisteredClaims{
			Issuer:    self.apiKey,
			Subject:   self.identity,
			IssuedAt:  gojwt.NewNumericDate(now),
			NotBefore: gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(self.validFor)),
		},
	}

	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims)
	jwt, err := token.SignedString([]byte(self.apiSecret))
	if err != nil {
		return "", &SigningError{Cause: err}
	}
	return jwt, nil
}

// ParticipantToken mints the credential a participant presents when
// joining a room, with publish grants enabled so edits and carets can be
// sent over the room's data channel.
func ParticipantToken(apiKey string, apiSecret string, identity string, room string) (string, error) {
	return NewAccessToken(apiKey, apiSecret).
		WithIdentity(identity).
		WithName(identity).
		WithGrants(&VideoGrants{
			RoomJoin:       true,
			Room:           room,
			CanPublish:     true,
			CanPublishData: true,
		}).
		Jwt()
}

// AdminToken mints the short-lived elevated credential used only to
// authorize a room-creation call.
func AdminToken(adminKey string, adminSecret string, room string) (string, error) {
	return NewAccessToken(adminKey, adminSecret).
		WithIdentity(adminKey).
		WithGrants(&VideoGrants{
			Room:       room,
			RoomCreate: true,
		}).
		WithValidFor(AdminTokenTtl).
		Jwt()
}

// tokens are secrets. Log them only in this form.
func redactToken(token string) string {
	return fmt.Sprintf("token[%d]", len(token))
}
