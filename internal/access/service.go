// Package access grants the operator capability: a passcode check that puts
// the chosen stock room into the session.
package access

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/assefaz/stockledger/internal/platform/httpx"
	"github.com/assefaz/stockledger/internal/shared"
)

// SessionKey stores the JSON encoded capability.
const SessionKey = "capability"

var (
	// ErrInvalidPasscode is returned for a wrong or empty passcode.
	ErrInvalidPasscode = fmt.Errorf("access: invalid passcode: %w", httpx.ErrUnauthorized)
	// ErrNoCapability is returned when the session holds no grant.
	ErrNoCapability = fmt.Errorf("access: passcode required: %w", httpx.ErrUnauthorized)
	// ErrInvalidHash is returned at startup for a malformed bcrypt hash.
	ErrInvalidHash = errors.New("access: passcode hash is not a bcrypt hash")
)

// HashPasscode returns the bcrypt hash to configure as ACCESS_PASSCODE_HASH.
func HashPasscode(plain string) (string, error) {
	if strings.TrimSpace(plain) == "" {
		return "", ErrInvalidPasscode
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Service checks passcodes and keeps capabilities in sessions.
type Service struct {
	hash  []byte
	clock func() time.Time
}

// NewService validates the configured hash.
func NewService(passcodeHash string) (*Service, error) {
	hash := []byte(strings.TrimSpace(passcodeHash))
	if _, err := bcrypt.Cost(hash); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	return &Service{hash: hash, clock: time.Now}, nil
}

// Verify compares the passcode with the configured hash.
func (s *Service) Verify(passcode string) error {
	if passcode == "" {
		return ErrInvalidPasscode
	}
	if err := bcrypt.CompareHashAndPassword(s.hash, []byte(passcode)); err != nil {
		return ErrInvalidPasscode
	}
	return nil
}

// Grant stores a fresh capability for location in the session.
func (s *Service) Grant(sess *shared.Session, location shared.Location) (shared.Capability, error) {
	if !location.Valid() {
		return shared.Capability{}, shared.ErrUnknownLocation
	}
	capability := shared.Capability{Location: location, GrantedAt: s.clock().UTC()}
	if err := store(sess, capability); err != nil {
		return shared.Capability{}, err
	}
	return capability, nil
}

// Capability reads the grant held by the session.
func (s *Service) Capability(sess *shared.Session) (shared.Capability, error) {
	raw := sess.Get(SessionKey)
	if raw == "" {
		return shared.Capability{}, ErrNoCapability
	}
	var capability shared.Capability
	if err := json.Unmarshal([]byte(raw), &capability); err != nil || !capability.Location.Valid() {
		return shared.Capability{}, ErrNoCapability
	}
	return capability, nil
}

// SwitchLocation moves an existing grant to another stock room.
func (s *Service) SwitchLocation(sess *shared.Session, location shared.Location) (shared.Capability, error) {
	capability, err := s.Capability(sess)
	if err != nil {
		return shared.Capability{}, err
	}
	if !location.Valid() {
		return shared.Capability{}, shared.ErrUnknownLocation
	}
	capability.Location = location
	if err := store(sess, capability); err != nil {
		return shared.Capability{}, err
	}
	return capability, nil
}

// Revoke drops the grant from the session.
func (s *Service) Revoke(sess *shared.Session) {
	if sess == nil {
		return
	}
	sess.Delete(SessionKey)
}

func store(sess *shared.Session, capability shared.Capability) error {
	if sess == nil {
		return errors.New("access: session missing")
	}
	data, err := json.Marshal(capability)
	if err != nil {
		return err
	}
	sess.Set(SessionKey, string(data))
	return nil
}
