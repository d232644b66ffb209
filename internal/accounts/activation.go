package accounts

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/pkg/idx"
)

const activationAudience = "activation"

// activationClaims binds an activation token to the user's current state.
type activationClaims struct {
	State string `json:"st"`
	jwt.RegisteredClaims
}

// ActivationTokens issues one-time activation tokens. A token stops
// validating once the user's password, active flag or last login changes.
type ActivationTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewActivationTokens creates an activation token service.
func NewActivationTokens(secret string, ttlHours int) *ActivationTokens {
	return &ActivationTokens{secret: []byte(secret), ttl: time.Duration(ttlHours) * time.Hour, now: time.Now}
}

// TTLHours is the token lifetime in hours.
func (a *ActivationTokens) TTLHours() int { return int(a.ttl / time.Hour) }

// Make creates a token for u.
func (a *ActivationTokens) Make(u *models.User) (string, error) {
	now := a.now()
	claims := activationClaims{
		State: fingerprint(u),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			Audience:  jwt.ClaimStrings{activationAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign activation token: %w", err)
	}
	return token, nil
}

// Check validates token against u's current state.
func (a *ActivationTokens) Check(u *models.User, token string) error {
	var claims activationClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(activationAudience),
		jwt.WithSubject(u.ID.String()),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(claims.State), []byte(fingerprint(u))) != 1 {
		return ErrInvalidToken
	}
	return nil
}

func fingerprint(u *models.User) string {
	h := sha256.New()
	h.Write([]byte(u.ID.String()))
	h.Write([]byte{0})
	h.Write([]byte(u.PasswordHash))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatBool(u.IsActive)))
	h.Write([]byte{0})
	if u.LastLogin != nil {
		h.Write([]byte(strconv.FormatInt(u.LastLogin.Unix(), 10)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// EncodeUID encodes a user ID for activation links.
func EncodeUID(id idx.ID) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id.String()))
}

// DecodeUID reverses EncodeUID.
func DecodeUID(s string) (idx.ID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return idx.Zero, fmt.Errorf("decode uid: %w", err)
	}
	return idx.Parse(string(raw))
}
