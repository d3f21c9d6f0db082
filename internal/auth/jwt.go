package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lorrc/turnos-queue/internal/core/domain"
)

// Claims defines the structured data we store in the JWT. SubjectID is a
// user ID for session tokens and a display ID for device tokens.
type Claims struct {
	SubjectID uuid.UUID             `json:"subject_id"`
	TenantID  uuid.UUID             `json:"tenant_id"`
	Kind      domain.CredentialKind `json:"kind"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secretKey  []byte
	userTTL    time.Duration
	displayTTL time.Duration
}

func NewTokenManager(secret string, userTTL, displayTTL time.Duration) *TokenManager {
	if userTTL <= 0 {
		userTTL = time.Hour
	}
	if displayTTL <= 0 {
		displayTTL = 180 * 24 * time.Hour
	}
	return &TokenManager{
		secretKey:  []byte(secret),
		userTTL:    userTTL,
		displayTTL: displayTTL,
	}
}

// GenerateUserToken creates a session token for an attendant or admin.
func (tm *TokenManager) GenerateUserToken(userID, tenantID uuid.UUID) (string, error) {
	return tm.generate(userID, tenantID, domain.CredentialUser, tm.userTTL)
}

// IssueDisplayToken creates a long-lived device token for a paired display.
func (tm *TokenManager) IssueDisplayToken(displayID, tenantID uuid.UUID) (string, error) {
	return tm.generate(displayID, tenantID, domain.CredentialDisplay, tm.displayTTL)
}

func (tm *TokenManager) generate(subjectID, tenantID uuid.UUID, kind domain.CredentialKind, ttl time.Duration) (string, error) {
	claims := &Claims{
		SubjectID: subjectID,
		TenantID:  tenantID,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			Subject:   subjectID.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secretKey)
}

// ValidateToken parses and validates the token string
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secretKey, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
