package utils

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// A challenge token bridges the gap between a correct password and a correct
// TOTP code during login. It is short-lived and single-use: the JTI is burned
// on the first successful verification.
const (
	mfaChallengeType = "filedesk/mfa-challenge"
	MFAChallengeTTL  = 5 * time.Minute
)

type MFAClaims struct {
	UserID    uuid.UUID `json:"userID"`
	Email     string    `json:"email"`
	TokenType string    `json:"tokenType"`
	JTI       string    `json:"jti"`
	jwt.RegisteredClaims
}

func GenerateMFAToken(userID uuid.UUID, email string) (string, error) {
	now := time.Now()
	jti := uuid.New().String()
	claims := MFAClaims{
		UserID:    userID,
		Email:     email,
		TokenType: mfaChallengeType,
		JTI:       jti,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(MFAChallengeTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
			Subject:   userID.String(),
			Issuer:    tokenIssuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
}

// ValidateMFAToken checks signature, expiry and token type. It does NOT burn
// the JTI; callers consume it only after the second factor itself checks out,
// so a wrong TOTP code does not invalidate the challenge.
func ValidateMFAToken(tokenString string) (*MFAClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &MFAClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*MFAClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid challenge token")
	}
	if claims.TokenType != mfaChallengeType {
		return nil, fmt.Errorf("not a challenge token")
	}
	if claims.JTI == "" {
		return nil, fmt.Errorf("challenge token missing ID")
	}

	return claims, nil
}

// jtiLedger tracks burned challenge IDs. Entries older than the challenge TTL
// can never match a live token again and are swept periodically.
type jtiLedger struct {
	mu     sync.Mutex
	burned map[string]time.Time
}

var challengeJTIs = jtiLedger{burned: make(map[string]time.Time)}

func IsJTIValid(jti string) bool {
	challengeJTIs.mu.Lock()
	defer challengeJTIs.mu.Unlock()
	_, exists := challengeJTIs.burned[jti]
	return !exists
}

func ConsumeJTI(jti string) {
	challengeJTIs.mu.Lock()
	defer challengeJTIs.mu.Unlock()
	challengeJTIs.burned[jti] = time.Now()
}

func CleanupExpiredJTIs() {
	challengeJTIs.mu.Lock()
	defer challengeJTIs.mu.Unlock()
	now := time.Now()
	for jti, burnedAt := range challengeJTIs.burned {
		if now.Sub(burnedAt) > MFAChallengeTTL {
			delete(challengeJTIs.burned, jti)
		}
	}
}
