package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer          = "driverdash"
	accessAudience       = "authenticated"
	confirmationAudience = "email_confirmation"
)

// AccessClaims はアクセストークンのクレーム。
// Subjectはユーザーid、SessionIDはsessionsテーブルの行を指す。
type AccessClaims struct {
	Email     string `json:"email"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// ConfirmationClaims はメールアドレス確認リンクのクレーム。
type ConfirmationClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer はHS256で署名したトークンを発行・検証する。
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("JWT secret is required")
	}
	return &TokenIssuer{secret: []byte(secret)}, nil
}

// IssueAccess はセッションに対応するアクセストークンを発行する。
func (t *TokenIssuer) IssueAccess(userID, email, sessionID string, issuedAt, expiresAt time.Time) (string, error) {
	claims := AccessClaims{
		Email:     email,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{accessAudience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return t.sign(claims)
}

// IssueConfirmation はメールアドレス確認用トークンを発行する。
func (t *TokenIssuer) IssueConfirmation(userID, email string, issuedAt time.Time, ttl time.Duration) (string, error) {
	claims := ConfirmationClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{confirmationAudience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	return t.sign(claims)
}

// ParseAccess はアクセストークンを検証してクレームを返す。
func (t *TokenIssuer) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := t.parse(token, claims, accessAudience); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, errors.New("token is missing subject or session id")
	}
	return claims, nil
}

// ParseAccessIgnoringExpiry は署名のみを検証する。
// 期限切れトークンからセッションidを取り出すサインアウト処理で使う。
func (t *TokenIssuer) ParseAccessIgnoringExpiry(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := t.parse(token, claims, accessAudience, jwt.WithoutClaimsValidation()); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseConfirmation はメールアドレス確認用トークンを検証してクレームを返す。
func (t *TokenIssuer) ParseConfirmation(token string) (*ConfirmationClaims, error) {
	claims := &ConfirmationClaims{}
	if err := t.parse(token, claims, confirmationAudience); err != nil {
		return nil, err
	}
	return claims, nil
}

func (t *TokenIssuer) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (t *TokenIssuer) parse(token string, claims jwt.Claims, audience string, opts ...jwt.ParserOption) error {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(audience),
	)
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, opts...)
	if err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}
	if !parsed.Valid {
		return errors.New("invalid token")
	}
	return nil
}
