package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"impact-story-backend/pkg/models"
)

// AccessTokenAudience is the audience of tokens issued to signed-in users.
const AccessTokenAudience = "authenticated"

// ErrTokenExpired is returned for a well-signed token past its expiry.
var ErrTokenExpired = errors.New("token expired")

// JWTService verifies access tokens issued by the identity provider with its
// shared HMAC secret.
type JWTService struct {
	secretKey []byte
}

// NewJWTService 创建JWT服务
func NewJWTService(secretKey string) *JWTService {
	return &JWTService{
		secretKey: []byte(secretKey),
	}
}

// SignAccessToken issues a token shaped like the provider's. Used by tests and
// local tooling.
func (j *JWTService) SignAccessToken(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &models.TokenClaims{
		Subject:  userID,
		Email:    email,
		Role:     AccessTokenAudience,
		Audience: jwt.ClaimStrings{AccessTokenAudience},
		Exp:      now.Add(ttl).Unix(),
		Iat:      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken 验证令牌
func (j *JWTService) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithAudience(AccessTokenAudience), jwt.WithExpirationRequired())

	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || claims.Subject == "" {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// ExtractCaller 从令牌中提取调用者信息
func (j *JWTService) ExtractCaller(tokenString string) (models.Caller, error) {
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return models.Caller{}, err
	}
	return models.Caller{
		UserID:      claims.Subject,
		Email:       claims.Email,
		AccessToken: tokenString,
	}, nil
}

// TokenExpired reports whether the unverified exp claim of tokenString has passed.
// It only decides whether a refresh is worth attempting.
func TokenExpired(tokenString string) bool {
	claims := &models.TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return false
	}
	return claims.Exp != 0 && time.Now().Unix() >= claims.Exp
}
