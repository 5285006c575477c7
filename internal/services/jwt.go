package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
)

type JWTService interface {
	GenerateToken(userID uint, ttl time.Duration) (string, error)
	ValidateToken(tokenString string) (uint, error)
}

type jWTServiceImpl struct {
	issuer string
	key    []byte
}

// NewJWTService 会员令牌由会员系统签发，这里共用同一把 HS256 密钥
func NewJWTService(issuer string, key []byte) JWTService {
	return &jWTServiceImpl{issuer: issuer, key: key}
}

func (j *jWTServiceImpl) GenerateToken(userID uint, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"iss":    j.issuer,
		"userid": userID,
		"exp":    time.Now().Add(ttl).Unix(),
		"iat":    time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.key)
}

func (j *jWTServiceImpl) ValidateToken(tokenString string) (uint, error) {
	if len(j.key) == 0 {
		return 0, errors.New("jwt key not configured")
	}
	// 忽略 "Bearer " 前缀
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.key, nil
	})
	if err != nil {
		return 0, fmt.Errorf("token parse failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, fmt.Errorf("invalid token claims")
	}
	if !claims.VerifyIssuer(j.issuer, true) {
		return 0, fmt.Errorf("issuer validation failed")
	}
	if !claims.VerifyExpiresAt(time.Now().Unix(), true) {
		return 0, fmt.Errorf("token expired")
	}

	// JSON 数字默认解析为 float64
	userID, ok := claims["userid"].(float64)
	if !ok || userID <= 0 {
		return 0, errors.New("userid claim missing or invalid type")
	}
	return uint(userID), nil
}
