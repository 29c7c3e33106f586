package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

const tokenCookieName = "__ecnc_timetable_token"

type AuthClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewToken 为教师签发令牌，登录由统一认证服务负责，这里只在种子数据和测试中使用
func NewToken(secret string, professor *domain.Professor, expiration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AuthClaims{
		Role: string(professor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   strconv.FormatInt(professor.ID, 10),
		},
	})

	return token.SignedString([]byte(secret))
}

func parseToken(secret, tokenString string) (*AuthClaims, error) {
	claims := &AuthClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("令牌缺少用户信息")
	}
	return claims, nil
}
