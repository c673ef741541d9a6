package jwt

import (
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v4"

	"github.com/smmpanel/panelsync/internal/config"
)

var TokenAuth *jwtauth.JWTAuth

type Claims struct {
	jwt.RegisteredClaims
	Username string
}

func init() {
	TokenAuth = jwtauth.New("HS256", []byte(config.Config.SecretToken), nil)
}

func CreateJWTToken(username string) (string, error) {

	claims := jwt.MapClaims{
		"username": username,
	}

	jwtauth.SetExpiry(claims, time.Now().Add(time.Hour))

	_, tokenString, err := TokenAuth.Encode(claims)

	if err != nil {
		return "", err
	}

	return tokenString, nil
}
