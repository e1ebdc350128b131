package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"whisper/internal/core/domain"
	"whisper/pkg/logging"
)

const accessTokenType = "access"

// TokenService is the Authenticator: it validates bearer credentials and
// resolves them to users.
type TokenService struct {
	log       *slog.Logger
	secretKey []byte
	issuer    string
	ttl       time.Duration
	users     domain.UserRepository
}

func NewTokenService(log *slog.Logger, secret string, users domain.UserRepository) *TokenService {
	return &TokenService{
		log:       log,
		secretKey: []byte(secret),
		issuer:    "whisper-chat",
		ttl:       24 * time.Hour,
		users:     users,
	}
}

func (s *TokenService) GenerateToken(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(userID, 10), // Subject
		"type": accessTokenType,
		"iat":  now.Unix(),
		"exp":  now.Add(s.ttl).Unix(),
		"iss":  s.issuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateToken parses and validates the JWT string and returns its subject.
func (s *TokenService) ValidateToken(tokenStr string) (int64, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		// Ensure signing method is HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fmt.Errorf("%w: invalid claims", domain.ErrInvalidToken)
	}
	if kind, present := claims["type"]; present && kind != accessTokenType {
		return 0, fmt.Errorf("%w: not an access token", domain.ErrInvalidToken)
	}
	var userID int64
	switch sub := claims["sub"].(type) {
	case string:
		userID, err = strconv.ParseInt(sub, 10, 64)
	case float64:
		userID = int64(sub)
	default:
		err = errors.New("subject not found in token")
	}
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("%w: bad subject", domain.ErrInvalidToken)
	}
	return userID, nil
}

// ResolveIdentity validates the credential and loads the user it names.
func (s *TokenService) ResolveIdentity(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing credential", domain.ErrInvalidToken)
	}
	userID, err := s.ValidateToken(token)
	if err != nil {
		s.log.WarnContext(ctx, "token - resolve identity - validate token failed", logging.Err(err))
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		s.log.WarnContext(ctx, "token - resolve identity - get user failed", logging.User(userID), logging.Err(err))
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
		}
		return nil, err
	}
	return user, nil
}
