package server

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/soulnet-app/soulnet/internal/auth"
	"github.com/soulnet-app/soulnet/internal/models"
)

const (
	bearerPrefix = "Bearer "

	// SessionCookie carries the token for page-shell requests from browsers.
	SessionCookie = "soulnet_token"
)

var (
	ErrMissingAuthHeader = errors.New("missing authorization header")
	ErrInvalidAuthFormat = errors.New("invalid authorization header format")
	ErrEmptyToken        = errors.New("empty token")
	ErrInvalidToken      = errors.New("invalid token")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExpired    = errors.New("session expired")
	ErrUserNotFound      = errors.New("user not found")
)

func setSession(c *gin.Context, sessionData *auth.SessionData) {
	c.Set("session", sessionData)
}

func GetSessionData(c *gin.Context) (*auth.SessionData, bool) {
	session, exists := c.Get("session")
	if !exists {
		return nil, false
	}

	sessionData, ok := session.(*auth.SessionData)
	return sessionData, ok
}

func extractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}

	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", ErrInvalidAuthFormat
	}

	token := strings.TrimPrefix(authHeader, bearerPrefix)
	if token == "" {
		return "", ErrEmptyToken
	}

	return token, nil
}

func respondWithError(c *gin.Context, log zerolog.Logger, statusCode int, err error, code, message string) {
	log.Warn().Err(err).Str("code", code).Msg(message)
	c.JSON(statusCode, gin.H{"error": message, "code": code})
	c.Abort()
}

// resolveSession validates a token against its server-side session and
// loads the role from the user document. A missing document means "user".
func resolveSession(db *gorm.DB, token string, now time.Time) (*auth.SessionData, error) {
	claims, err := auth.ValidateToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var sess models.Session
	if err := db.Where("id = ? AND user_id = ?", claims.SessionID(), claims.UserID).First(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if !sess.Active(now) {
		return nil, ErrSessionExpired
	}

	var user models.User
	if err := models.FindByID(db, claims.UserID, &user); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	role := models.RoleUser
	var doc models.UserDocument
	if err := db.Where("user_id = ?", user.ID).First(&doc).Error; err == nil && doc.Role == models.RoleAdmin {
		role = models.RoleAdmin
	}

	return &auth.SessionData{
		UserID:      user.ID,
		Email:       user.Email,
		Role:        role,
		SessionID:   sess.ID,
		Persistence: sess.Persistence,
		AuthMethod:  user.Provider,
	}, nil
}

// JWTAuthMiddleware validates bearer tokens and their server-side session.
// Any failure is a 401 so clients can treat it as an expired session.
func JWTAuthMiddleware(db *gorm.DB, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			var message string
			switch err {
			case ErrMissingAuthHeader:
				message = "Missing authorization header"
			case ErrInvalidAuthFormat:
				message = "Invalid authorization header format"
			case ErrEmptyToken:
				message = "Empty token"
			}
			respondWithError(c, log, http.StatusUnauthorized, err, codeUnauthenticated, message)
			return
		}

		sessionData, err := resolveSession(db, token, time.Now())
		if err != nil {
			switch err {
			case ErrInvalidToken, ErrSessionNotFound, ErrSessionExpired, ErrUserNotFound:
				respondWithError(c, log, http.StatusUnauthorized, err, codeUnauthenticated, "Invalid or expired session")
			default:
				log.Error().Err(err).Msg("Failed to resolve session")
				respondWithError(c, log, http.StatusInternalServerError, err, codeInternal, "Internal server error")
			}
			return
		}

		setSession(c, sessionData)
		c.Next()
	}
}

// OptionalAuthMiddleware attaches a session when the request carries a valid
// token in the Authorization header or the session cookie, and otherwise
// lets the request through anonymously.
func OptionalAuthMiddleware(db *gorm.DB, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			if cookie, cerr := c.Cookie(SessionCookie); cerr == nil && cookie != "" {
				token = cookie
			}
		}
		if token != "" {
			if sessionData, err := resolveSession(db, token, time.Now()); err == nil {
				setSession(c, sessionData)
			} else {
				log.Debug().Err(err).Msg("Ignoring invalid session on public request")
			}
		}
		c.Next()
	}
}

// AdminOnlyMiddleware ensures the authenticated user is an admin
func AdminOnlyMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionData, exists := GetSessionData(c)
		if !exists {
			respondWithError(c, log, http.StatusUnauthorized, errors.New("no session"), codeUnauthenticated, "Unauthorized")
			return
		}

		if !sessionData.IsAdmin() {
			respondWithError(c, log, http.StatusForbidden, errors.New("not admin"), codeForbidden, "Admin access required")
			return
		}

		c.Next()
	}
}

const (
	loginRateLimit = rate.Limit(5.0 / 60.0) // five attempts per minute per email
	loginBurst     = 5
	limiterIdleTTL = 30 * time.Minute
)

// loginLimiter rate limits credential attempts per key.
type loginLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLoginLimiter(limit rate.Limit, burst int) *loginLimiter {
	return &loginLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*limiterEntry),
	}
}

// Allow consumes one attempt for key.
func (l *loginLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, e := range l.limiters {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(l.limiters, k)
		}
	}

	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Reset forgets key, used after a successful sign-in.
func (l *loginLimiter) Reset(key string) {
	l.mu.Lock()
	delete(l.limiters, key)
	l.mu.Unlock()
}
