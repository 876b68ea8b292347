package middleware

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/fiscaldesk/printflow/internal/db"
)

const (
	userTokenDuration  = 24 * time.Hour
	agentTokenDuration = 12 * time.Hour

	// gin context keys set by the middleware.
	ContextUserID   = "user_id"
	ContextDeviceID = "device_id"
)

type Claims struct {
	jwt.RegisteredClaims
	DeviceID string `json:"device_id,omitempty"`
}

// Auth validates bearer tokens and issues agent tokens. Who may submit jobs
// is decided upstream; this layer only establishes an opaque identity.
type Auth struct {
	secret  []byte
	devices *db.DeviceStore
}

func NewAuth(secret string, devices *db.DeviceStore) (*Auth, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Auth{secret: []byte(secret), devices: devices}, nil
}

func (a *Auth) IssueUserToken(subject string) (string, error) {
	return a.issue(subject, "", userTokenDuration)
}

func (a *Auth) IssueAgentToken(deviceID string) (string, error) {
	return a.issue("agent:"+deviceID, deviceID, agentTokenDuration)
}

func (a *Auth) issue(subject, deviceID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "printflow",
		},
		DeviceID: deviceID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Auth) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (a *Auth) bearer(c *gin.Context) (*Claims, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, false
	}
	claims, err := a.parse(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		return nil, false
	}
	return claims, true
}

// RequireUser accepts any valid token and exposes its subject as the
// submitter identity.
func (a *Auth) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := a.bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(ContextUserID, claims.Subject)
		c.Next()
	}
}

// RequireAgent accepts only tokens carrying a device claim.
func (a *Auth) RequireAgent() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := a.bearer(c)
		if !ok || claims.DeviceID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "agent authentication required"})
			return
		}
		c.Set(ContextDeviceID, claims.DeviceID)
		c.Set(ContextUserID, claims.Subject)
		c.Next()
	}
}

type AgentLoginRequest struct {
	DeviceID  string `json:"device_id" binding:"required"`
	DeviceKey string `json:"device_key" binding:"required"`
}

type AgentLoginResponse struct {
	Token string `json:"token"`
}

// AgentLogin exchanges a device id and key for an agent token. The key is
// checked against the bcrypt hash stored at device registration.
func (a *Auth) AgentLogin(c *gin.Context) {
	var req AgentLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	device, err := a.devices.Get(c.Request.Context(), req.DeviceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown device or bad key"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up device"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(device.KeyHash), []byte(req.DeviceKey)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown device or bad key"})
		return
	}

	token, err := a.IssueAgentToken(device.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, AgentLoginResponse{Token: token})
}
