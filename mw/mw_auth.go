package mw

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"vindr-sr/constants"
	"vindr-sr/entities"

	"github.com/gin-gonic/gin"
	"github.com/gojektech/heimdall/v6/httpclient"
	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"
)

// Scopes checked by ValidPerms.
const (
	PERM_R = "read"
	PERM_C = "create"
)

var GIN_CONTEXT_AUTHINFO = "AuthInfo"
var GIN_CONTEXT_AUTHCLAIM = "AuthClaim"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrTokenExpired = errors.New("token expired")
)

type realmInfo struct {
	Realm     string `json:"realm"`
	PublicKey string `json:"public_key"`
}

// Authenticator verifies Keycloak access tokens against the realm public
// key. The key is fetched on first use and kept.
type Authenticator struct {
	realmURI   string
	httpClient *httpclient.Client
	logger     *zap.Logger

	mu  sync.Mutex
	key *rsa.PublicKey
	now func() time.Time
}

func NewAuthenticator(keycloakURI, realm string, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := httpclient.NewClient(
		httpclient.WithHTTPTimeout(5000*time.Millisecond),
		httpclient.WithRetryCount(2),
	)
	return &Authenticator{
		realmURI:   fmt.Sprintf("%s/auth/realms/%s", strings.TrimRight(keycloakURI, "/"), realm),
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

func (auth *Authenticator) publicKey() (*rsa.PublicKey, error) {
	auth.mu.Lock()
	defer auth.mu.Unlock()
	if auth.key != nil {
		return auth.key, nil
	}

	res, err := auth.httpClient.Get(auth.realmURI, nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("realm %s: %s", auth.realmURI, res.Status)
	}

	var info realmInfo
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("Error parsing the response body: %s", err)
	}
	keyData := info.PublicKey
	if !strings.Contains(keyData, "BEGIN PUBLIC KEY") {
		keyData = fmt.Sprintf("-----BEGIN PUBLIC KEY-----\n%s\n-----END PUBLIC KEY-----", keyData)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(keyData))
	if err != nil {
		return nil, err
	}
	auth.logger.Debug("Loaded realm public key", zap.String("realm", info.Realm))
	auth.key = key
	return key, nil
}

// ParseJWTAccessToken verifies the RS256 signature and expiry of token and
// returns its claims. Tokens without an expiry are rejected.
func (auth *Authenticator) ParseJWTAccessToken(token string) (*AuthClaim, error) {
	key, err := auth.publicKey()
	if err != nil {
		return nil, err
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("The token is invalid")
	}

	var authClaim AuthClaim
	jsonString, err := json.Marshal(claims)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(jsonString, &authClaim); err != nil {
		return nil, err
	}
	if authClaim.Exp == 0 || auth.now().Unix() > authClaim.Exp {
		return nil, ErrTokenExpired
	}
	return &authClaim, nil
}

// WrapAuthInfo rejects requests without a valid bearer token and stores the
// caller's claims and Account in the gin context.
func (auth *Authenticator) WrapAuthInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		splitted := strings.Split(c.GetHeader("Authorization"), " ")
		if len(splitted) != 2 || splitted[0] != "Bearer" || splitted[1] == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, entities.NewResponse().Fail(constants.ServerUnauthorized, ErrMissingToken))
			return
		}

		authClaim, err := auth.ParseJWTAccessToken(splitted[1])
		if err != nil {
			auth.logger.Debug("Token rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, entities.NewResponse().Fail(constants.ServerUnauthorized, err))
			return
		}
		c.Set(GIN_CONTEXT_AUTHCLAIM, authClaim)
		c.Set(GIN_CONTEXT_AUTHINFO, authClaim.ConvertAuthClaimToAccount())
		c.Next()
	}
}

// GetAuthInfoFromGin returns the caller set by WrapAuthInfo, or nil.
func GetAuthInfoFromGin(c *gin.Context) *Account {
	if inf, exists := c.Get(GIN_CONTEXT_AUTHINFO); exists {
		if account, ok := inf.(*Account); ok {
			return account
		}
	}
	return nil
}

// ValidPerms lets the request through when the claims stored by
// WrapAuthInfo grant rScope on rResource.
func ValidPerms(rResource, rScope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		inf, exists := c.Get(GIN_CONTEXT_AUTHCLAIM)
		authClaim, ok := inf.(*AuthClaim)
		if !exists || !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, entities.NewResponse().Fail(constants.ServerUnauthorized, ErrMissingToken))
			return
		}
		if !authClaim.HasPerm(rResource, rScope) {
			c.AbortWithStatusJSON(http.StatusForbidden, entities.NewResponse().Fail(constants.ServerForbidden,
				fmt.Errorf("missing %s permission on %s", rScope, rResource)))
			return
		}
		c.Next()
	}
}
