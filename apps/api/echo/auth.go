package echoapi

import (
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/campusreg/registrar/core"
	"github.com/campusreg/registrar/core/account"
)

var (
	// appJWTConfig is the default JWT auth middleware config; completed by configureAuth.
	appJWTConfig = middleware.JWTConfig{
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    "accountToken",
		Claims:        new(Claims),
	}
	contextAccountKey = "account"

	jwtExpirationDelta        time.Duration
	jwtRefreshExpirationDelta time.Duration
	jwtIssuer                 string
)

func configureAuth(conf *core.Config) {
	appJWTConfig.SigningKey = []byte(conf.SecretKey)
	jwtExpirationDelta = conf.Server.JWTExpirationDelta
	jwtRefreshExpirationDelta = conf.Server.JWTRefreshExpirationDelta
	jwtIssuer = conf.AppName
}

// Claims represents the authorization claims transmitted via a JWT.
// The role is carried twice: as the Role string and as the portal flags;
// admin endpoints require both representations to agree.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
	IsStudent    bool   `json:"is_student,omitempty"` // -> STUDENT PORTAL
	IsTeacher    bool   `json:"is_teacher,omitempty"` // -> TEACHER PORTAL
	IsAdmin      bool   `json:"is_admin,omitempty"`   // -> ADMIN PORTAL
}

func GetAccountClaims(acct account.Account, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = nownix
	}

	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.New().String(),
			Issuer:    jwtIssuer,
			Subject:   acct.ID,
			Audience:  "Campus",
			ExpiresAt: now.Add(jwtExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Name:         acct.Name,
		Email:        acct.Email,
		Role:         acct.Role,
		IsStudent:    acct.IsStudent(),
		IsTeacher:    acct.IsTeacher(),
		IsAdmin:      acct.IsAdmin(),
	}
	return claims
}

func authenticate(ctx echo.Context, email, pwd string, svc account.ServiceInterface) (*Claims, error) {
	acct, err := svc.Authenticate(ctx.Request().Context(), email, pwd)
	if err != nil {
		if errors.Cause(err) == account.ErrInvalidCredentials {
			return nil, account.ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "authenticating account")
	}
	if !acct.Active() {
		return nil, errAccountDeactivated
	}
	return GetAccountClaims(acct), nil
}

// GenerateToken generates a signed JWT token string representing the account Claims.
func GenerateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(appJWTConfig.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(appJWTConfig.SigningKey)
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(appJWTConfig.ContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextAccount(ctx echo.Context, svc account.ServiceInterface, clms ...Claims) (account.Account, error) {
	if acct, ok := ctx.Get(contextAccountKey).(account.Account); ok {
		return acct, nil
	}

	var claims Claims
	var err error
	if len(clms) > 0 {
		claims = clms[0]
	} else {
		claims, err = getContextClaims(ctx)
		if err != nil {
			return account.Account{}, errors.Wrap(err, "getting context claims")
		}
	}

	acct, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return account.Account{}, errors.Wrap(err, "finding account by ID")
	}
	ctx.Set(contextAccountKey, acct)
	return acct, nil
}

func refreshToken(ctx echo.Context, svc account.ServiceInterface) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}

	acct, err := getContextAccount(ctx, svc, claims)
	if err != nil {
		return "", errors.Wrap(err, "getting context account")
	}

	// check if account is still active
	if !acct.Active() {
		return "", errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(jwtRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	newClaims := GetAccountClaims(acct, claims.OrigIssuedAt)
	token, err := GenerateToken(newClaims)
	return token, errors.Wrap(err, "generating token")
}

// revokedTokens tracks tokens invalidated by logout, keyed by JWT ID, until
// their natural expiry. Logout is an all-or-nothing session teardown: once the
// ID is in here every request carrying that token is unauthenticated.
type revocationList struct {
	mu     sync.Mutex
	tokens map[string]int64 // jti -> expiresAt (unix)
}

var revokedTokens = &revocationList{tokens: make(map[string]int64)}

func (rl *revocationList) Revoke(claims Claims) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.purge()
	rl.tokens[claims.Id] = claims.ExpiresAt
}

func (rl *revocationList) IsRevoked(jti string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	exp, ok := rl.tokens[jti]
	if !ok {
		return false
	}
	if time.Now().Unix() > exp {
		delete(rl.tokens, jti)
		return false
	}
	return true
}

// purge drops expired entries; callers must hold mu.
func (rl *revocationList) purge() {
	now := time.Now().Unix()
	for jti, exp := range rl.tokens {
		if now > exp {
			delete(rl.tokens, jti)
		}
	}
}

// revocationMiddleware rejects revoked tokens; chained right after the JWT middleware.
func revocationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if revokedTokens.IsRevoked(claims.Id) {
				return errUnauthorized
			}
			return next(ctx)
		}
	}
}
