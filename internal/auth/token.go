package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/agromaq/crm-api/internal/access"
	"github.com/agromaq/crm-api/internal/common"
)

// PermissionsClaim is the JWT claim carrying the caller's permission strings.
const PermissionsClaim = "permissions"

// TokenParser validates access tokens issued by the identity provider
// and extracts the principal they carry.
type TokenParser struct {
	Secret    []byte
	Issuer    string
	Audience  string
	Algorithm jwa.SignatureAlgorithm
	ClockSkew time.Duration
	Now       func() time.Time
}

// Parse verifies the signature and claims of a bearer token and returns
// the principal it encodes.
func (p TokenParser) Parse(raw string) (Principal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Principal{}, common.Unauthorized("missing token")
	}
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return Principal{}, common.NewAppError("UNAUTHORIZED", "invalid token", 401, err)
	}
	if p.Algorithm != "" && algorithm != p.Algorithm {
		return Principal{}, common.NewAppError("UNAUTHORIZED", "invalid token", 401, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, p.Secret))
	if err != nil {
		return Principal{}, common.NewAppError("UNAUTHORIZED", "invalid token", 401, err)
	}
	if err := p.validate(parsed); err != nil {
		return Principal{}, common.NewAppError("UNAUTHORIZED", "invalid token", 401, err)
	}
	subject := strings.TrimSpace(parsed.Subject())
	if subject == "" {
		return Principal{}, common.Unauthorized("invalid token")
	}
	return Principal{
		UserID:      subject,
		Permissions: access.NewSet(permissionStrings(parsed)),
	}, nil
}

func (p TokenParser) validate(tok jwt.Token) error {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	}
	if p.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(p.ClockSkew))
	}
	if p.Issuer != "" {
		options = append(options, jwt.WithIssuer(p.Issuer))
	}
	if p.Audience != "" {
		options = append(options, jwt.WithAudience(p.Audience))
	}
	return jwt.Validate(tok, options...)
}

func permissionStrings(tok jwt.Token) []string {
	claim, ok := tok.Get(PermissionsClaim)
	if !ok {
		return nil
	}
	switch values := claim.(type) {
	case []string:
		return values
	case []any:
		out := make([]string, 0, len(values))
		for _, v := range values {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}
