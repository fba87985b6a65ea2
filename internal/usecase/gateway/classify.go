package gateway

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"lexroute/internal/domain"
)

// Classification is the result of inspecting one upstream failure.
type Classification struct {
	Kind       domain.GatewayErrorKind
	StatusCode int // extracted HTTP status, or 0 if unknown
}

// apiErrorPattern matches "API error <status_code>:" produced by all providers.
var apiErrorPattern = regexp.MustCompile(`API error (\d+):`)

// Classify maps a provider error to a gateway failure kind. Sentinels wrapped
// by the providers are checked first, then the HTTP status embedded in the
// message, then well-known network error text. Unrecognized errors are
// treated as transient.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	if c, ok := classifyBySentinel(err); ok {
		if m := apiErrorPattern.FindStringSubmatch(err.Error()); len(m) == 2 {
			c.StatusCode, _ = strconv.Atoi(m[1])
		}
		return c
	}

	if m := apiErrorPattern.FindStringSubmatch(err.Error()); len(m) == 2 {
		code, _ := strconv.Atoi(m[1])
		return classifyByStatus(code)
	}

	return classifyByString(err.Error())
}

func classifyBySentinel(err error) (Classification, bool) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, domain.ErrCanceled):
		return Classification{Kind: domain.GatewayCanceled}, true
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, domain.ErrTimeout):
		return Classification{Kind: domain.GatewayTimeout}, true
	case errors.Is(err, domain.ErrAuthInvalid):
		return Classification{Kind: domain.GatewayAuth}, true
	case errors.Is(err, domain.ErrMalformedRequest), errors.Is(err, domain.ErrContextOverflow):
		// The composer already enforced the prompt budget; sending the same
		// request again cannot succeed.
		return Classification{Kind: domain.GatewayMalformed}, true
	case errors.Is(err, domain.ErrRateLimit), errors.Is(err, domain.ErrUpstreamTransient):
		return Classification{Kind: domain.GatewayTransient}, true
	default:
		return Classification{}, false
	}
}

func classifyByStatus(code int) Classification {
	c := Classification{StatusCode: code}
	switch {
	case code == 429, code >= 500 && code < 600:
		c.Kind = domain.GatewayTransient
	case code == 408:
		c.Kind = domain.GatewayTimeout
	case code == 401 || code == 403:
		c.Kind = domain.GatewayAuth
	default:
		c.Kind = domain.GatewayMalformed
	}
	return c
}

func classifyByString(errStr string) Classification {
	lower := strings.ToLower(errStr)

	for _, p := range []string{"context length", "token limit", "maximum context"} {
		if strings.Contains(lower, p) {
			return Classification{Kind: domain.GatewayMalformed}
		}
	}

	for _, p := range []string{"timeout", "deadline exceeded"} {
		if strings.Contains(lower, p) {
			return Classification{Kind: domain.GatewayTimeout}
		}
	}

	return Classification{Kind: domain.GatewayTransient}
}
