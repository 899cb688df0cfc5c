package upstream

import "errors"

// Reason returns a short stable label for an error's classification, used
// for log fields and metric labels.
func Reason(err error) string {
	var (
		cfgErr  *ConfigError
		valErr  *ValidationError
		authErr *AuthError
		qErr    *QuotaError
		rlErr   *RateLimitError
		netErr  *NetworkError
		toErr   *TimeoutError
		upErr   *UpstreamError
		nfErr   *NotFoundError
	)
	switch {
	case errors.As(err, &cfgErr):
		return "config"
	case errors.As(err, &valErr):
		return "validation"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &qErr):
		return "quota"
	case errors.As(err, &rlErr):
		return "rate_limit"
	case errors.As(err, &toErr):
		return "timeout"
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &upErr):
		return "upstream"
	case errors.As(err, &nfErr):
		return "not_found"
	default:
		return "unknown"
	}
}
