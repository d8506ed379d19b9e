package api

import (
	"IPOPulse/internal/domain/errs"
	xhttp "IPOPulse/pkg/http"
)

// toAppError maps the domain taxonomy onto HTTP statuses. Upstream
// failures become 503 so clients know a retry may help.
func toAppError(err error) *xhttp.AppError {
	msg := err.Error()
	switch errs.KindOf(err) {
	case errs.KindInvalid:
		return xhttp.BadRequestErrorf("%s", msg).WithError(err)
	case errs.KindNotFound:
		return xhttp.NotFoundErrorf("%s", msg).WithError(err)
	case errs.KindConflict:
		return xhttp.ConflictErrorf("%s", msg).WithError(err)
	case errs.KindBlocked, errs.KindSessionExpired, errs.KindTransient, errs.KindExhausted:
		return xhttp.UnavailableErrorf("%s", msg).WithError(err).WithParam("kind", errs.KindOf(err).String())
	}
	return xhttp.InternalErrorf("internal error").WithError(err)
}
