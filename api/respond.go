package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/warp/redemption-core/redemption"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a typed domain error to its spec §7 status code. A
// bare, non-domain error is treated as INTERNAL and its detail is
// logged but never returned to the caller.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	de, ok := redemption.AsError(err)
	if !ok {
		log.Error().Err(err).Msg("api: unclassified error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Kind: string(redemption.KindInternal), Message: "internal error"})
		return
	}
	if de.Err != nil {
		log.Error().Err(de.Err).Str("kind", string(de.Kind)).Msg("api: domain error with wrapped cause")
	}
	writeJSON(w, statusFor(de.Kind), errorResponse{Kind: string(de.Kind), Message: de.Message})
}

func statusFor(kind redemption.ErrorKind) int {
	switch kind {
	case redemption.KindUnauthenticated:
		return http.StatusUnauthorized
	case redemption.KindForbidden, redemption.KindDeviceMismatch:
		return http.StatusForbidden
	case redemption.KindNotFound:
		return http.StatusNotFound
	case redemption.KindInvalidArgument:
		return http.StatusBadRequest
	case redemption.KindDailyLimit, redemption.KindIneligibleOffer, redemption.KindInvalidState, redemption.KindVoidWindowExpired:
		return http.StatusConflict
	case redemption.KindRateLimited:
		return http.StatusTooManyRequests
	case redemption.KindInvalidOrExpired:
		return http.StatusGone
	case redemption.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
