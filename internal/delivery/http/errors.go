package http

import (
	"errors"
	"net/http"

	"github.com/vogiaan1904/realtime-gateway/internal/service"
	"github.com/vogiaan1904/realtime-gateway/internal/sfu"
	pkgErrors "github.com/vogiaan1904/realtime-gateway/pkg/errors"
)

var (
	errWrongBody            = pkgErrors.NewHTTPError(100, "Wrong body")
	errMissingToken         = pkgErrors.NewHTTPError(110, "Missing voice token").WithStatus(http.StatusUnauthorized)
	errInvalidToken         = pkgErrors.NewHTTPError(111, "Invalid voice token").WithStatus(http.StatusUnauthorized)
	errVoiceSessionNotFound = pkgErrors.NewHTTPError(112, "Voice session not found").WithStatus(http.StatusUnauthorized)
	errVoiceSessionMismatch = pkgErrors.NewHTTPError(113, "Voice token superseded").WithStatus(http.StatusUnauthorized)
	errInvalidDirection     = pkgErrors.NewHTTPError(120, "Invalid transport direction")
	errInvalidKind          = pkgErrors.NewHTTPError(121, "Invalid media kind")
	errWrongDirection       = pkgErrors.NewHTTPError(122, "Transport direction does not allow this")
	errOwnProducer          = pkgErrors.NewHTTPError(123, "Cannot consume own producer")
	errRoomNotFound         = pkgErrors.NewHTTPError(130, "Room not found").WithStatus(http.StatusNotFound)
	errTransportNotFound    = pkgErrors.NewHTTPError(131, "Transport not found").WithStatus(http.StatusNotFound)
	errProducerNotFound     = pkgErrors.NewHTTPError(132, "Producer not found").WithStatus(http.StatusNotFound)
	errConsumerNotFound     = pkgErrors.NewHTTPError(133, "Consumer not found").WithStatus(http.StatusNotFound)
)

func (h *Handler) mapError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidToken):
		return errInvalidToken
	case errors.Is(err, service.ErrVoiceSessionNotFound):
		return errVoiceSessionNotFound
	case errors.Is(err, service.ErrVoiceSessionMismatch):
		return errVoiceSessionMismatch
	case errors.Is(err, sfu.ErrInvalidDirection):
		return errInvalidDirection
	case errors.Is(err, sfu.ErrInvalidKind):
		return errInvalidKind
	case errors.Is(err, sfu.ErrWrongDirection):
		return errWrongDirection
	case errors.Is(err, sfu.ErrOwnProducer):
		return errOwnProducer
	case errors.Is(err, sfu.ErrRoomNotFound):
		return errRoomNotFound
	case errors.Is(err, sfu.ErrTransportNotFound):
		return errTransportNotFound
	case errors.Is(err, sfu.ErrProducerNotFound):
		return errProducerNotFound
	case errors.Is(err, sfu.ErrConsumerNotFound):
		return errConsumerNotFound
	}
	return err
}
