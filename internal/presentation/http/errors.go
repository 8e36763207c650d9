package http

import (
	"context"
	"errors"
	stdhttp "net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"wikiloult/app/internal/domain/errs"
)

const errorFallbackMessage = "Impossible de traiter la requête pour le moment."

// statusFor maps domain errors onto HTTP status codes and a user facing message.
func statusFor(err error) (int, string) {
	switch {
	case err == nil:
		return stdhttp.StatusInternalServerError, errorFallbackMessage
	case eris.Is(err, errs.ErrValidation), eris.Is(err, errs.ErrInvalidName):
		return stdhttp.StatusUnprocessableEntity, "Les données envoyées sont invalides."
	case eris.Is(err, errs.ErrDuplicateName):
		return stdhttp.StatusConflict, "Une page porte déjà ce nom."
	case eris.Is(err, errs.ErrEditConflict):
		return stdhttp.StatusConflict, "La page a été modifiée entre temps."
	case eris.Is(err, errs.ErrNoPages):
		return stdhttp.StatusNotFound, "no pages yet"
	case eris.Is(err, errs.ErrNotFound):
		return stdhttp.StatusNotFound, "Introuvable."
	case eris.Is(err, errs.ErrNotAllowed):
		return stdhttp.StatusForbidden, "Vous n'avez pas le droit de faire ça."
	case eris.Is(err, errs.ErrStoreUnavailable):
		return stdhttp.StatusServiceUnavailable, "Le wiki est momentanément indisponible."
	case errors.Is(err, context.DeadlineExceeded):
		return stdhttp.StatusServiceUnavailable, "Le wiki est momentanément indisponible."
	default:
		return stdhttp.StatusInternalServerError, errorFallbackMessage
	}
}

// apiError converts a domain error into a huma status error. Server side
// failures are logged and reported, client errors are not.
func (s *Server) apiError(ctx context.Context, err error, message string, fields logrus.Fields) error {
	status, userMessage := statusFor(err)
	if status >= stdhttp.StatusInternalServerError {
		s.recordError(ctx, err, message, fields)
	}

	var details []error
	var validation *errs.ValidationError
	if errors.As(err, &validation) {
		details = append(details, &huma.ErrorDetail{
			Message:  validation.Message,
			Location: "body." + validation.Field,
		})
	}

	return huma.NewError(status, userMessage, details...)
}

func (s *Server) recordError(ctx context.Context, err error, message string, fields logrus.Fields) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if fields != nil {
			entry = entry.WithFields(fields)
		}
		if requestID := RequestIDFromContext(ctx); requestID != "" {
			entry = entry.WithField("request_id", requestID)
		}
		entry.Error(message)
	}

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	if s.sentry != nil {
		s.sentry.CaptureException(err)
	}
}
