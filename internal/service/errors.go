package service

import (
	"errors"
	"net/http"

	"go-shortener-pipeline/internal/domain"
	"go-shortener-pipeline/internal/infra/publishqueue"
	"go-shortener-pipeline/pkg/problemdetails"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// toError maps use case errors onto kratos errors. The reason doubles as the
// problem type.
func toError(err error) *kerrors.Error {
	switch {
	case errors.Is(err, domain.ErrInvalidURL):
		return kerrors.BadRequest(problemdetails.TypeInvalidURL, err.Error())
	case errors.Is(err, domain.ErrInvalidKey):
		return kerrors.NotFound(problemdetails.TypeInvalidKey, err.Error())
	case errors.Is(err, domain.ErrInvalidUserID):
		return kerrors.BadRequest(problemdetails.TypeInvalidRequest, err.Error())
	case errors.Is(err, domain.ErrURLNotFound):
		return kerrors.NotFound(problemdetails.TypeNotFound, err.Error())
	case errors.Is(err, domain.ErrURLInactive):
		return kerrors.New(http.StatusGone, problemdetails.TypeGone, err.Error())
	case errors.Is(err, domain.ErrKeyExhausted), errors.Is(err, publishqueue.ErrStopped):
		return kerrors.ServiceUnavailable(problemdetails.TypeUnavailable, err.Error())
	default:
		return kerrors.InternalServer(problemdetails.TypeInternalError, "internal server error")
	}
}

func writeError(w http.ResponseWriter, err error) {
	e := toError(err)
	status := int(e.Code)
	problemdetails.Write(w, problemdetails.New(status, e.Reason, http.StatusText(status), e.Message))
}
