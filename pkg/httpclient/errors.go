package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/leduxro-prog/erp-dashboard-sub000/pkg/errors"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/httputil"
)

const maxErrorBody = 64 << 10

// statusSentinels maps peer 4xx/503 statuses onto local sentinels so callers
// can branch with errors.Is.
var statusSentinels = map[int]error{
	http.StatusBadRequest:          apperrors.ErrInvalidInput,
	http.StatusUnauthorized:        apperrors.ErrUnauthorized,
	http.StatusNotFound:            apperrors.ErrNotFound,
	http.StatusConflict:            apperrors.ErrConflict,
	http.StatusUnprocessableEntity: apperrors.ErrUnprocessable,
	http.StatusServiceUnavailable:  apperrors.ErrServiceUnavail,
}

// ParseResponseError consumes and closes a non-2xx response from service.
//
// A body in the standard error envelope becomes an *apperrors.AppError
// carrying the peer's code, or a *ServerError for other 5xx statuses. Any
// other body is returned verbatim in a plain error.
func ParseResponseError(resp *http.Response, service string) error {
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", service, resp.StatusCode, err)
	}

	var env httputil.Response
	if json.Unmarshal(raw, &env) != nil || env.Error == nil {
		return fmt.Errorf("%s returned status %d: %s", service, resp.StatusCode, raw)
	}

	sentinel, mapped := statusSentinels[resp.StatusCode]
	if !mapped && resp.StatusCode >= http.StatusInternalServerError {
		return &ServerError{
			Service: service,
			Status:  resp.StatusCode,
			Body:    env.Error.Code + ": " + env.Error.Message,
		}
	}
	return &apperrors.AppError{
		Code:    env.Error.Code,
		Message: service + ": " + env.Error.Message,
		Status:  resp.StatusCode,
		Err:     sentinel,
	}
}
