package errs

import "net/http"

// HTTPStatus maps a code to the status used by the HTTP routes.
func HTTPStatus(code int) int {
	switch code {
	case RecordNotFoundCode:
		return http.StatusNotFound
	case UnauthorizedCode, NotAuthenticatedCode, AuthFailedCode:
		return http.StatusUnauthorized
	case StoreUnavailableCode:
		return http.StatusServiceUnavailable
	}
	if code >= ServerInternalError {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}
