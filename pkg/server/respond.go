package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	pferrors "github.com/logflow/poflow/pkg/errors"
)

// statusFor maps an error code to its HTTP status.
func statusFor(code pferrors.Code) int {
	if code.IsInput() {
		return http.StatusBadRequest
	}
	switch code {
	case pferrors.CodeCrossTenant:
		return http.StatusForbidden
	case pferrors.CodeNotFound:
		return http.StatusNotFound
	case pferrors.CodeConfirmationRequired, pferrors.CodeJobInProgress:
		return http.StatusConflict
	case pferrors.CodeQueueFull:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func jsonResponse(w http.ResponseWriter, status int, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["success"] = true
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// jsonError writes {success:false, error, code, params}. Server-side
// failures keep only the outer message so causes and stacks stay internal.
func (s *Server) jsonError(w http.ResponseWriter, r *http.Request, err error) {
	code := pferrors.GetCode(err)
	status := statusFor(code)

	msg := "internal error"
	var pe *pferrors.PoflowError
	if errors.As(err, &pe) {
		msg = pe.Message
	}
	body := map[string]any{
		"success": false,
		"error":   msg,
		"code":    code,
	}
	if params := pferrors.GetContext(err); len(params) > 0 && status < http.StatusInternalServerError {
		body["params"] = params
	}

	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}

	if pferrors.IsRetryable(err) {
		w.Header().Set("Retry-After", "5")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// query parameter helpers; each reports a bad value as CodeInvalidArgument.

func intParam(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, pferrors.InvalidArgument(name, v, "must be a non-negative integer")
	}
	return n, nil
}

func decimalParam(r *http.Request, name string) (*decimal.Decimal, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, pferrors.InvalidArgument(name, v, "must be a decimal number")
	}
	return &d, nil
}

// dateLayouts are accepted for date filters.
var dateLayouts = []string{time.DateOnly, "1/2/2006"}

func dateParam(r *http.Request, name string) (*time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, pferrors.InvalidArgument(name, v, "must be YYYY-MM-DD or MM/DD/YYYY")
}

func invalidFormat(value string, err error) error {
	return pferrors.InvalidArgument("format", value, err.Error())
}
