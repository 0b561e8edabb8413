package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dreamshop/gateway/internal/apierr"
	"github.com/dreamshop/gateway/internal/auth"
	"github.com/dreamshop/gateway/internal/completion"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	apierr.WriteJSON(w, code, data)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierr.New(http.StatusRequestEntityTooLarge, "request body too large")
		}
		return apierr.BadRequest("invalid JSON body")
	}
	return nil
}

// readBody reads a bounded request body. Only an oversized body is a 413.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apierr.New(http.StatusRequestEntityTooLarge, "request body too large")
		}
		return nil, apierr.BadRequest("cannot read request body")
	}
	return raw, nil
}

func userID(r *http.Request) int64 {
	if c, ok := auth.ClaimsFrom(r.Context()); ok {
		return int64(c.UserID)
	}
	return 0
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apierr.BadRequest("invalid " + name)
	}
	return id, nil
}

// writeResult answers a completion call. ErrInProgress is a success: the
// payment went through and another caller is recording it.
func writeResult(w http.ResponseWriter, res *completion.Result, err error) {
	if errors.Is(err, completion.ErrInProgress) {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"success":    true,
			"processing": true,
			"message":    completion.ErrInProgress.Message,
		})
		return
	}
	if err != nil {
		apierr.Write(w, err)
		return
	}
	body := map[string]interface{}{
		"success":           true,
		"already_processed": res.AlreadyProcessed,
	}
	if res.Order != nil {
		body["order"] = res.Order
	}
	if res.Fee != nil {
		body["fee"] = res.Fee
	}
	writeJSON(w, http.StatusOK, body)
}
