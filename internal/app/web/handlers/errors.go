package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"gopartsync_api/internal/catalogsync"
	"gopartsync_api/internal/core/models"
	"gopartsync_api/internal/pricing"
	"gopartsync_api/internal/ratelimit"
	"gopartsync_api/internal/scraper"
	"gopartsync_api/internal/storage"
	"gopartsync_api/pkg/api"
)

const maxBodyBytes = 1 << 20

// writeError переводит ошибки сервисов в problem details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	instance := r.URL.Path

	var rejected *ratelimit.RejectedError
	switch {
	case errors.As(err, &rejected):
		api.WriteTooManyRequests(w, rejected.RetryAfter, instance)
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, catalogsync.ErrRunNotFound),
		errors.Is(err, scraper.ErrWorkerNotFound):
		api.WriteNotFound(w, err.Error(), instance)
	case errors.Is(err, catalogsync.ErrInvalidTransition):
		api.WriteConflict(w, err.Error(), instance)
	case errors.Is(err, models.ErrUnknownSupplier),
		errors.Is(err, scraper.ErrInvalidRegistration),
		errors.Is(err, pricing.ErrInvalidValue):
		api.WriteBadRequest(w, err.Error(), instance)
	case errors.Is(err, scraper.ErrCaptchaPending):
		api.WriteError(w, http.StatusLocked, "Locked", err.Error(), instance)
	case errors.Is(err, scraper.ErrNoWorker):
		api.WriteServiceUnavailable(w, err.Error(), instance)
	default:
		api.WriteInternalServerError(w, err, instance)
	}
}

// decodeJSON читает тело запроса. Пустое тело допустимо, если allowEmpty.
func decodeJSON(r *http.Request, dst interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

func pathSupplier(r *http.Request) (models.Supplier, error) {
	return models.ParseSupplier(r.PathValue("supplier"))
}
