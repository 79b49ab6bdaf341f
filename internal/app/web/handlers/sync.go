package handlers

import (
	"context"
	"errors"
	"net/http"

	"gopartsync_api/internal/catalogsync"
	"gopartsync_api/pkg/api"
	"gopartsync_api/pkg/logger"
)

// SyncController - управление запусками синхронизации каталога.
type SyncController interface {
	Start(ctx context.Context, opts catalogsync.Options) (*catalogsync.Handle, error)
	Pause(id string) (*catalogsync.Progress, error)
	Resume(id string) (*catalogsync.Progress, error)
	Cancel(id string) (*catalogsync.Progress, error)
	GetProgress(ctx context.Context, id string) (*catalogsync.Progress, error)
	ListActive() []*catalogsync.Progress
}

type SyncHandler struct {
	sync SyncController
	log  logger.Logger
}

func NewSyncHandler(sync SyncController, log logger.Logger) *SyncHandler {
	return &SyncHandler{sync: sync, log: log}
}

type startResponse struct {
	RunID  string             `json:"runId"`
	Status catalogsync.Status `json:"status"`
	Error  string             `json:"error,omitempty"`
}

// Start: 202 с ID запуска; при недоступной витрине 502, запуск уже в состоянии failed.
func (h *SyncHandler) Start(w http.ResponseWriter, r *http.Request) {
	var opts catalogsync.Options
	if err := decodeJSON(r, &opts, true); err != nil {
		api.WriteBadRequest(w, err.Error(), r.URL.Path)
		return
	}
	if opts.BatchSize < 0 {
		api.WriteBadRequest(w, "batchSize must not be negative", r.URL.Path)
		return
	}

	handle, err := h.sync.Start(r.Context(), opts)
	if err != nil {
		if errors.Is(err, catalogsync.ErrConnectivity) && handle != nil {
			h.log.Error("sync run %s failed to start: %v", handle.ID, err)
			api.WriteJSON(w, http.StatusBadGateway, startResponse{RunID: handle.ID, Status: catalogsync.StatusFailed, Error: err.Error()})
			return
		}
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusAccepted, startResponse{RunID: handle.ID, Status: catalogsync.StatusRunning})
}

func (h *SyncHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.sync.Pause)
}

func (h *SyncHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.sync.Resume)
}

func (h *SyncHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.sync.Cancel)
}

func (h *SyncHandler) change(w http.ResponseWriter, r *http.Request, op func(string) (*catalogsync.Progress, error)) {
	p, err := op(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, p)
}

func (h *SyncHandler) Progress(w http.ResponseWriter, r *http.Request) {
	p, err := h.sync.GetProgress(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, p)
}

func (h *SyncHandler) List(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"runs": h.sync.ListActive()})
}
