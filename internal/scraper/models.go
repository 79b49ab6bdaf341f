package scraper

import (
	"net"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"gopartsync_api/internal/core/models"
	"gopartsync_api/internal/pricing"
)

// Worker - внешний процесс браузерного скрейпинга.
type Worker struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	IPAddress      string            `json:"ipAddress"`
	Port           int               `json:"port"`
	Capabilities   []models.Supplier `json:"capabilities"`
	Status         string            `json:"status,omitempty"`
	BrowserReady   bool              `json:"browserReady"`
	LoggedIn       bool              `json:"loggedIn"`
	CaptchaWaiting bool              `json:"captchaWaiting"`
	RegisteredAt   time.Time         `json:"registeredAt"`
	LastHeartbeat  time.Time         `json:"lastHeartbeat"`
}

func (w *Worker) BaseURL() string {
	return "http://" + net.JoinHostPort(w.IPAddress, strconv.Itoa(w.Port))
}

func (w *Worker) Supports(s models.Supplier) bool {
	for _, c := range w.Capabilities {
		if c == s {
			return true
		}
	}
	return false
}

type WorkerView struct {
	Worker
	Online bool `json:"online"`
}

type Registration struct {
	Name         string   `json:"name"`
	IPAddress    string   `json:"ipAddress"`
	Port         int      `json:"port"`
	Capabilities []string `json:"capabilities"`
}

type Heartbeat struct {
	Status         string `json:"status"`
	BrowserReady   bool   `json:"browserReady"`
	LoggedIn       bool   `json:"loggedIn"`
	CaptchaWaiting bool   `json:"captchaWaiting"`
	// CaptchaSupplier уточняет заблокированного поставщика; пусто - все возможности воркера.
	CaptchaSupplier string `json:"captchaSupplier,omitempty"`
}

// ScrapeRequest - тело запроса к воркеру.
type ScrapeRequest struct {
	StockCode string          `json:"stockCode"`
	Supplier  models.Supplier `json:"supplier"`
}

// ScrapeResponse - ответ воркера.
type ScrapeResponse struct {
	Success                    bool            `json:"success"`
	Price                      decimal.Decimal `json:"price"`
	Stock                      int             `json:"stock"`
	IsAvailable                bool            `json:"isAvailable"`
	FoundAtSupplier            *bool           `json:"foundAtSupplier,omitempty"`
	RequiresManualIntervention bool            `json:"requiresManualIntervention"`
	Error                      string          `json:"error,omitempty"`
}

type OutcomeKind string

const (
	OutcomeFound          OutcomeKind = "found"
	OutcomeNotFound       OutcomeKind = "not_found"
	OutcomeBlocked        OutcomeKind = "blocked"
	OutcomeTransportError OutcomeKind = "transport_error"
)

// Outcome - результат одного запроса котировки.
type Outcome struct {
	Kind      OutcomeKind        `json:"kind"`
	ItemID    int64              `json:"itemId"`
	Supplier  models.Supplier    `json:"supplier"`
	WorkerID  string             `json:"workerId,omitempty"`
	Price     decimal.Decimal    `json:"price,omitempty"`
	Stock     int                `json:"stock,omitempty"`
	Available bool               `json:"available,omitempty"`
	Error     string             `json:"error,omitempty"`
	Selection *pricing.Selection `json:"selection,omitempty"`
}

// CaptchaState - состояние блокировки поставщика. Пока Waiting, запросы к поставщику не отправляются.
type CaptchaState struct {
	Supplier models.Supplier `json:"supplier"`
	Waiting  bool            `json:"waiting"`
	Since    *time.Time      `json:"since,omitempty"`
	WorkerID string          `json:"workerId,omitempty"`
}
