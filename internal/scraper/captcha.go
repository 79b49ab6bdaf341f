package scraper

import (
	"fmt"

	"gopartsync_api/internal/core/models"
)

// blockLocked переводит поставщика в ожидание капчи. Вызывается под c.mu.
func (c *Coordinator) blockLocked(s models.Supplier, workerID string) {
	if st, ok := c.captcha[s]; ok && st.Waiting {
		return
	}
	now := c.now()
	c.captcha[s] = &CaptchaState{Supplier: s, Waiting: true, Since: &now, WorkerID: workerID}
	c.log.Error("captcha required at %s (worker %s), requests paused until resolved", s.DisplayName(), workerID)
}

func (c *Coordinator) CaptchaStatus(s models.Supplier) (CaptchaState, error) {
	if !s.Valid() {
		return CaptchaState{}, fmt.Errorf("%w: %q", models.ErrUnknownSupplier, s)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if st, ok := c.captcha[s]; ok {
		return *st, nil
	}
	return CaptchaState{Supplier: s}, nil
}

// Blocked возвращает поставщиков в ожидании капчи.
func (c *Coordinator) Blocked() []models.Supplier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.Supplier
	for s, st := range c.captcha {
		if st.Waiting {
			out = append(out, s)
		}
	}
	models.SortSuppliers(out)
	return out
}

// ResolveCaptcha снимает блокировку поставщика после ручного решения капчи оператором.
func (c *Coordinator) ResolveCaptcha(s models.Supplier) (CaptchaState, error) {
	if !s.Valid() {
		return CaptchaState{}, fmt.Errorf("%w: %q", models.ErrUnknownSupplier, s)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.captcha, s)
	for _, w := range c.workers {
		if !w.CaptchaWaiting || !w.Supports(s) {
			continue
		}
		// воркер свободен, только если ни один его поставщик не ждёт капчу
		stillBlocked := false
		for _, other := range w.Capabilities {
			if st, ok := c.captcha[other]; ok && st.Waiting {
				stillBlocked = true
				break
			}
		}
		w.CaptchaWaiting = stillBlocked
	}
	c.log.Log("captcha at %s resolved", s.DisplayName())
	return CaptchaState{Supplier: s}, nil
}
