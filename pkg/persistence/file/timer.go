package file

import (
	"context"
	"slices"
	"time"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
)

// TimerRepository handles delay-timer file operations.
type TimerRepository struct {
	p    *Persistence
	docs collection[models.DelayTimer]
}

func (r *TimerRepository) Save(_ context.Context, timer *models.DelayTimer) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if timer.ID == "" {
		timer.ID = newID()
	}

	if timer.Status == "" {
		timer.Status = models.TimerPending
	}

	if timer.CreatedAt.IsZero() {
		timer.CreatedAt = time.Now().UTC()
	}

	return r.docs.write(timer.ID, timer)
}

// Due returns pending timers whose resume time has passed, earliest first.
func (r *TimerRepository) Due(_ context.Context, now time.Time, limit int) ([]*models.DelayTimer, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	timers, err := r.docs.all()
	if err != nil {
		return nil, err
	}

	timers = slices.DeleteFunc(timers, func(timer *models.DelayTimer) bool { return !timer.Due(now) })
	slices.SortFunc(timers, func(a, b *models.DelayTimer) int { return a.ResumeAt.Compare(b.ResumeAt) })

	if limit > 0 && len(timers) > limit {
		timers = timers[:limit]
	}

	return timers, nil
}

func (r *TimerRepository) Claim(_ context.Context, id string) (bool, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	timer, err := r.docs.read(id)
	if err != nil {
		return false, err
	}

	if timer == nil {
		return false, persistence.ErrTimerNotFound
	}

	if timer.Status != models.TimerPending {
		return false, nil
	}

	timer.Status = models.TimerFired

	return true, r.docs.write(timer.ID, timer)
}
