package billing

import (
	"fmt"
	"sync"
	"time"

	"github.com/fitvox/FitVox/app/models"
	"github.com/fitvox/FitVox/app/repository"
	"gorm.io/gorm"
)

// memStore is an in-memory stand-in for the database, shared by all fake
// repositories of one test.
type memStore struct {
	mu sync.Mutex

	users    map[uint]*models.User
	settings map[uint]*models.UserSettings

	nextSubID uint
	subs      map[uint]*models.Subscription

	usage  map[uint]*models.VoiceUsage
	passes map[uint]*models.UnlimitedPass

	payments     map[string]*models.Payment // keyed provider|paymentID
	applications map[string]bool            // keyed subID|status|paymentID

	notifications []string

	// clock is the shared notion of now for every component wired to
	// timeNow. Zero means wall clock.
	clock time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:        make(map[uint]*models.User),
		settings:     make(map[uint]*models.UserSettings),
		subs:         make(map[uint]*models.Subscription),
		usage:        make(map[uint]*models.VoiceUsage),
		passes:       make(map[uint]*models.UnlimitedPass),
		payments:     make(map[string]*models.Payment),
		applications: make(map[string]bool),
	}
}

func (s *memStore) addUser(id uint, email string) {
	s.users[id] = &models.User{ID: id, Email: email, Name: "user", Status: models.STATUS_ACTIVE}
}

func (s *memStore) repos() *repository.Repositories {
	return &repository.Repositories{
		User:         &fakeUserRepo{s: s},
		Subscription: &fakeSubRepo{s: s},
		Quota:        &fakeQuotaRepo{s: s},
		Payment:      &fakePaymentRepo{s: s},
	}
}

func (s *memStore) setClock(t time.Time) {
	s.mu.Lock()
	s.clock = t
	s.mu.Unlock()
}

func (s *memStore) timeNow() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clock.IsZero() {
		return time.Now()
	}
	return s.clock
}

func (s *memStore) notify(email, subject, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, email+": "+subject)
}

type fakeUserRepo struct{ s *memStore }

func (r *fakeUserRepo) Create(user *models.User) error { r.s.users[user.ID] = user; return nil }

func (r *fakeUserRepo) GetByID(id uint) (*models.User, error) {
	u, ok := r.s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByEmail(email string) (*models.User, error) {
	for _, u := range r.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error) {
	for id, us := range r.s.settings {
		if us.APIKeyHash == hash {
			return r.s.users[id], us, nil
		}
	}
	return nil, nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) Update(user *models.User) error { r.s.users[user.ID] = user; return nil }

func (r *fakeUserRepo) GetOrCreateSettings(userID uint) (*models.UserSettings, error) {
	if us, ok := r.s.settings[userID]; ok {
		return us, nil
	}
	us := &models.UserSettings{UserID: userID, Plan: "free"}
	r.s.settings[userID] = us
	return us, nil
}

func (r *fakeUserRepo) SaveSettings(us *models.UserSettings) error {
	r.s.settings[us.UserID] = us
	return nil
}

type fakeSubRepo struct{ s *memStore }

func (r *fakeSubRepo) Create(sub *models.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextSubID++
	sub.ID = r.s.nextSubID
	sub.CreatedAt = time.Now()
	cp := *sub
	r.s.subs[sub.ID] = &cp
	return nil
}

func (r *fakeSubRepo) GetByID(id uint) (*models.Subscription, error) {
	sub, ok := r.s.subs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sub
	return &cp, nil
}

func (r *fakeSubRepo) GetActiveByUser(userID uint) (*models.Subscription, error) {
	var best *models.Subscription
	for _, sub := range r.s.subs {
		if sub.UserID != userID || sub.Status != models.SubscriptionStatusActive {
			continue
		}
		if best == nil || sub.ID > best.ID {
			best = sub
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *fakeSubRepo) GetEntitlingByUser(userID uint) (*models.Subscription, error) {
	var best *models.Subscription
	for _, sub := range r.s.subs {
		if sub.UserID != userID || !sub.IsEntitling() {
			continue
		}
		if best == nil || sub.ID > best.ID {
			best = sub
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *fakeSubRepo) ListByUser(userID uint) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, sub := range r.s.subs {
		if sub.UserID == userID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (r *fakeSubRepo) ListDue(now time.Time) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, sub := range r.s.subs {
		switch sub.Status {
		case models.SubscriptionStatusActive, models.SubscriptionStatusPastDue, models.SubscriptionStatusTrialing:
			if !sub.CurrentPeriodEnd.After(now) {
				out = append(out, *sub)
			}
		}
	}
	return out, nil
}

func (r *fakeSubRepo) Update(sub *models.Subscription) error {
	if _, ok := r.s.subs[sub.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *sub
	r.s.subs[sub.ID] = &cp
	return nil
}

func (r *fakeSubRepo) FindByProviderPayment(provider, providerPaymentID string) (*models.Subscription, error) {
	var best *models.Subscription
	for _, sub := range r.s.subs {
		if sub.PaymentProvider == provider && sub.ProviderPaymentID == providerPaymentID {
			if best == nil || sub.ID > best.ID {
				best = sub
			}
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *best
	return &cp, nil
}

type fakeQuotaRepo struct{ s *memStore }

func (r *fakeQuotaRepo) GetOrCreateUsage(userID uint) (*models.VoiceUsage, error) {
	if u, ok := r.s.usage[userID]; ok {
		cp := *u
		return &cp, nil
	}
	u := &models.VoiceUsage{UserID: userID}
	r.s.usage[userID] = u
	cp := *u
	return &cp, nil
}

func (r *fakeQuotaRepo) ResetDaily(userID uint, today string) (bool, error) {
	u, ok := r.s.usage[userID]
	if !ok || u.LastUsageDate == today {
		return false, nil
	}
	u.LastUsageDate = today
	u.UsedTodaySeconds = 0
	return true, nil
}

func (r *fakeQuotaRepo) TryConsume(usage *models.VoiceUsage, fromDaily, fromBanked int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.usage[usage.UserID]
	if !ok {
		return false, nil
	}
	if u.UsedTodaySeconds != usage.UsedTodaySeconds ||
		u.BankedBalanceSeconds != usage.BankedBalanceSeconds ||
		u.LastUsageDate != usage.LastUsageDate {
		return false, nil
	}
	u.UsedTodaySeconds += fromDaily
	u.BankedBalanceSeconds -= fromBanked
	return true, nil
}

func (r *fakeQuotaRepo) SetDailyLimit(userID uint, dailyLimitSeconds int64) error {
	u, err := r.GetOrCreateUsage(userID)
	if err != nil {
		return err
	}
	r.s.usage[userID].DailyLimitSeconds = dailyLimitSeconds
	_ = u
	return nil
}

func (r *fakeQuotaRepo) ApplyTurbo(userID uint, bonusSeconds int64, expiresAt time.Time) error {
	if _, err := r.GetOrCreateUsage(userID); err != nil {
		return err
	}
	u := r.s.usage[userID]
	u.TurboBonusSeconds = bonusSeconds
	u.TurboExpiresAt = &expiresAt
	return nil
}

func (r *fakeQuotaRepo) AddBanked(userID uint, seconds int64) error {
	if _, err := r.GetOrCreateUsage(userID); err != nil {
		return err
	}
	r.s.usage[userID].BankedBalanceSeconds += seconds
	return nil
}

func (r *fakeQuotaRepo) GetUnlimitedPass(userID uint) (*models.UnlimitedPass, error) {
	p, ok := r.s.passes[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeQuotaRepo) UpsertUnlimitedPass(userID uint, expiresAt time.Time) error {
	r.s.passes[userID] = &models.UnlimitedPass{UserID: userID, ExpiresAt: expiresAt}
	return nil
}

func (r *fakeQuotaRepo) CreateRecharge(recharge *models.Recharge) error { return nil }

type fakePaymentRepo struct{ s *memStore }

func paymentKey(provider, paymentID string) string { return provider + "|" + paymentID }

func (r *fakePaymentRepo) UpsertPayment(p *models.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *p
	r.s.payments[paymentKey(p.Provider, p.ProviderPaymentID)] = &cp
	return nil
}

func (r *fakePaymentRepo) GetByProviderPaymentID(provider, providerPaymentID string) (*models.Payment, error) {
	p, ok := r.s.payments[paymentKey(provider, providerPaymentID)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePaymentRepo) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	return true, event, nil
}

func (r *fakePaymentRepo) MarkWebhookProcessed(id uint, processingError string) error { return nil }

func (r *fakePaymentRepo) CreateEventApplicationIfNew(subscriptionID uint, targetStatus, providerPaymentID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := fmt.Sprintf("%d|%s|%s", subscriptionID, targetStatus, providerPaymentID)
	if r.s.applications[key] {
		return false, nil
	}
	r.s.applications[key] = true
	return true, nil
}
