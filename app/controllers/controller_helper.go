package controllers

import (
	"strings"
	"time"

	"github.com/fitvox/FitVox/app/repository"
	"github.com/fitvox/FitVox/internal/pkg/billing"
	"github.com/fitvox/FitVox/internal/pkg/entitlements"
	"github.com/fitvox/FitVox/internal/pkg/mail"
	"github.com/fitvox/FitVox/internal/pkg/quota"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// billingStack bundles the domain services a request handler needs. Built per
// request on top of the singleton repositories, like the rest of the app.
type billingStack struct {
	repos      *repository.Repositories
	resolver   *entitlements.Resolver
	ledger     *quota.Ledger
	lifecycle  *billing.Lifecycle
	reconciler *billing.Reconciler
	changer    *billing.PlanChanger
	sweeper    *billing.Sweeper
}

func newBillingStack() *billingStack {
	repos := repository.GetGlobalRepositories()
	lifecycle := billing.NewLifecycle(repos, notifyByMail)
	reconciler := billing.NewReconciler(repos, billing.NewProviderClientFromEnv(), lifecycle)
	return &billingStack{
		repos:      repos,
		resolver:   entitlements.NewResolver(repos, lifecycle.Expire),
		ledger:     quota.NewLedger(repos),
		lifecycle:  lifecycle,
		reconciler: reconciler,
		changer:    billing.NewPlanChanger(repos, reconciler, lifecycle),
		sweeper:    billing.NewSweeper(repos, reconciler, lifecycle),
	}
}

// notifyByMail is the NotifyFunc wired into billing: fire and forget.
func notifyByMail(email, subject, body string) {
	if email == "" {
		return
	}
	go func() {
		if err := mail.SendMail(email, subject, body); err != nil {
			log.Warnf("notification to %s failed: %v", email, err)
		}
	}()
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// secondsToMinutes converts a seconds balance for presentation, rounding down.
func secondsToMinutes(seconds int64) int64 {
	return seconds / 60
}

// GetClientIP determines the actual client IP address considering proxies.
func GetClientIP(c *fiber.Ctx) string {
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
			return strings.TrimSpace(parts[0])
		}
	}
	return c.IP()
}
