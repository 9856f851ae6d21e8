package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/fitvox/FitVox/app/repository"
	"github.com/fitvox/FitVox/internal/pkg/billing"
	"github.com/fitvox/FitVox/internal/pkg/cache"
	"github.com/fitvox/FitVox/internal/pkg/database"
	"github.com/fitvox/FitVox/internal/pkg/env"
	"github.com/fitvox/FitVox/internal/pkg/mail"
)

// One-shot renewal sweep for cron. Per-row failures are counted by the
// sweeper itself; only infrastructure failures exit non-zero.
func main() {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	repos := repository.GetGlobalRepositories()
	lifecycle := billing.NewLifecycle(repos, func(email, subject, body string) {
		if email == "" {
			return
		}
		if err := mail.SendMail(email, subject, body); err != nil {
			log.Printf("notification to %s failed: %v", email, err)
		}
	})
	reconciler := billing.NewReconciler(repos, billing.NewProviderClientFromEnv(), lifecycle)
	sweeper := billing.NewSweeper(repos, reconciler, lifecycle)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result, err := sweeper.Run(ctx, time.Now())
	if err != nil {
		log.Printf("renewal sweep failed: %v", err)
		os.Exit(1)
	}
	log.Printf("renewal sweep done: due=%d renewed=%d expired=%d past_due=%d canceled=%d skipped=%d errors=%d",
		result.Due, result.Renewed, result.Expired, result.PastDue, result.Canceled, result.Skipped, result.Errors)
}
