package statistics

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/fitvox/FitVox/app/models"
	"github.com/fitvox/FitVox/internal/pkg/cache"
	"github.com/fitvox/FitVox/internal/pkg/database"
)

const (
	CacheKeyUsers        = "statistics:users:total"
	CacheKeySubsActive   = "statistics:subscriptions:active"
	CacheKeyVoiceDaily   = "statistics:voice:daily:%s"   // Format with date YYYY-MM-DD
	CacheKeyRevenueDaily = "statistics:revenue:daily:%s" // Format with date YYYY-MM-DD
	CacheExpiration      = 30 * time.Minute
)

// StatisticsData enthält die Kennzahlen für das Admin-Dashboard
type StatisticsData struct {
	TotalUsers          int
	ActiveSubscriptions int
	TodayVoiceSeconds   int64
	TodayRevenueCents   int64
}

// Variablen für die Cache-Aktualisierungslogik
var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute // Aktualisiere den Cache alle 5 Minuten
)

// ShouldUpdateCache prüft, ob der Cache aktualisiert werden sollte
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded aktualisiert den Cache, wenn nötig
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		if err := UpdateStatisticsCache(); err != nil {
			log.Printf("Fehler beim Aktualisieren des Statistik-Caches: %v", err)
		} else {
			lastCacheUpdate = time.Now()
		}
	}
}

// ResetCacheUpdateTimer setzt den Timer für die Cache-Aktualisierung zurück
func ResetCacheUpdateTimer() {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	lastCacheUpdate = time.Time{}
}

// UpdateStatisticsCache updates all statistics in the cache
func UpdateStatisticsCache() error {
	db := database.GetDB()
	today := time.Now().UTC().Format("2006-01-02")

	var totalUsers int64
	if err := db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		log.Printf("Error counting users: %v", err)
		return err
	}

	var activeSubs int64
	if err := db.Model(&models.Subscription{}).
		Where("status IN ?", []string{models.SubscriptionStatusActive, models.SubscriptionStatusTrialing}).
		Count(&activeSubs).Error; err != nil {
		log.Printf("Error counting active subscriptions: %v", err)
		return err
	}

	// Today's consumed voice seconds come from the ledger rows touched today.
	var voiceToday int64
	if err := db.Model(&models.VoiceUsage{}).
		Where("last_usage_date = ?", today).
		Select("COALESCE(SUM(used_today_seconds), 0)").
		Scan(&voiceToday).Error; err != nil {
		log.Printf("Error summing today's voice seconds: %v", err)
		return err
	}

	todayStart, _ := time.Parse("2006-01-02", today)
	todayEnd := todayStart.Add(24 * time.Hour)
	var revenueToday int64
	if err := db.Model(&models.Payment{}).
		Where("status = ? AND created_at BETWEEN ? AND ?", models.PaymentStatusPaid, todayStart, todayEnd).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&revenueToday).Error; err != nil {
		log.Printf("Error summing today's revenue: %v", err)
		return err
	}

	if err := cache.Set(CacheKeyUsers, strconv.FormatInt(totalUsers, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(CacheKeySubsActive, strconv.FormatInt(activeSubs, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(fmt.Sprintf(CacheKeyVoiceDaily, today), strconv.FormatInt(voiceToday, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(fmt.Sprintf(CacheKeyRevenueDaily, today), strconv.FormatInt(revenueToday, 10), CacheExpiration); err != nil {
		return err
	}

	return nil
}

// GetTotalUsers returns the total number of accounts from cache or database
func GetTotalUsers() int {
	val, err := cache.Get(CacheKeyUsers)
	if err != nil {
		var count int64
		if err := database.GetDB().Model(&models.User{}).Count(&count).Error; err != nil {
			log.Printf("Error counting users: %v", err)
			return 0
		}
		if err := cache.Set(CacheKeyUsers, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching user count: %v", err)
		}
		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return int(count)
}

// GetActiveSubscriptions returns the number of entitling subscriptions from
// cache or database. Trials count, past_due and terminal rows do not.
func GetActiveSubscriptions() int {
	val, err := cache.Get(CacheKeySubsActive)
	if err != nil {
		var count int64
		if err := database.GetDB().Model(&models.Subscription{}).
			Where("status IN ?", []string{models.SubscriptionStatusActive, models.SubscriptionStatusTrialing}).
			Count(&count).Error; err != nil {
			log.Printf("Error counting active subscriptions: %v", err)
			return 0
		}
		if err := cache.Set(CacheKeySubsActive, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching subscription count: %v", err)
		}
		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return int(count)
}

// GetTodayVoiceSeconds returns the voice seconds consumed today from cache or
// database
func GetTodayVoiceSeconds() int64 {
	today := time.Now().UTC().Format("2006-01-02")
	key := fmt.Sprintf(CacheKeyVoiceDaily, today)

	val, err := cache.Get(key)
	if err != nil {
		var sum int64
		if err := database.GetDB().Model(&models.VoiceUsage{}).
			Where("last_usage_date = ?", today).
			Select("COALESCE(SUM(used_today_seconds), 0)").
			Scan(&sum).Error; err != nil {
			log.Printf("Error summing today's voice seconds: %v", err)
			return 0
		}
		if err := cache.Set(key, strconv.FormatInt(sum, 10), CacheExpiration); err != nil {
			log.Printf("Error caching voice seconds: %v", err)
		}
		return sum
	}

	sum, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return sum
}

// GetTodayRevenueCents returns today's paid revenue from cache or database
func GetTodayRevenueCents() int64 {
	today := time.Now().UTC().Format("2006-01-02")
	key := fmt.Sprintf(CacheKeyRevenueDaily, today)

	val, err := cache.Get(key)
	if err != nil {
		todayStart, _ := time.Parse("2006-01-02", today)
		todayEnd := todayStart.Add(24 * time.Hour)
		var sum int64
		if err := database.GetDB().Model(&models.Payment{}).
			Where("status = ? AND created_at BETWEEN ? AND ?", models.PaymentStatusPaid, todayStart, todayEnd).
			Select("COALESCE(SUM(amount_cents), 0)").
			Scan(&sum).Error; err != nil {
			log.Printf("Error summing today's revenue: %v", err)
			return 0
		}
		if err := cache.Set(key, strconv.FormatInt(sum, 10), CacheExpiration); err != nil {
			log.Printf("Error caching revenue: %v", err)
		}
		return sum
	}

	sum, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return sum
}

// GetStatisticsData returns all statistics data as StatisticsData structure
func GetStatisticsData() StatisticsData {
	// Aktualisiere den Cache bei Bedarf
	UpdateCacheIfNeeded()

	return StatisticsData{
		TotalUsers:          GetTotalUsers(),
		ActiveSubscriptions: GetActiveSubscriptions(),
		TodayVoiceSeconds:   GetTodayVoiceSeconds(),
		TodayRevenueCents:   GetTodayRevenueCents(),
	}
}
