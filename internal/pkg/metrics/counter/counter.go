package counter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fitvox/FitVox/internal/pkg/cache"
	"github.com/fitvox/FitVox/internal/pkg/database"
)

const (
	voiceRequestsKey = "voice:counters:requests"
	voiceSecondsKey  = "voice:counters:seconds"
)

// AddVoiceRequest increments the pending request counter for a user in Redis
func AddVoiceRequest(userID uint) error {
	ctx := context.Background()
	field := strconv.FormatUint(uint64(userID), 10)
	return cache.GetClient().HIncrBy(ctx, voiceRequestsKey, field, 1).Err()
}

// AddVoiceSeconds increments the pending consumed-seconds counter for a user
// in Redis
func AddVoiceSeconds(userID uint, seconds int64) error {
	ctx := context.Background()
	field := strconv.FormatUint(uint64(userID), 10)
	return cache.GetClient().HIncrBy(ctx, voiceSecondsKey, field, seconds).Err()
}

// FlushAll flushes both counters into the voice usage ledger. The lifetime
// totals are informational only and never feed quota decisions.
func FlushAll() error {
	if err := flushHashToTable(voiceRequestsKey, "voice_usages", "request_count_total"); err != nil {
		return err
	}
	if err := flushHashToTable(voiceSecondsKey, "voice_usages", "lifetime_seconds_total"); err != nil {
		return err
	}
	return nil
}

// flushHashToTable drains a Redis hash atomically and applies batched increments per user.
// Uses RENAME to a temporary key for atomic drain without losing in-flight increments.
func flushHashToTable(redisKey, table, column string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	// Atomically move the hash to a temp key for draining
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		// Some Redis libs return redis.Nil; treat as empty
		if err.Error() == "redis: nil" {
			return nil
		}
		return err
	}

	// Ensure cleanup of tmpKey even if later steps fail
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	// Collect user ids and increments; sort ids for stable SQL
	type pair struct {
		userID uint64
		inc    int64
	}
	pairs := make([]pair, 0, len(data))
	for k, v := range data {
		id, perr := strconv.ParseUint(k, 10, 64)
		if perr != nil {
			continue
		}
		inc, ierr := strconv.ParseInt(v, 10, 64)
		if ierr != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, pair{userID: id, inc: inc})
	}
	if len(pairs) == 0 {
		return nil
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].userID < pairs[j].userID })

	// UPDATE voice_usages SET <column> = <column> + CASE user_id WHEN ? THEN ? ... END WHERE user_id IN ( ... )
	var builder strings.Builder
	args := make([]interface{}, 0, len(pairs)*3)
	builder.WriteString("UPDATE ")
	builder.WriteString(table)
	builder.WriteString(" SET ")
	builder.WriteString(column)
	builder.WriteString(" = ")
	builder.WriteString(column)
	builder.WriteString(" + CASE user_id ")
	for _, p := range pairs {
		builder.WriteString(" WHEN ? THEN ?")
		args = append(args, p.userID, p.inc)
	}
	builder.WriteString(" END WHERE user_id IN (")
	for i, p := range pairs {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString("?")
		args = append(args, p.userID)
	}
	builder.WriteString(")")

	db := database.GetDB()
	if err := db.Exec(builder.String(), args...).Error; err != nil {
		return err
	}
	return nil
}
