package counter

import (
	"context"

	"github.com/tillworks/till/internal/pkg/cache"
)

const reconciliationKey = "checkout:counters:reconciliation"

// Counter fields tracked for the reconciliation core. Conflicts must stay
// observable, never silently resolved, so they are counted in addition to
// being logged.
const (
	FieldWebhookReceived  = "webhook_received"
	FieldMalformedPayload = "malformed_payload"
	FieldOrphanWebhook    = "orphan_webhook"
	FieldSaleConflict     = "sale_conflict"
	FieldStatusConflict   = "status_conflict"
	FieldMaterializeRace  = "materialize_race"
)

// AddWebhookReceived increments the received-delivery counter
func AddWebhookReceived() { incr(FieldWebhookReceived) }

// AddMalformedPayload increments the malformed-payload counter
func AddMalformedPayload() { incr(FieldMalformedPayload) }

// AddOrphanWebhook increments the counter for deliveries matching no session
func AddOrphanWebhook() { incr(FieldOrphanWebhook) }

// AddSaleConflict increments the counter for conflicting sale-id stamps
func AddSaleConflict() { incr(FieldSaleConflict) }

// AddStatusConflict increments the counter for conflicting terminal statuses
func AddStatusConflict() { incr(FieldStatusConflict) }

// AddMaterializeRace increments the counter for lost materialization races
func AddMaterializeRace() { incr(FieldMaterializeRace) }

// incr bumps a counter field best-effort. Without a connected Redis client
// this is a no-op; counters are advisory and must never fail a request.
func incr(field string) {
	rdb := cache.ClientIfReady()
	if rdb == nil {
		return
	}
	_ = rdb.HIncrBy(context.Background(), reconciliationKey, field, 1).Err()
}

// Snapshot returns all reconciliation counters for the ops endpoint.
func Snapshot() (map[string]string, error) {
	rdb := cache.ClientIfReady()
	if rdb == nil {
		return map[string]string{}, nil
	}
	return rdb.HGetAll(context.Background(), reconciliationKey).Result()
}
