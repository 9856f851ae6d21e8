package controllers

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/fitvox/FitVox/app/models"
	"github.com/fitvox/FitVox/internal/pkg/billing"
	"github.com/fitvox/FitVox/internal/pkg/env"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

const webhookProcessTimeout = 15 * time.Second

// payGateWebhookPayload mirrors the provider's webhook body. Metadata carries
// the user and plan references we attach when creating the payment link.
type payGateWebhookPayload struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	Data  struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		Amount      int64  `json:"amount"`
		PaymentLink string `json:"payment_link"`
		Customer    struct {
			Email string `json:"email"`
		} `json:"customer"`
		Metadata map[string]string `json:"metadata"`
	} `json:"data"`
}

// HandlePayGateWebhook ingests provider webhooks. Every accepted event is
// stored before processing; duplicates and benign event types are acknowledged
// with 200 so the provider stops retrying them.
func HandlePayGateWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	secretOK := billing.VerifyWebhookSecret(c.Get("x-webhook-secret"), billing.WebhookSecret())
	testMode := env.GetEnv("WEBHOOK_TEST_MODE", "false") == "true"
	if !secretOK && !testMode {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_secret"})
	}

	var payload payGateWebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if payload.Data.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_payment_id"})
	}

	eventID := strings.TrimSpace(payload.ID)
	if eventID == "" {
		// Providers without a delivery id: dedup on event type + payment id.
		eventID = payload.Event + ":" + payload.Data.ID + ":" + payload.Data.Status
	}

	stack := newBillingStack()
	created, stored, err := stack.repos.Payment.CreateWebhookEventIfNotExists(&models.WebhookEvent{
		Provider:        models.PaymentProviderPayGate,
		ProviderEventID: eventID,
		EventType:       payload.Event,
		PayloadJSON:     string(rawBody),
		SignatureValid:  secretOK,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		return c.JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	ev := billing.ProviderEvent{
		Provider:      models.PaymentProviderPayGate,
		EventID:       eventID,
		EventType:     payload.Event,
		PaymentID:     payload.Data.ID,
		PaymentStatus: payload.Data.Status,
		AmountCents:   payload.Data.Amount,
		CustomerEmail: payload.Data.Customer.Email,
		UserID:        metadataUserID(payload.Data.Metadata),
		PlanName:      payload.Data.Metadata["plan"],
		RawJSON:       string(rawBody),
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookProcessTimeout)
	defer cancel()

	changed, err := stack.reconciler.ApplyProviderEvent(ctx, ev)
	if err != nil {
		log.Errorf("webhook %s processing failed: %v", eventID, err)
		if markErr := stack.repos.Payment.MarkWebhookProcessed(stored.ID, err.Error()); markErr != nil {
			log.Errorf("marking webhook %d failed: %v", stored.ID, markErr)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}
	if err := stack.repos.Payment.MarkWebhookProcessed(stored.ID, ""); err != nil {
		log.Errorf("marking webhook %d failed: %v", stored.ID, err)
	}

	if !changed {
		return c.JSON(fiber.Map{"ok": true, "processed": false})
	}
	return c.JSON(fiber.Map{"ok": true, "processed": true})
}

func metadataUserID(metadata map[string]string) uint {
	raw, ok := metadata["user_id"]
	if !ok {
		return 0
	}
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}
