package tasks

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"leitura_app_echo/internal/models"
	"leitura_app_echo/internal/services"
)

// ReconcilePaymentsTaskDef runs the pending-payment sweep on schedule so
// charges missed by webhooks still get activated without an admin asking.
type ReconcilePaymentsTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *ReconcilePaymentsTaskDef) TaskID() string {
	return "reconcile_payments"
}

// HandleExecution runs one bounded reconciliation sweep
func (t *ReconcilePaymentsTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	payments := services.NewPaymentService(db, services.NewMercadoPagoService(), nil)

	report, err := payments.Reconcile(ctx)
	if err != nil {
		return nil, err
	}

	log.Printf("[Task: reconcile_payments] processed=%d activated=%d errors=%d",
		report.Processed, report.Activated, len(report.Errors))

	return map[string]interface{}{
		"status":         "success",
		"processed":      report.Processed,
		"activated":      report.Activated,
		"already_active": report.AlreadyActive,
		"errors":         report.Errors,
	}, nil
}

// ReconcilePaymentsTask is the singleton instance of ReconcilePaymentsTaskDef
var ReconcilePaymentsTask = &ReconcilePaymentsTaskDef{}

// CleanupWebhookEventsTaskDef prunes old webhook audit rows. Retention in
// days comes from the task arguments, defaulting to 90.
type CleanupWebhookEventsTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *CleanupWebhookEventsTaskDef) TaskID() string {
	return "cleanup_webhook_events"
}

// HandleExecution deletes webhook events older than the retention window
func (t *CleanupWebhookEventsTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	retentionDays := 90
	if val, ok := task.Arguments["retention_days"].(float64); ok && val > 0 {
		retentionDays = int(val)
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result := db.Unscoped().Where("created_at < ?", cutoff).Delete(&models.WebhookEvent{})
	if result.Error != nil {
		return nil, result.Error
	}

	log.Printf("[Task: cleanup_webhook_events] deleted %d events older than %d days", result.RowsAffected, retentionDays)

	return map[string]interface{}{
		"status":         "success",
		"deleted_count":  result.RowsAffected,
		"retention_days": retentionDays,
	}, nil
}

// CleanupWebhookEventsTask is the singleton instance of CleanupWebhookEventsTaskDef
var CleanupWebhookEventsTask = &CleanupWebhookEventsTaskDef{}
