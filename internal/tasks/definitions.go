package tasks

// DefineTasks registers all available tasks
func DefineTasks() {
	RegisterHandler(ReconcilePaymentsTask.TaskID(), ReconcilePaymentsTask.HandleExecution)
	RegisterHandler(CleanupWebhookEventsTask.TaskID(), CleanupWebhookEventsTask.HandleExecution)
}
