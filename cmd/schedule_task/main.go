package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"leitura_app_echo/internal/models"
	"leitura_app_echo/internal/services"
)

func main() {
	taskName := flag.String("task_name", "", "Name of the task")
	argsStr := flag.String("arguments", "{}", "JSON arguments for the task")
	dueStr := flag.String("due", "", "Due date (format: 2006-01-02 15:04 or RFC3339)")
	taskType := flag.String("tasktype", "onetime", "Task type (onetime or recurring)")
	recurring := flag.String("recurring", "", "Recurring interval rule (RRULE)")
	maxAttempt := flag.Int("max_attempt", 3, "Max attempts")
	seedDefaults := flag.Bool("seed_defaults", false, "Seed the default recurring tasks and exit")

	flag.Parse()

	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := services.InitDB(dsn)
	if err != nil {
		log.Fatalf("Failed to connect DB: %v", err)
	}

	if *seedDefaults {
		seedDefaultTasks(db)
		return
	}

	if *taskName == "" || *dueStr == "" {
		fmt.Println("Usage: schedule_task -task_name <name> -due <YYYY-MM-DD HH:MM> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(*argsStr), &args); err != nil {
		log.Fatalf("Invalid JSON arguments: %v", err)
	}

	due, err := time.Parse(time.RFC3339, *dueStr)
	if err != nil {
		due, err = time.ParseInLocation("2006-01-02 15:04", *dueStr, time.Local)
		if err != nil {
			log.Fatalf("Invalid due date format. Use '2006-01-02 15:04' (Local) or RFC3339: %v", err)
		}
	}

	var recurringPtr *string
	if *recurring != "" {
		recurringPtr = recurring
	}

	task := models.ScheduledTask{
		TaskName:          *taskName,
		Arguments:         args,
		Due:               due,
		TaskType:          models.ScheduledTaskType(*taskType),
		RecurringInterval: recurringPtr,
		MaxAttempt:        *maxAttempt,
		Status:            models.ScheduledTaskStatusActive,
	}

	if err := db.Create(&task).Error; err != nil {
		log.Fatalf("Failed to create task: %v", err)
	}

	fmt.Printf("Successfully created task ID: %d\n", task.ID)
	fmt.Printf("Task: %s\nDue: %s\nType: %s\n", task.TaskName, task.Due, task.TaskType)
}

// seedDefaultTasks makes sure the recurring maintenance tasks exist,
// creating any that are missing. Safe to run on every deploy.
func seedDefaultTasks(db *gorm.DB) {
	hourly := "FREQ=HOURLY;INTERVAL=1"
	daily := "FREQ=DAILY;INTERVAL=1"

	defaults := []models.ScheduledTask{
		{
			TaskName:          "reconcile_payments",
			Arguments:         map[string]interface{}{},
			Due:               time.Now().Add(5 * time.Minute),
			TaskType:          models.ScheduledTaskTypeRecurring,
			RecurringInterval: &hourly,
			MaxAttempt:        3,
			Status:            models.ScheduledTaskStatusActive,
		},
		{
			TaskName:          "cleanup_webhook_events",
			Arguments:         map[string]interface{}{"retention_days": 90},
			Due:               time.Now().Add(time.Hour),
			TaskType:          models.ScheduledTaskTypeRecurring,
			RecurringInterval: &daily,
			MaxAttempt:        3,
			Status:            models.ScheduledTaskStatusActive,
		},
	}

	for _, task := range defaults {
		var existing models.ScheduledTask
		err := db.Where("task_name = ? AND status = ?", task.TaskName, models.ScheduledTaskStatusActive).First(&existing).Error
		if err == nil {
			fmt.Printf("Task %s already scheduled (ID: %d)\n", task.TaskName, existing.ID)
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Fatalf("Failed to check existing task %s: %v", task.TaskName, err)
		}
		if err := db.Create(&task).Error; err != nil {
			log.Fatalf("Failed to create task %s: %v", task.TaskName, err)
		}
		fmt.Printf("Scheduled task %s (ID: %d)\n", task.TaskName, task.ID)
	}
}
