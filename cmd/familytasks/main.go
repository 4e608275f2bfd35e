package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"family-tasks/internal/bot"
	"family-tasks/internal/config"
	"family-tasks/internal/model"
	"family-tasks/internal/repository"
	"family-tasks/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	memberRepo := repository.NewMemberRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	periodicRepo := repository.NewPeriodicTaskRepository(db)

	taskSvc := service.NewTaskService(taskRepo, cfg.MediaDir)
	periodicSvc := service.NewPeriodicTaskService(periodicRepo, taskSvc)
	reminderSvc := service.NewReminderService(taskSvc, memberRepo)

	// Catch up on instances missed while the process was down, today
	// included. Generation is idempotent, so rerunning on every boot is
	// harmless.
	catchUp := func(jobCtx context.Context) {
		today := model.Today(cfg.Location)
		count, err := periodicSvc.GenerateForDateRange(jobCtx, today.AddDays(-cfg.BackfillDays), today)
		if err != nil {
			log.Printf("generate: %v", err)
			return
		}
		if count > 0 {
			log.Printf("[info] generated %d task(s) up to %s", count, today)
		}
	}
	catchUp(ctx)

	scheduler := service.NewSchedulerService(cfg.Location)
	if _, err := scheduler.ScheduleDaily("generation", cfg.GenerateTime, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		catchUp(jobCtx)
	}); err != nil {
		log.Fatalf("schedule generation: %v", err)
	}

	if cfg.TelegramToken == "" {
		scheduler.Start()
		defer scheduler.Stop()
		log.Println("Family tasks started (no Telegram token, running headless).")
		<-ctx.Done()
		log.Println("Shutdown complete.")
		return
	}

	telegramBot, err := bot.New(cfg.TelegramToken, memberRepo, taskSvc, periodicSvc, reminderSvc, &cfg)
	if err != nil {
		log.Fatalf("bot: %v", err)
	}

	if _, err := scheduler.ScheduleDaily("reminders", cfg.ReminderTime, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := telegramBot.SendDailySummaries(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("reminders: %v", err)
		}
	}); err != nil {
		log.Fatalf("schedule reminders: %v", err)
	}

	scheduler.Start()
	defer scheduler.Stop()

	log.Println("Family tasks started.")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("bot stopped with error: %v", err)
	}
	log.Println("Shutdown complete.")
}
