// Package scheduler реализует cron-триггеры пайплайнов.
//
// Scheduler загружает декларации триггеров из JSON-файла и по
// расписанию отправляет их пайплайны контроллеру.
//
// Структура:
//   - trigger.go   — декларация Trigger, загрузка и валидация файла
//   - scheduler.go — основная логика (Run, Tick, fire)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	triggers, err := scheduler.LoadTriggers(os.Getenv("TRIGGERS_FILE"))
//	sched, err := scheduler.New(scheduler.Config{
//	    Submitter: controller,
//	    Triggers:  triggers,
//	    Logger:    logger,
//	})
//	go sched.Run(ctx, time.Second)
//
// Scheduler не реализует leader election: при нескольких репликах
// процесс-лидер выбирается снаружи (например, pg_try_advisory_lock).
package scheduler
