package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"family-tasks/internal/config"
	"family-tasks/internal/model"
	"family-tasks/internal/repository"
	"family-tasks/internal/service"
)

const cbDonePrefix = "done:"

const helpText = `📋 <b>Family task tracker</b>

/today — tasks for today
/week — tasks for the next 7 days
/rules — recurring task rules
/generate — create today's instances from recurring rules
/help — this message

Tap ✅ under a task to mark your part done.`

// Bot is a read-and-trigger Telegram surface over the task store and the
// recurrence engine. All editing happens elsewhere; the bot only lists
// tasks, completes them and fires generation.
type Bot struct {
	api         *tgbotapi.BotAPI
	memberRepo  *repository.MemberRepository
	taskSvc     *service.TaskService
	periodicSvc *service.PeriodicTaskService
	reminderSvc *service.ReminderService
	config      *config.Config
}

func New(token string, memberRepo *repository.MemberRepository, taskSvc *service.TaskService,
	periodicSvc *service.PeriodicTaskService, reminderSvc *service.ReminderService, cfg *config.Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	return &Bot{
		api:         api,
		memberRepo:  memberRepo,
		taskSvc:     taskSvc,
		periodicSvc: periodicSvc,
		reminderSvc: reminderSvc,
		config:      cfg,
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				log.Printf("handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				log.Printf("handle message: %v", err)
			}
		}
	}

	return ctx.Err()
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start", "help":
		return b.reply(msg.Chat.ID, helpText)
	case "today":
		return b.sendToday(ctx, msg.Chat.ID, msg.From)
	case "week":
		return b.sendWeek(ctx, msg.Chat.ID)
	case "rules":
		return b.sendRules(ctx, msg.Chat.ID)
	case "generate":
		return b.runGenerate(ctx, msg.Chat.ID)
	default:
		return b.reply(msg.Chat.ID, "Unknown command, try /help.")
	}
}

func (b *Bot) sendToday(ctx context.Context, chatID int64, from *tgbotapi.User) error {
	today := model.Today(b.config.Location)

	// Linked members get their personal list, anyone else the family view.
	var text string
	if member := b.memberFor(ctx, from); member != nil {
		summary, err := b.reminderSvc.MemberSummary(ctx, *member, today)
		if err != nil {
			return err
		}
		text = summary
	} else {
		summary, err := b.reminderSvc.DailySummary(ctx, today)
		if err != nil {
			return err
		}
		text = summary
	}

	tasks, err := b.taskSvc.TasksByDate(ctx, today)
	if err != nil {
		return err
	}

	reply := tgbotapi.NewMessage(chatID, text)
	reply.ParseMode = tgbotapi.ModeHTML
	if markup := doneButtons(tasks); markup != nil {
		reply.ReplyMarkup = markup
	}
	_, err = b.api.Send(reply)
	return err
}

func (b *Bot) sendWeek(ctx context.Context, chatID int64) error {
	today := model.Today(b.config.Location)

	var builder strings.Builder
	builder.WriteString("🗓 <b>Next 7 days</b>\n")
	found := false
	for i := 0; i < 7; i++ {
		day := today.AddDays(i)
		tasks, err := b.taskSvc.TasksByDate(ctx, day)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			continue
		}
		found = true
		builder.WriteString(fmt.Sprintf("\n<b>%s</b>\n", day))
		for _, task := range tasks {
			icon := "🟢"
			if task.Status == model.StatusCompleted {
				icon = "✅"
			}
			builder.WriteString(fmt.Sprintf("%s %s\n", icon, html.EscapeString(task.Title)))
		}
	}
	if !found {
		return b.reply(chatID, "Nothing scheduled for the next 7 days.")
	}
	return b.reply(chatID, strings.TrimSpace(builder.String()))
}

func (b *Bot) sendRules(ctx context.Context, chatID int64) error {
	rules, err := b.periodicSvc.ListRules(ctx)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return b.reply(chatID, "No recurring rules yet.")
	}

	var builder strings.Builder
	builder.WriteString("♻️ <b>Recurring rules</b>\n\n")
	for _, rule := range rules {
		state := "active"
		switch {
		case !rule.IsActive:
			state = "inactive"
		case rule.Exhausted():
			state = "exhausted"
		}
		builder.WriteString(fmt.Sprintf("• %s — %s, %s", html.EscapeString(rule.Title), rule.PeriodicType, state))

		stats, err := b.periodicSvc.Stats(ctx, rule.ID)
		if err == nil {
			builder.WriteString(fmt.Sprintf(" (%d generated, %d done)", stats.TotalGenerated, stats.Completed))
		}
		builder.WriteByte('\n')
	}
	return b.reply(chatID, strings.TrimSpace(builder.String()))
}

func (b *Bot) runGenerate(ctx context.Context, chatID int64) error {
	today := model.Today(b.config.Location)
	count, err := b.periodicSvc.GenerateAllForDate(ctx, today)
	if err != nil {
		return err
	}
	return b.reply(chatID, fmt.Sprintf("Generated %d task(s) for %s.", count, today))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	data := cb.Data
	if !strings.HasPrefix(data, cbDonePrefix) {
		return b.answerCallback(cb.ID, "")
	}
	taskID := strings.TrimPrefix(data, cbDonePrefix)

	task, err := b.taskSvc.GetTask(ctx, taskID)
	if errors.Is(err, service.ErrNotFound) {
		return b.answerCallback(cb.ID, "Task no longer exists.")
	}
	if err != nil {
		return err
	}

	member := b.memberFor(ctx, cb.From)
	if member != nil && len(task.ExecutorIDs) > 0 && task.AssignedTo(member.ID) {
		if _, err := b.taskSvc.SetExecutorStatus(ctx, taskID, member.ID, model.StatusCompleted); err != nil {
			return err
		}
		return b.answerCallback(cb.ID, "Marked your part done ✅")
	}

	if _, err := b.taskSvc.SetStatus(ctx, taskID, model.StatusCompleted); err != nil {
		return err
	}
	return b.answerCallback(cb.ID, "Task completed ✅")
}

// SendDailySummaries pushes the personal daily summary to every member with
// a linked chat account.
func (b *Bot) SendDailySummaries(ctx context.Context) error {
	members, err := b.memberRepo.ListAll(ctx)
	if err != nil {
		return err
	}

	today := model.Today(b.config.Location)
	for _, member := range members {
		if member.TelegramID == 0 {
			continue
		}
		text, err := b.reminderSvc.MemberSummary(ctx, member, today)
		if err != nil {
			log.Printf("summary for %s: %v", member.Name, err)
			continue
		}
		if err := b.reply(member.TelegramID, text); err != nil {
			log.Printf("send summary to %s: %v", member.Name, err)
		}
	}
	return nil
}

// memberFor resolves a Telegram user to a linked family member, nil when
// the account is not linked.
func (b *Bot) memberFor(ctx context.Context, from *tgbotapi.User) *model.FamilyMember {
	if from == nil {
		return nil
	}
	member, err := b.memberRepo.FindByTelegramID(ctx, from.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("find member for telegram id %d: %v", from.ID, err)
		}
		return nil
	}
	return member
}

func (b *Bot) reply(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) answerCallback(id, text string) error {
	_, err := b.api.Request(tgbotapi.NewCallback(id, text))
	return err
}

func doneButtons(tasks []model.TodoTask) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, task := range tasks {
		if task.Status == model.StatusCompleted {
			continue
		}
		label := "✅ " + truncate(task.Title, 40)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbDonePrefix+task.ID),
		))
	}
	if len(rows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
