package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/confmail/mailbatch/internal/config"
	"github.com/confmail/mailbatch/internal/infra/sqlite"
	"github.com/confmail/mailbatch/internal/infra/sqlite/migrations"
	"github.com/confmail/mailbatch/internal/observability"
	"github.com/confmail/mailbatch/internal/provider"
	"github.com/confmail/mailbatch/internal/repository"
	"github.com/confmail/mailbatch/internal/service"
)

type commandFn func(app *appContext, args []string) error

type command struct {
	name        string
	usage       string
	description string
	run         commandFn
}

type appContext struct {
	ctx     context.Context
	logger  *zap.Logger
	batches *service.BatchService
	ingest  *service.IngestService
	send    *service.SendService
}

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}
	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmdName)
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := sqlite.NewSQLite(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("store initialization failed", zap.Error(err))
	}
	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("store migrations failed", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("store underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	batchRepo := repository.NewGormBatchRepo(db)
	requestRepo := repository.NewGormRequestRepo(db)
	mailer := provider.NewSendGridClient(cfg.SendGridAPIKey, time.Duration(cfg.SendGridTimeoutSec)*time.Second)

	batches, err := service.NewBatchService(batchRepo, requestRepo, mailer, logger)
	if err != nil {
		logger.Fatal("batch service init failed", zap.Error(err))
	}
	ingest, err := service.NewIngestService(batchRepo, requestRepo, promptConfirm, logger)
	if err != nil {
		logger.Fatal("ingest service init failed", zap.Error(err))
	}
	send, err := service.NewSendService(batchRepo, requestRepo, mailer, logger)
	if err != nil {
		logger.Fatal("send service init failed", zap.Error(err))
	}

	app := &appContext{
		ctx:     context.Background(),
		logger:  logger,
		batches: batches,
		ingest:  ingest,
		send:    send,
	}

	if err := cmd.run(app, os.Args[2:]); err != nil {
		observability.WithContextLogger(logger, app.ctx).Error("command failed",
			zap.String("command", cmdName), zap.Error(err))
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmdName, err)
		os.Exit(1)
	}
}

func commands() map[string]command {
	return map[string]command{
		"list": {
			name:        "list",
			usage:       "list [which]",
			description: "List batches (active, all, or a batch id; default active)",
			run:         runList,
		},
		"create": {
			name:        "create",
			usage:       "create <batch_id> <template_key>",
			description: "Create a new batch from a template",
			run:         runCreate,
		},
		"add": {
			name:        "add",
			usage:       "add <batch_id> <csv_path>",
			description: "Add a CSV of recipient rows to a batch",
			run:         runAdd,
		},
		"templates": {
			name:        "templates",
			usage:       "templates",
			description: "List delivery provider templates",
			run:         runTemplates,
		},
		"test": {
			name:        "test",
			usage:       "test <batch_id> <to_email>",
			description: "Send the batch's first request to an address as a preview",
			run:         runTest,
		},
		"remove": {
			name:        "remove",
			usage:       "remove <batch_id>",
			description: "Delete a batch and all of its requests",
			run:         runRemove,
		},
		"send": {
			name:        "send",
			usage:       "send <batch_id> [how_many]",
			description: "Send a batch (all, a percentage like 50%, or a count; default all)",
			run:         runSend,
		},
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: mailbatch <command> [args]")
	fmt.Fprintln(os.Stderr, "")

	all := commands()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stderr, 0, 4, 2, ' ', 0)
	for _, name := range names {
		cmd := all[name]
		fmt.Fprintf(w, "  %s\t%s\n", cmd.usage, cmd.description)
	}
	w.Flush()
}

func runList(app *appContext, args []string) error {
	which := service.SelectorActive
	if len(args) > 0 {
		which = args[0]
	}

	summaries, err := app.batches.List(app.ctx, which)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "batch_id\tadded\tsent\ttokens")
	for _, summary := range summaries {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n",
			summary.BatchID, summary.Added, summary.Sent, strings.Join(summary.Tokens, ","))
	}
	return w.Flush()
}

func runCreate(app *appContext, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: create <batch_id> <template_key>")
	}
	app.ctx = observability.WithBatchID(app.ctx, args[0])

	batch, err := app.batches.Create(app.ctx, args[0], args[1])
	if err != nil {
		return err
	}

	fmt.Printf("created batch %s with tokens [%s]\n", batch.BatchID, strings.Join(batch.Tokens, ", "))
	return nil
}

func runAdd(app *appContext, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: add <batch_id> <csv_path>")
	}
	app.ctx = observability.WithBatchID(app.ctx, args[0])

	file, err := os.Open(args[1])
	if err != nil {
		return fmt.Errorf("failed to open csv: %w", err)
	}
	defer file.Close()

	return app.ingest.AddCSV(app.ctx, args[0], file)
}

func runTemplates(app *appContext, args []string) error {
	templates, err := app.batches.Templates(app.ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "name\tid\tdate")
	for _, tpl := range templates {
		fmt.Fprintf(w, "%s\t%s\t%s\n", tpl.Name, tpl.ID, tpl.Updated)
	}
	return w.Flush()
}

func runTest(app *appContext, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: test <batch_id> <to_email>")
	}
	app.ctx = observability.WithBatchID(app.ctx, args[0])
	return app.send.SendTest(app.ctx, args[0], args[1])
}

func runRemove(app *appContext, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: remove <batch_id>")
	}
	app.ctx = observability.WithBatchID(app.ctx, args[0])
	return app.batches.Remove(app.ctx, args[0])
}

func runSend(app *appContext, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: send <batch_id> [how_many]")
	}
	app.ctx = observability.WithBatchID(app.ctx, args[0])
	howMany := service.QuotaAll
	if len(args) == 2 {
		howMany = args[1]
	}

	spinner := `|\-/`
	app.send.OnProgress(func(sent, quota int) {
		fmt.Printf("\r%c sending email %d/%d", spinner[sent%len(spinner)], sent, quota)
	})

	sent, err := app.send.SendBatch(app.ctx, args[0], howMany)
	if sent > 0 {
		fmt.Println()
	}
	if err != nil {
		return err
	}

	fmt.Printf("sent %d emails\n", sent)
	return nil
}

// promptConfirm is the interactive confirm-to-proceed gate for imports with
// missing tokens.
func promptConfirm(warnings []service.TokenWarning) bool {
	fmt.Println("Some tokens are missing from the values to be added.")
	for _, warning := range warnings {
		fmt.Printf("%s: %d missing values\n", warning.Token, warning.Missing)
	}
	fmt.Print("Proceed ([n]/y)? ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "y")
}
