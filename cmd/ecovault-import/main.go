// ecovault-import applies a CSV file to the vault database as one import
// batch, or prints a reconciliation of ecosystems against Getlate profiles.
//
// Usage:
//
//	ecovault-import --kind platforms --file platforms.csv --actor admin@example.org
//	ecovault-import --sync
//
// Configuration comes from the same ECOVAULT_ environment variables as the
// server. The first users import into an empty database may omit --actor.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/ecovault/internal/adapter/driven/aesgcm"
	"github.com/ericfisherdev/ecovault/internal/adapter/driven/getlate"
	sqliteadapter "github.com/ericfisherdev/ecovault/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/ecovault/internal/adapter/driven/totp"
	"github.com/ericfisherdev/ecovault/internal/application"
	"github.com/ericfisherdev/ecovault/internal/config"
	"github.com/ericfisherdev/ecovault/internal/domain/model"
)

type options struct {
	kind   string
	file   string
	actor  string
	dbPath string
	sync   bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("ecovault-import", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.kind, "kind", "k", "", "entity kind: users, ecosystems, platforms or user-assignments")
	flagSet.StringVarP(&opts.file, "file", "f", "", "CSV file to import (- for stdin)")
	flagSet.StringVar(&opts.actor, "actor", "", "email of the admin performing the import")
	flagSet.StringVar(&opts.dbPath, "db", "", "database path (overrides ECOVAULT_DB_PATH)")
	flagSet.BoolVar(&opts.sync, "sync", false, "print a reconciliation of ecosystems against Getlate profiles and exit")

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument: %s", extra[0])
	}
	if !opts.sync && (opts.kind == "" || opts.file == "") {
		return errors.New("--kind and --file are required unless --sync is set")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if _, err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}

	if opts.sync {
		return runSync(ctx, cfg, db, logger, out)
	}
	return runImport(ctx, cfg, db, opts, logger, out)
}

func runImport(ctx context.Context, cfg *config.Config, db *sqliteadapter.DB, opts options, logger *slog.Logger, out io.Writer) error {
	codec, err := aesgcm.New(cfg.SecretKey)
	if err != nil {
		return err
	}

	users := sqliteadapter.NewUserRepo(db)
	ecosystems := sqliteadapter.NewEcosystemRepo(db)
	assignments := sqliteadapter.NewAssignmentRepo(db)
	platforms := sqliteadapter.NewPlatformRepo(db)

	credentials := application.NewCredentialService(platforms, sqliteadapter.NewHistoryRepo(db), codec, totp.NewVerifier(nil), nil, logger)
	imports := application.NewImportService(users, ecosystems, assignments, platforms, credentials, nil, logger)

	kind := model.ImportKind(opts.kind)
	actor, err := resolveActor(ctx, users, opts.actor, kind)
	if err != nil {
		return err
	}

	table, err := readTable(opts.file)
	if err != nil {
		return err
	}

	result, err := imports.ImportBatch(ctx, kind, table, actor)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "batch %s (%s): %d imported, %d failed\n", result.BatchID, result.Kind, result.Imported, len(result.Errors))
	msgs, more := result.Display(cfg.ImportErrorLimit)
	for _, msg := range msgs {
		fmt.Fprintf(out, "  %s\n", msg)
	}
	if more > 0 {
		fmt.Fprintf(out, "  ... and %d more errors\n", more)
	}
	return nil
}

// resolveActor looks up the acting admin by email. An empty database accepts
// a users import without an actor so the first admin can be created.
func resolveActor(ctx context.Context, users *sqliteadapter.UserRepo, email string, kind model.ImportKind) (model.Actor, error) {
	if email == "" {
		existing, err := users.ListAll(ctx)
		if err != nil {
			return model.Actor{}, err
		}
		if kind == model.ImportUsers && len(existing) == 0 {
			return model.Actor{Role: model.RoleAdmin}, nil
		}
		return model.Actor{}, errors.New("--actor is required")
	}

	user, err := users.GetByEmail(ctx, email)
	if err != nil {
		return model.Actor{}, err
	}
	if user == nil {
		return model.Actor{}, fmt.Errorf("no user with email %q", email)
	}
	return model.Actor{UserID: user.ID, Role: user.Role}, nil
}

func readTable(path string) (*application.Table, error) {
	if path == "-" {
		return application.ParseCSV(os.Stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	return application.ParseCSV(f)
}

func runSync(ctx context.Context, cfg *config.Config, db *sqliteadapter.DB, logger *slog.Logger, out io.Writer) error {
	if !cfg.HasProfileSource() {
		return errors.New("ECOVAULT_GETLATE_API_KEY is not set")
	}

	client := getlate.NewClient(cfg.GetlateAPIKey, cfg.GetlateAPIURL, getlate.WithLogger(logger))
	report, err := application.NewSyncService(sqliteadapter.NewEcosystemRepo(db), client, logger).Sync(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "matched %d, unmatched local %d, unmatched external %d\n",
		report.Summary.Matched, report.Summary.UnmatchedLocal, report.Summary.UnmatchedExternal)
	for _, m := range report.Outcome.Matched {
		fmt.Fprintf(out, "  = %s -> %s (%s)\n", m.EcosystemName, m.ProfileName, m.ProfileID)
	}
	for _, e := range report.Outcome.UnmatchedLocal {
		fmt.Fprintf(out, "  - %s (no profile)\n", e.Name)
	}
	for _, p := range report.Outcome.UnmatchedExternal {
		fmt.Fprintf(out, "  + %s (%s, no ecosystem)\n", p.Name, p.ID)
	}
	return nil
}
