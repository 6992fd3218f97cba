package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"chantier/internal/cli"
	"chantier/internal/core"
	"chantier/internal/log"
	"chantier/internal/services"
	"chantier/internal/storage"
)

// opener builds the service the commands run against and returns a close
// function for it.
type opener func(dbPath string) (*services.SiteService, func() error, error)

type app struct {
	dbPath   string
	filesDir string
	ownerID  string
	open     opener

	svc *services.SiteService
}

func openSQLite(dbPath, filesDir string) (*services.SiteService, func() error, error) {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		return nil, nil, err
	}
	files, err := storage.NewDiskFileStore(filesDir)
	if err != nil {
		repo.Close()
		return nil, nil, err
	}
	return services.NewSiteService(repo, nil, files, nil), repo.Close, nil
}

func newRootCmd(open opener) *cobra.Command {
	a := &app{open: open}
	var closeFn func() error

	root := &cobra.Command{
		Use:   "chantierctl",
		Short: "Inspect and record construction site hours and expenses",
		Long: `chantierctl works directly on the chantier SQLite database: list sites,
log shifts and expenses, and print the same totals and exports the API serves.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.open == nil {
				a.open = func(dbPath string) (*services.SiteService, func() error, error) {
					return openSQLite(dbPath, a.filesDir)
				}
			}
			svc, c, err := a.open(a.dbPath)
			if err != nil {
				return fmt.Errorf("open %s: %w", a.dbPath, err)
			}
			a.svc, closeFn = svc, c
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if closeFn != nil {
				return closeFn()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.dbPath, "db", envOr("SQLITE_DB_PATH", "./data/chantier.db"), "SQLite database path")
	root.PersistentFlags().StringVar(&a.filesDir, "files", envOr("FILES_DIR", "./data/files"), "Attachment directory")
	root.PersistentFlags().StringVar(&a.ownerID, "owner", os.Getenv("CHANTIER_OWNER"), "Owner id the commands act for")

	root.AddCommand(
		a.sitesCmd(),
		a.addSiteCmd(),
		a.totalsCmd(),
		a.daysCmd(),
		a.dayCmd(),
		a.exportCmd(),
		a.logTimeCmd(),
		a.addExpenseCmd(),
		a.setRateCmd(),
		a.attachCmd(),
	)
	return root
}

// Execute is the entry point called from main.
func Execute() {
	cli.LoadEnvFile()
	cli.SetupLogger(envOr("LOG_LEVEL", "warn"), log.ComponentCLI)

	if err := newRootCmd(nil).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, core.ErrNoSession) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func (a *app) session() (core.Session, error) {
	sess := core.Session{OwnerID: strings.TrimSpace(a.ownerID)}
	if err := sess.Validate(); err != nil {
		return core.Session{}, fmt.Errorf("%w: pass --owner or set CHANTIER_OWNER", err)
	}
	return sess, nil
}

func parseSiteID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid site id %q", s)
	}
	return id, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
