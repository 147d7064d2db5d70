// Package cli provides the administrative command surface. The db command
// group forwards to the schema operations of the database adapter.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/gormscope/gormscope/internal/database"
	"github.com/gormscope/gormscope/internal/migrate"
)

// Admin is the part of the database adapter the db commands drive
type Admin interface {
	InitDB(ctx context.Context) (*migrate.Result, error)
	CreateAll(ctx context.Context) error
	InitMigrations(ctx context.Context, opts database.InitMigrationsOptions) (header string, version int, name string, err error)
	Migrate(ctx context.Context, opts database.MigrateOptions) (*migrate.Result, error)
	NewMigration(name string, version *int) (migrate.Migration, error)
	MigrationsPath() string
	Close() error
}

// Factory opens the adapter a command runs against. It is called once per
// command invocation and the adapter is closed when the command returns.
type Factory func() (Admin, error)

// ConfirmFunc asks the user a yes/no question
type ConfirmFunc func(title string) (bool, error)

// Options customise the db command group
type Options struct {
	// Confirm replaces the interactive prompt
	Confirm ConfirmFunc
	// Interactive reports whether prompts can be shown. nil checks stdin.
	Interactive func() bool
}

// NewDBCommand creates the db command group
func NewDBCommand(factory Factory, opts Options) *cobra.Command {
	if opts.Confirm == nil {
		opts.Confirm = confirmPrompt
	}
	if opts.Interactive == nil {
		opts.Interactive = stdinIsTerminal
	}

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the database schema",
		Long: `Initialize the database schema, scaffold and run migrations.

Migration scripts live in the migrations folder (database.migrations_folder,
resolved against database.root_path) and are named <version>_<name>.sql.`,
	}

	cmd.AddCommand(
		newInitCommand(factory),
		newInitMigrationsCommand(factory),
		newCreateAllCommand(factory),
		newMigrateCommand(factory, opts),
		newNewMigrationCommand(factory),
	)
	return cmd
}

// withAdmin opens the adapter, runs fn and closes the adapter
func withAdmin(factory Factory, fn func(Admin) error) error {
	admin, err := factory()
	if err != nil {
		return err
	}
	defer admin.Close()
	return fn(admin)
}

func newInitCommand(factory Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create tables or run pending migrations",
		Long: `Initialize the schema: tables are created directly when the migrations
folder holds no scripts, otherwise the pending migrations are applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(factory, func(admin Admin) error {
				res, err := admin.InitDB(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(res.Applied) == 0 {
					color.New(color.FgGreen).Fprintln(out, "✓ Database initialized")
					return nil
				}
				printApplied(out, res)
				return nil
			})
		},
	}
}

func newInitMigrationsCommand(factory Factory) *cobra.Command {
	var (
		version    int
		setVersion bool
	)
	cmd := &cobra.Command{
		Use:   "init-migrations [MODELS...]",
		Short: "Scaffold the initial migration from the model registry",
		Long: `Generate a migration script creating the tables of the registered models.
Pass model names to restrict the script to those models.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(factory, func(admin Admin) error {
				opts := database.InitMigrationsOptions{
					Models:     args,
					SetVersion: setVersion,
				}
				if cmd.Flags().Changed("version") {
					opts.Version = &version
				}
				header, v, name, err := admin.InitMigrations(cmd.Context(), opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created migration: %s (%s)\n", migrate.FormatFilename(v, name), header)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&version, "version", 0, "version of the generated script (default: next free version)")
	cmd.Flags().BoolVar(&setVersion, "set-version", false, "record the generated version as the current schema version")
	return cmd
}

func newCreateAllCommand(factory Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "create-all",
		Short: "Create tables for every registered model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(factory, func(admin Admin) error {
				if err := admin.CreateAll(cmd.Context()); err != nil {
					return err
				}
				color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "✓ Tables created")
				return nil
			})
		},
	}
}

func newMigrateCommand(factory Factory, opts Options) *cobra.Command {
	var (
		from, to            int
		dryRun              bool
		ignoreSchemaVersion bool
		yes                 bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run migration scripts",
		Long: `Apply the migration scripts whose version lies between --from and --to.
Without --from, scripts after the recorded schema version are applied.

--ignore-schema-version applies scripts regardless of the recorded version
and can leave the recorded version out of step with the actual schema.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mopts := database.MigrateOptions{
				DryRun:           dryRun,
				UseSchemaVersion: !ignoreSchemaVersion,
			}
			if cmd.Flags().Changed("from") {
				mopts.From = &from
			}
			if cmd.Flags().Changed("to") {
				mopts.To = &to
			}

			if ignoreSchemaVersion && !dryRun && !yes && opts.Interactive() {
				ok, err := opts.Confirm("Ignore the recorded schema version and apply migrations anyway?")
				if err != nil {
					return err
				}
				if !ok {
					color.New(color.FgYellow).Fprintln(cmd.OutOrStdout(), "Migration cancelled")
					return nil
				}
			}

			return withAdmin(factory, func(admin Admin) error {
				res, err := admin.Migrate(cmd.Context(), mopts)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if res.DryRun {
					printPlan(out, res)
				} else {
					printApplied(out, res)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&from, "from", 0, "lowest version to apply")
	cmd.Flags().IntVar(&to, "to", 0, "highest version to apply")
	cmd.Flags().BoolVar(&dryRun, "dryrun", false, "show the scripts that would run without applying them")
	cmd.Flags().BoolVar(&ignoreSchemaVersion, "ignore-schema-version", false, "do not read or record the schema version")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newNewMigrationCommand(factory Factory) *cobra.Command {
	var version int
	cmd := &cobra.Command{
		Use:   "new-migration NAME",
		Short: "Create an empty migration script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(factory, func(admin Admin) error {
				var requested *int
				if cmd.Flags().Changed("version") {
					requested = &version
				}
				m, err := admin.NewMigration(args[0], requested)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created migration: %s\n", m.Filename())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&version, "version", 0, "version of the script (default: next free version)")
	return cmd
}

// printPlan prints the scripts a dry run would apply
func printPlan(w io.Writer, res *migrate.Result) {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12"))
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Migration plan (%s)", boundsLabel(res))))

	if len(res.Planned) == 0 {
		color.New(color.FgGreen).Fprintln(w, "  Nothing to apply")
		return
	}
	yellow := color.New(color.FgYellow)
	for _, m := range res.Planned {
		yellow.Fprintf(w, "  would apply %s\n", m.Filename())
	}
}

// printApplied prints the scripts a run applied
func printApplied(w io.Writer, res *migrate.Result) {
	if len(res.Applied) == 0 {
		color.New(color.FgGreen).Fprintln(w, "✓ Schema is up to date")
		return
	}
	green := color.New(color.FgGreen)
	for _, m := range res.Applied {
		green.Fprintf(w, "  ✓ applied %s\n", m.Filename())
	}
	fmt.Fprintf(w, "%d migration(s) applied\n", len(res.Applied))
}

func boundsLabel(res *migrate.Result) string {
	if res.To < 0 {
		return fmt.Sprintf("from %d", res.From)
	}
	return fmt.Sprintf("from %d to %d", res.From, res.To)
}

// confirmPrompt asks for confirmation with a huh form
func confirmPrompt(title string) (bool, error) {
	var confirm bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&confirm).
		Run()
	if err != nil {
		return false, err
	}
	return confirm, nil
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
