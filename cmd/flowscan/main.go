package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"flowscan/internal/app"
	"flowscan/internal/config"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

// exitError carries a non-zero exit code out of a command.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// loadConfig reads the config file and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	prompt, _ := cmd.Flags().GetBool("password-prompt")
	if prompt && cfg.Database.Type == config.DatabaseSQL {
		password, err := readPassword(fmt.Sprintf("Password for %s@%s: ", cfg.Database.User, cfg.Database.Host))
		if err != nil {
			return nil, err
		}
		cfg.Database.Password = password
	}
	return cfg, nil
}

// readPassword prompts on stderr and reads without echo.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--password-prompt needs an interactive terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "serve", "import").
func newApp(cmd *cobra.Command, operation string) (*app.App, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, cfg, nil
}

var rootCmd = &cobra.Command{
	Use:          "flowscan",
	Short:        "Scan flow libraries and store the results",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the telemetry server and accept scan commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cfg, err := newApp(cmd, "serve")
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Server.Addr
		}
		if addr == "" {
			addr = config.DefaultAddr
		}

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", addr, err)
		}
		fmt.Printf("Listening on http://%s (websocket at /ws)\n", ln.Addr())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Serve(ctx, ln)
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		fmt.Println("Set [scanner] command before running a scan.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Settings:  %s\n", cfg.SettingsPath)
		fmt.Printf("Listen:    %s\n", cfg.Server.Addr)
		fmt.Printf("Scanner:   %s\n", cfg.Scanner.Command)
		fmt.Printf("Results:   %s\n", cfg.Scanner.ResultsPath)
		switch cfg.Database.Type {
		case config.DatabaseSQL:
			driver := cfg.Database.Driver
			if driver == "" {
				driver = "mysql"
			}
			fmt.Printf("Database:  sql (%s) %s/%s\n", driver, cfg.Database.Host, cfg.Database.DatabaseName)
		case config.DatabaseMongo:
			fmt.Printf("Database:  mongo %s\n", cfg.Database.DatabaseName)
		default:
			fmt.Printf("Database:  %q (unknown type)\n", cfg.Database.Type)
		}
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the result store",
}

var dbSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Provision the result store (discards relational data)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp(cmd, "setup")
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		if err := a.SetupDatabase(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Result store ready")
		return nil
	},
}

var dbImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Persist the flows in a results file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp(cmd, "import")
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		setup, _ := cmd.Flags().GetBool("setup")
		code, err := a.Import(cmd.Context(), args[0], setup, os.Stdout)
		if err != nil {
			return err
		}
		if code != 0 {
			return &exitError{code: code}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("password-prompt", false, "Prompt for the SQL database password")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// db subcommands
	dbCmd.AddCommand(dbSetupCmd)
	dbCmd.AddCommand(dbImportCmd)
	dbImportCmd.Flags().Bool("setup", false, "Provision the store before importing")

	// root commands
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
