package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"seren/internal/app"
	"seren/internal/capture"
	"seren/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// api errors carry an operator-facing message; print it as-is
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the config file from the default location.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a SerenApp. The caller must defer app.Close().
// op identifies the CLI command being run.
func newApp(cmd *cobra.Command, op *app.Operation) (*app.SerenApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewSerenApp(cmd.Context(), cfg, op, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// stdin is shared so consecutive piped reads see consecutive lines.
var stdin = bufio.NewReader(os.Stdin)

// readPassphrase reads a passphrase without echo when stdin is a terminal.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := stdin.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func printJSON(raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("formatting response: %w", err)
	}
	fmt.Println(buf.String())
	return nil
}

// statusPrinter reports upload progress on stdout.
type statusPrinter struct{}

func (statusPrinter) Uploading(t capture.CaptureType) { fmt.Println(capture.UploadStatus(t)) }
func (statusPrinter) Completing()                     { fmt.Println(capture.CompletingStatus) }

var rootCmd = &cobra.Command{
	Use:           "seren",
	Short:         "Visitor capture terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
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

		terminalID, _ := cmd.Flags().GetString("terminal-id")
		if terminalID == "" {
			terminalID = uuid.New().String()
		}
		cfg := config.NewConfig(terminalID, defaults["base_dir"])
		if baseURL, _ := cmd.Flags().GetString("api-url"); baseURL != "" {
			cfg.API.BaseURL = baseURL
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Terminal ID: %s\n", terminalID)
		fmt.Printf("Base Dir:    %s\n", defaults["base_dir"])
		fmt.Printf("API URL:     %s\n", cfg.API.BaseURL)
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
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		archiveType := cfg.Archive.Type
		if archiveType == "" {
			archiveType = "none"
		}
		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Terminal ID: %s\n", cfg.TerminalID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("API URL:     %s\n", cfg.API.BaseURL)
		fmt.Printf("Staging:     %s\n", cfg.Staging.Type)
		fmt.Printf("Journal:     %s\n", cfg.Database.Type)
		fmt.Printf("Archive:     %s (encrypt=%v)\n", archiveType, cfg.Archive.Encrypt)
		if cfg.Camera.Command != "" {
			fmt.Printf("Camera:      %s\n", cfg.Camera.Command)
		}
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage receipt encryption keys",
}

var configKeysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the receipt encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		pub, err := app.InitKeys(cfg.Encryption, pass)
		if err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		if pub != "" {
			fmt.Printf("Recipient:   %s\n", pub)
		}
		return nil
	},
}

var configArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage the receipt archive",
}

var configArchiveCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the receipt archive is reachable and writable",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, app.NewOperation("config archive check"))
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.CheckArchive(cmd.Context()); err != nil {
			return fmt.Errorf("archive check failed: %w", err)
		}
		fmt.Printf("Archive %s is ready\n", a.Config().Archive.Type)
		return nil
	},
}

// health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the Remote Access Service",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, app.NewOperation("health"))
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("URL: %s\n", a.Config().API.BaseURL)
		info, err := a.Health(cmd.Context())
		app.WriteHealth(os.Stdout, info, err)
		return nil
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve visitors interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, app.NewOperation("run"))
		if err != nil {
			return err
		}
		defer a.Close()

		return a.RunWizard(cmd.Context(), os.Stdin, os.Stdout)
	},
}

// capture command
var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture and upload one visitor non-interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		otp, _ := cmd.Flags().GetString("otp")
		modeFlag, _ := cmd.Flags().GetString("mode")
		person, _ := cmd.Flags().GetString("person")
		vehicle, _ := cmd.Flags().GetString("vehicle")

		mode, err := capture.ParseMode(modeFlag)
		if err != nil {
			return err
		}
		images := make(map[capture.CaptureType]string)
		if person != "" {
			images[capture.CapturePerson] = person
		}
		if vehicle != "" {
			images[capture.CaptureVehicle] = vehicle
		}

		a, err := newApp(cmd, app.NewOperation("capture", "mode="+string(mode)))
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Capture(cmd.Context(), app.CaptureRequest{OTP: otp, Mode: mode, Images: images}, statusPrinter{})
		if err != nil {
			return err
		}
		capture.WriteSummary(os.Stdout, res.Completed.Summary)
		app.WriteReceiptStatus(os.Stdout, res)
		return nil
	},
}

// session command
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect sessions on the Remote Access Service",
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status SESSION_ID",
	Short: "Show the service's status for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, app.NewOperation("session status"))
		if err != nil {
			return err
		}
		defer a.Close()

		raw, err := a.SessionStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(raw)
	},
}

// storage command
var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Inspect service storage",
}

var storageStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the service's storage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, app.NewOperation("storage stats"))
		if err != nil {
			return err
		}
		defer a.Close()

		raw, err := a.StorageStats(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(raw)
	},
}

// receipts command
var receiptsCmd = &cobra.Command{
	Use:   "receipts",
	Short: "Manage completion receipts",
}

var receiptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent receipts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, app.NewOperation("receipts list"))
		if err != nil {
			return err
		}
		defer a.Close()

		receipts, err := a.ListReceipts(limit)
		if err != nil {
			return err
		}
		if len(receipts) == 0 {
			fmt.Println("No receipts recorded.")
			return nil
		}

		for _, r := range receipts {
			state := "local"
			switch {
			case r.Archived && r.Encrypted:
				state = "archived+enc"
			case r.Archived:
				state = "archived"
			}
			fmt.Printf("%s  %s  %-10s  %-5s  %-20s  %-12s  %s\n",
				r.ID,
				r.RecordedAt.Local().Format("2006-01-02 15:04:05"),
				r.Mode,
				r.UnitNumber,
				r.ResidentName,
				state,
				r.SessionID,
			)
		}
		return nil
	},
}

var receiptsShowCmd = &cobra.Command{
	Use:   "show RECEIPT_ID",
	Short: "Show a receipt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fromArchive, _ := cmd.Flags().GetBool("archived")

		a, err := newApp(cmd, app.NewOperation("receipts show"))
		if err != nil {
			return err
		}
		defer a.Close()

		if fromArchive {
			summary, err := a.FetchReceipt(cmd.Context(), args[0], func() (string, error) {
				return readPassphrase("Passphrase: ")
			})
			if err != nil {
				return err
			}
			capture.WriteSummary(os.Stdout, *summary)
			return nil
		}

		r, summary, err := a.GetReceipt(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Receipt %s recorded %s\n", r.ID, r.RecordedAt.Local().Format("2006-01-02 15:04:05"))
		capture.WriteSummary(os.Stdout, *summary)
		return nil
	},
}

var receiptsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Archive receipts that have not reached the archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, app.NewOperation("receipts sync"))
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.SyncReceipts(cmd.Context())
		if err != nil {
			return fmt.Errorf("sync failed after %d receipt(s): %w", n, err)
		}
		fmt.Printf("Archived %d receipt(s)\n", n)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operator operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, app.NewOperation("history"))
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.GetHistory(limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			fmt.Printf("#%d  %-15s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				op.Status,
				app.FormatDuration(op),
				op.Parameters,
			)
		}
		return nil
	},
}

// demo command
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Demo Remote Access Service",
}

var demoServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the demo Remote Access Service",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if addr == "" {
			addr = cfg.Demo.Addr
		}

		gin.SetMode(gin.ReleaseMode)
		fmt.Printf("Demo service on http://%s/api/capture (Ctrl-C to stop)\n", addr)
		return app.ServeDemo(cmd.Context(), cfg, addr, os.Stderr)
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("terminal-id", "", "Terminal ID (default: random UUID)")
	configInitCmd.Flags().String("api-url", "", "Remote Access Service base URL")
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysCmd)
	configKeysCmd.AddCommand(configKeysInitCmd)
	configCmd.AddCommand(configArchiveCmd)
	configArchiveCmd.AddCommand(configArchiveCheckCmd)

	// capture
	captureCmd.Flags().String("otp", "", "Visitor OTP")
	captureCmd.Flags().String("mode", "", "Capture mode: pedestrian or vehicle")
	captureCmd.Flags().String("person", "", "Person identification image (default: camera command)")
	captureCmd.Flags().String("vehicle", "", "Vehicle identification image (default: camera command)")
	captureCmd.MarkFlagRequired("otp")
	captureCmd.MarkFlagRequired("mode")

	sessionCmd.AddCommand(sessionStatusCmd)
	storageCmd.AddCommand(storageStatsCmd)

	receiptsCmd.AddCommand(receiptsListCmd)
	receiptsListCmd.Flags().IntP("limit", "n", 20, "Maximum number of receipts to show")
	receiptsCmd.AddCommand(receiptsShowCmd)
	receiptsShowCmd.Flags().Bool("archived", false, "Fetch the archived copy, decrypting it if needed")
	receiptsCmd.AddCommand(receiptsSyncCmd)

	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")

	demoCmd.AddCommand(demoServeCmd)
	demoServeCmd.Flags().String("addr", "", "Listen address (default: demo.addr from config)")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(storageCmd)
	rootCmd.AddCommand(receiptsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(demoCmd)
}
