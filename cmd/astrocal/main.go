package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/beekhof/astrocal/internal/app"
	"github.com/beekhof/astrocal/internal/astronomy"
	"github.com/beekhof/astrocal/internal/auth"
	"github.com/beekhof/astrocal/internal/calendar"
	"github.com/beekhof/astrocal/internal/config"
	"github.com/beekhof/astrocal/internal/events"
	"github.com/beekhof/astrocal/internal/googlecal"
	"github.com/beekhof/astrocal/internal/server"
	"github.com/beekhof/astrocal/internal/tui"
)

func printHelp() {
	fmt.Fprintf(os.Stderr, `Astronomy Calendar

A month-view calendar annotated with astronomical events (eclipses, equinoxes,
meteor showers, ...) fetched from the Astronomy API, optionally merged with a
public Google Calendar.

USAGE:
    %s [OPTIONS] [COMMAND]

COMMANDS:
    tui                           Interactive terminal calendar (default on a terminal)
    print                         Print the month once and exit (default otherwise)
    serve                         Serve the calendar over HTTP
    hash-password [USER]          Write a "user:hash" line for --auth-file (default user: admin)

OPTIONS:
    -h, --help                    Show this help message and exit
    -v, --verbose                 Enable verbose output (show DEBUG logs)
    --config FILE                 Path to JSON or YAML config file (optional)
    --month YYYY-MM               Month to show first (default: current month)
    --api-base-url URL            Astronomy API base URL
                                  (overrides config file and ASTRO_API_BASE_URL env var)
    --auth-mode MODE              none, apikey or token (default: inferred from credentials)
    --api-key KEY                 API key sent as the apiKey query parameter
    --app-id ID                   Application id exchanged for a bearer token
    --app-secret SECRET           Application secret exchanged for a bearer token
    --token-cache FILE            Keep the bearer token in FILE between runs
    --listen ADDR                 Listen address for serve (default: %s)
    --auth-file FILE              Basic auth file guarding navigation in serve
    --google-calendar-id ID       Public Google Calendar to merge in
    --google-api-key KEY          API key for the Google Calendar API

CONFIGURATION PRECEDENCE (highest to lowest):
    1. Command-line flags
    2. Environment variables
    3. Config file (--config)
    4. Defaults

CONFIG FILE:
    JSON, or YAML when the file ends in .yaml or .yml. Example:
    {
      "api_base_url": "https://api.astronomyapi.com",
      "app_id": "your-app-id",
      "app_secret": "your-app-secret",
      "token_ttl": "1h",
      "token_cache": "/var/cache/astrocal/token.json",
      "request_timeout": "30s",
      "listen": "127.0.0.1:8080",
      "auth_file": "/etc/astrocal/auth"
    }

ENVIRONMENT VARIABLES:
        ASTRO_API_BASE_URL        Astronomy API base URL
        ASTRO_AUTH_MODE           none, apikey or token
        ASTRO_API_KEY             API key
        ASTRO_APP_ID              Application id
        ASTRO_APP_SECRET          Application secret
        ASTRO_TOKEN_CACHE         File keeping the bearer token between runs
        ASTRO_TOKEN_TTL           Bearer token lifetime when the API does not say (default: 1h)
        ASTRO_REQUEST_TIMEOUT     Per-request timeout (default: 30s)
        ASTRO_LISTEN              Listen address for serve
        ASTRO_AUTH_FILE           Basic auth file for serve
        GOOGLE_CALENDAR_ID        Public Google Calendar to merge in
        GOOGLE_API_KEY            API key for the Google Calendar API

DESCRIPTION:
    The calendar shows one month at a time. Each day with an event shows its
    description; today is highlighted. Moving to another month fetches that
    month's events and replaces the previous ones. When a fetch fails the month
    is still shown, without events, and the failure is reported.

    The current date is checked every minute, so the today marker moves at
    midnight without a restart.

EXAMPLES:
    # Browse months in the terminal using an API key
    ASTRO_API_KEY=secret %s

    # Print March 2024 using token authentication
    %s --app-id ID --app-secret SECRET --month 2024-03 print

    # Serve the calendar, requiring a password to navigate
    %s --config /etc/astrocal/config.yaml hash-password admin
    %s --config /etc/astrocal/config.yaml serve

`, os.Args[0], config.DefaultListen, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	// Parse command-line flags
	helpFlag := flag.Bool("help", false, "Show help message")
	helpFlagShort := flag.Bool("h", false, "Show help message (shorthand)")
	verboseFlag := flag.Bool("verbose", false, "Enable verbose output (show DEBUG logs)")
	verboseFlagShort := flag.Bool("v", false, "Enable verbose output (shorthand)")
	configFile := flag.String("config", "", "Path to JSON or YAML config file")
	monthFlag := flag.String("month", "", "Month to show first, as YYYY-MM")
	var overrides config.Overrides
	flag.StringVar(&overrides.APIBaseURL, "api-base-url", "", "Astronomy API base URL (overrides config file and ASTRO_API_BASE_URL env var)")
	flag.StringVar(&overrides.AuthMode, "auth-mode", "", "none, apikey or token (overrides config file and ASTRO_AUTH_MODE env var)")
	flag.StringVar(&overrides.APIKey, "api-key", "", "API key (overrides config file and ASTRO_API_KEY env var)")
	flag.StringVar(&overrides.AppID, "app-id", "", "Application id (overrides config file and ASTRO_APP_ID env var)")
	flag.StringVar(&overrides.AppSecret, "app-secret", "", "Application secret (overrides config file and ASTRO_APP_SECRET env var)")
	flag.StringVar(&overrides.TokenCache, "token-cache", "", "File keeping the bearer token between runs (overrides config file and ASTRO_TOKEN_CACHE env var)")
	flag.StringVar(&overrides.Listen, "listen", "", "Listen address for serve (overrides config file and ASTRO_LISTEN env var)")
	flag.StringVar(&overrides.AuthFile, "auth-file", "", "Basic auth file for serve (overrides config file and ASTRO_AUTH_FILE env var)")
	flag.StringVar(&overrides.GoogleCalendarID, "google-calendar-id", "", "Public Google Calendar id (overrides config file and GOOGLE_CALENDAR_ID env var)")
	flag.StringVar(&overrides.GoogleAPIKey, "google-api-key", "", "Google API key (overrides config file and GOOGLE_API_KEY env var)")
	flag.Parse()

	verbose := *verboseFlag || *verboseFlagShort

	// Show help if requested
	if *helpFlag || *helpFlagShort {
		printHelp()
		os.Exit(0)
	}

	// Set up logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	command, err := chooseCommand(flag.Args(), term.IsTerminal(int(os.Stdout.Fd())))
	if err != nil {
		log.Fatalf("%v. Use --help for more information.", err)
	}

	os.Exit(run(command, flag.Args(), *configFile, *monthFlag, overrides, verbose))
}

// run executes command and returns the process exit status. Deferred
// cleanup runs before main exits.
func run(command string, args []string, configFile, month string, overrides config.Overrides, verbose bool) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration (precedence: flags > env vars > config file > defaults)
	cfg, err := config.LoadConfig(configFile, overrides)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}

	if command == "hash-password" {
		user := "admin"
		if len(args) > 1 {
			user = args[1]
		}
		if err := hashPassword(user, cfg.AuthFile); err != nil {
			log.Printf("Failed to create auth line: %v", err)
			return 1
		}
		return 0
	}

	// The TUI owns the screen, so logs go to a file or nowhere.
	if command == "tui" {
		if verbose {
			f, err := tea.LogToFile("astrocal-debug.log", "")
			if err != nil {
				log.Printf("Failed to open debug log: %v", err)
				return 1
			}
			defer f.Close()
		} else {
			log.SetOutput(io.Discard)
		}
	}

	opts := []app.Option{
		app.WithVerbose(verbose),
		app.WithFetchTimeout(time.Duration(cfg.RequestTimeout)),
	}
	if month != "" {
		period, err := calendar.ParsePeriod(month)
		if err != nil {
			log.Printf("Invalid --month: %v", err)
			return 1
		}
		opts = append(opts, app.WithPeriod(period))
	}

	source, err := buildSource(ctx, cfg, verbose)
	if err != nil {
		log.Printf("Failed to create event source: %v", err)
		return 1
	}
	ctrl := app.NewController(source, opts...)

	switch command {
	case "print":
		out := ctrl.Refresh(ctx)
		fmt.Print(tui.RenderMonth(out.Month, tui.DefaultStyles()))
		if out.Degraded() {
			log.Printf("Events unavailable: %v", out.Err)
			return 1
		}
	case "tui":
		if err := tui.Run(ctx, ctrl); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Terminal UI failed: %v", err)
			return 1
		}
	case "serve":
		var basicAuth *auth.BasicAuth
		if cfg.AuthFile != "" {
			basicAuth, err = auth.LoadBasicAuth(cfg.AuthFile)
			if err != nil {
				log.Printf("Failed to load auth file: %v", err)
				return 1
			}
			log.Printf("Navigation requires basic auth (user: %s)", basicAuth.User)
		} else {
			log.Printf("Warning: no auth file configured, navigation is open to anyone who can reach %s", cfg.Listen)
		}

		if out := ctrl.Refresh(ctx); out.Degraded() {
			log.Printf("Warning: initial fetch failed, serving %s without events", out.Month.Label)
		}
		go func() {
			if err := app.NewClock(ctrl).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Clock stopped: %v", err)
			}
		}()

		if err := server.New(ctrl, basicAuth, cfg.Listen, log.Default()).Start(ctx); err != nil {
			log.Printf("Server failed: %v", err)
			return 1
		}
	}
	return 0
}

// chooseCommand picks the command from the positional arguments, falling
// back to the TUI on a terminal and to print otherwise.
func chooseCommand(args []string, interactive bool) (string, error) {
	if len(args) == 0 {
		if interactive {
			return "tui", nil
		}
		return "print", nil
	}
	switch args[0] {
	case "tui", "print", "serve", "hash-password":
		return args[0], nil
	default:
		return "", fmt.Errorf("unknown command %q", args[0])
	}
}

// buildSource creates the astronomy client and, when configured, merges
// in the Google Calendar source.
func buildSource(ctx context.Context, cfg *config.Config, verbose bool) (events.Source, error) {
	astro, err := astronomy.NewClient(ctx, astronomy.Config{
		BaseURL:    cfg.APIBaseURL,
		Mode:       astronomy.AuthMode(cfg.AuthMode),
		APIKey:     cfg.APIKey,
		AppID:      cfg.AppID,
		AppSecret:  cfg.AppSecret,
		TokenTTL:   time.Duration(cfg.TokenTTL),
		Timeout:    time.Duration(cfg.RequestTimeout),
		TokenCache: cfg.TokenCache,
		Verbose:    verbose,
	})
	if err != nil {
		return nil, err
	}
	if verbose {
		log.Printf("DEBUG: astronomy API %s (auth mode: %s)", cfg.APIBaseURL, astro.Mode())
	}
	if !cfg.GoogleEnabled() {
		return astro, nil
	}

	gsrc, err := googlecal.New(ctx, googlecal.Config{
		CalendarID: cfg.GoogleCalendarID,
		APIKey:     cfg.GoogleAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Calendar source: %w", err)
	}
	multi := events.Multi{
		{Name: "astronomy", Source: astro},
		{Name: "google", Source: gsrc},
	}
	log.Printf("Merging events from: %s", multi.Names())
	return multi, nil
}

// hashPassword prompts for a password and writes the auth line to path,
// or to stdout when path is empty.
func hashPassword(user, path string) error {
	password, err := readPassword(os.Stdin, os.Stderr)
	if err != nil {
		return err
	}

	line, err := auth.FormatAuthLine(user, password)
	if err != nil {
		return err
	}
	return writeAuthLine(path, line, os.Stdout)
}

func readPassword(in *os.File, prompt io.Writer) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		// Piped input: take the first line.
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return "", fmt.Errorf("empty password")
		}
		return password, nil
	}

	fmt.Fprint(prompt, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprint(prompt, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	if len(first) == 0 {
		return "", fmt.Errorf("empty password")
	}
	return string(first), nil
}

func writeAuthLine(path, line string, stdout io.Writer) error {
	if path == "" {
		_, err := io.WriteString(stdout, line)
		return err
	}
	if err := os.WriteFile(path, []byte(line), 0600); err != nil {
		return fmt.Errorf("failed to write auth file: %w", err)
	}
	log.Printf("Wrote credentials to %s", path)
	return nil
}
