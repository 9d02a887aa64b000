// Package cli wires up qsbot's four subcommands: bot (run the scheduler),
// parse (compile QuickStatements lines to JSON), validate (parse plus a
// diff against a reference parser), and run (execute lines directly
// against one wiki).
package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wmde/qsbot/auth"
	"github.com/wmde/qsbot/common"
	"github.com/wmde/qsbot/config"
	"github.com/wmde/qsbot/db"
	"github.com/wmde/qsbot/executor"
	"github.com/wmde/qsbot/qscompress"
	"github.com/wmde/qsbot/qsparse"
	"github.com/wmde/qsbot/queue"
	"github.com/wmde/qsbot/scheduler"
	"github.com/wmde/qsbot/version"
	"github.com/wmde/qsbot/wikiapi"
)

var (
	verbose    bool
	configFile string
	site       string
)

// RootCmd is the qsbot CLI entry point.
var RootCmd = &cobra.Command{
	Use:   "qsbot",
	Short: "QuickStatements batch processing bot",
}

func init() {
	RootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	RootCmd.PersistentFlags().StringVar(&configFile, "config-file", "config_rs.json", "path to config_rs.json")
	RootCmd.PersistentFlags().StringVar(&site, "site", "wikidata", "default wiki site key")

	RootCmd.AddCommand(botCmd, parseCmd, validateCmd, runCmd)
}

// loadConfig reads config_rs.json and builds the service logger, honoring
// --verbose the same way common.ServiceLogger's callers always have.
func loadConfig() (config.Config, *common.ContextLogger) {
	cfg, err := config.Load(configFile)
	cobra.CheckErr(err)

	if verbose {
		common.Logger.SetLevel(logrus.DebugLevel)
	}
	return cfg, common.ServiceLogger("qsbot", version.GetModuleVersion())
}

// buildWikiClient opens a wikiapi.Client for siteKey using cfg's endpoint
// table and editing etiquette.
func buildWikiClient(cfg config.Config, siteKey string) (*wikiapi.Client, error) {
	apiURL, err := cfg.SiteAPI(siteKey)
	if err != nil {
		return nil, err
	}
	return wikiapi.New(wikiapi.Config{
		Site:      siteKey,
		APIURL:    apiURL,
		MaxLag:    int(cfg.SetMaxlag),
		EditDelay: cfg.EditDelay(),
	}), nil
}

// botCmd runs the scheduler until it self-terminates or is interrupted.
var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "run the batch scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadConfig()

		gdb, err := db.Open(cfg.MySQL.DSN())
		if err != nil {
			return err
		}
		gateway := queue.NewGateway(gdb)
		if err := gateway.Migrate(); err != nil {
			return err
		}

		authDB, err := db.Open(cfg.MySQL.DSN())
		if err != nil {
			return err
		}
		store := auth.NewStore(authDB.DB, auth.INIConfig{Path: cfg.Bot.BotConfigFile})
		if err := store.Migrate(); err != nil {
			return err
		}
		cache, err := auth.NewCache("qsbot_credentials.bolt", 24*time.Hour)
		if err != nil {
			return err
		}
		defer cache.Close()
		resolver := auth.NewCachingResolver(store, cache)

		ledger, err := scheduler.NewLedger(cmd.Context(), scheduler.LedgerConfig{
			RedisURL: "redis://localhost:6379/0",
		})
		if err != nil {
			return err
		}
		defer ledger.Close()

		clients := map[string]scheduler.WikiClient{}
		clientFactory := func(siteKey string) (scheduler.WikiClient, error) {
			if c, ok := clients[siteKey]; ok {
				return c, nil
			}
			c, err := buildWikiClient(cfg, siteKey)
			if err != nil {
				return nil, err
			}
			clients[siteKey] = c
			return c, nil
		}

		status := scheduler.NewStatusServer(gateway)

		host, _ := os.Hostname()
		sched := scheduler.New(scheduler.Config{Host: host}, gateway, ledger, clientFactory, resolver, status, logger)

		e := echo.New()
		e.Use(middleware.Recover())
		status.RegisterRoutes(e.Group(""))

		go func() {
			if err := e.Start(":8099"); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("status server stopped")
			}
		}()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		err = sched.Run(ctx)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = e.Shutdown(shutdownCtx)

		if err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

// parseOutput is the wire shape described in the specification's CLI
// section: {"data":{"commands":[...]},"status":"OK"}.
type parseOutput struct {
	Data struct {
		Commands []qsparse.ParsedCommand `json:"commands"`
	} `json:"data"`
	Status string `json:"status"`
}

func parseStdin(resolve qsparse.Resolver) ([]qsparse.ParsedCommand, error) {
	scanner := bufio.NewScanner(os.Stdin)
	var parsed []qsparse.ParsedCommand
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		pc, err := qsparse.ParseLine(line, resolve)
		if err != nil {
			return nil, fmt.Errorf("cli: parse line %q: %w", line, err)
		}
		parsed = append(parsed, pc)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return parsed, nil
}

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "parse QuickStatements lines from stdin into compressed JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _ := loadConfig()
		client, err := buildWikiClient(cfg, site)
		if err != nil {
			return err
		}
		parsed, err := parseStdin(client)
		if err != nil {
			return err
		}
		folded := qscompress.Fold(parsed)

		out := parseOutput{Status: "OK"}
		out.Data.Commands = folded
		return json.NewEncoder(os.Stdout).Encode(out)
	},
}

var validateURL string

func init() {
	validateCmd.Flags().StringVar(&validateURL, "reference-url", "", "reference parser endpoint to diff against (optional)")
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "parse QuickStatements lines and diff against a reference parser",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadConfig()
		client, err := buildWikiClient(cfg, site)
		if err != nil {
			return err
		}
		parsed, err := parseStdin(client)
		if err != nil {
			return err
		}
		folded := qscompress.Fold(parsed)
		ours, err := json.Marshal(folded)
		if err != nil {
			return err
		}

		out := parseOutput{Status: "OK"}
		out.Data.Commands = folded

		if validateURL == "" {
			logger.Warn("no --reference-url given; skipping remote diff")
			return json.NewEncoder(os.Stdout).Encode(out)
		}

		resp, err := http.Post(validateURL, "application/json", httpReader(ours))
		if err != nil {
			return fmt.Errorf("cli: fetch reference parse: %w", err)
		}
		defer resp.Body.Close()
		var reference json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&reference); err != nil {
			return fmt.Errorf("cli: decode reference response: %w", err)
		}

		if string(reference) != string(ours) {
			fmt.Fprintln(os.Stderr, "parse mismatch against reference implementation")
			fmt.Fprintln(os.Stderr, "ours:     ", string(ours))
			fmt.Fprintln(os.Stderr, "reference:", string(reference))
		}
		return json.NewEncoder(os.Stdout).Encode(out)
	},
}

// httpReader wraps an already-marshaled JSON body for http.Post, which
// wants an io.Reader rather than a byte slice.
func httpReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

var (
	runUser    string
	runSummary string
)

func init() {
	runCmd.Flags().StringVar(&runUser, "user", "", "wiki username the batch runs as")
	runCmd.Flags().StringVar(&runSummary, "summary", "", "edit summary")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "parse and execute QuickStatements lines directly against one wiki",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadConfig()
		client, err := buildWikiClient(cfg, site)
		if err != nil {
			return err
		}

		parsed, err := parseStdin(client)
		if err != nil {
			return err
		}

		bx := executor.NewBatch(client, runUser, runSummary, "", logger)
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		exitCode := 0
		for _, pc := range parsed {
			result := bx.Execute(ctx, pc)
			if result.Err != nil {
				logger.WithError(result.Err).Error("command failed")
				exitCode = 1
				continue
			}
		}
		if exitCode != 0 {
			os.Exit(exitCode)
		}
		return nil
	},
}
