package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"neox-site/handler"
	siteconfig "neox-site/internal/config"
	"neox-site/internal/domain"
	"neox-site/internal/integrations/paramstore"
	"neox-site/internal/logger"
	"neox-site/internal/repository"
	"neox-site/internal/responder"
	"neox-site/internal/usecase"
)

func main() {
	tableFlag := &cli.StringFlag{
		Name:     "asset-table",
		Usage:    "DynamoDB table holding static assets",
		EnvVars:  []string{"ASSET_TABLE"},
		Required: true,
	}
	siteFlags := []cli.Flag{
		tableFlag,
		&cli.StringFlag{
			Name:    "param-prefix",
			Usage:   "SSM parameter prefix for site settings (optional)",
			EnvVars: []string{"PARAM_PREFIX"},
		},
		&cli.BoolFlag{
			Name:    "debug",
			Usage:   "Skip the 404 page fallback and report failures as 500",
			EnvVars: []string{"DEBUG"},
		},
		&cli.IntFlag{
			Name:    "max-message-length",
			Value:   siteconfig.DefaultMaxMessageLength,
			Usage:   "Maximum chat message length in characters",
			EnvVars: []string{"MAX_MESSAGE_LENGTH"},
		},
		&cli.StringFlag{
			Name:    "site-origin",
			Usage:   "Origin used for redirects when a request has no Host header",
			EnvVars: []string{"SITE_ORIGIN"},
		},
	}

	app := &cli.App{
		Name:  "neox-site",
		Usage: "NeoX marketing site edge handler",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Value:   siteconfig.DefaultLogLevel,
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			logger.Setup(logger.ParseLevel(c.String("log-level")))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "lambda",
				Usage:  "Run as an AWS Lambda function behind API Gateway",
				Flags:  siteFlags,
				Action: runLambda,
			},
			{
				Name:  "serve",
				Usage: "Serve the site over plain HTTP for local development",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Value:   siteconfig.DefaultPort,
						Usage:   "HTTP server port",
						EnvVars: []string{"PORT"},
					},
				}, siteFlags...),
				Action: runServe,
			},
			{
				Name:  "put-asset",
				Usage: "Upload a file into the asset table",
				Flags: []cli.Flag{
					tableFlag,
					&cli.StringFlag{Name: "path", Usage: "Request path the file is served at, e.g. /css/site.css", Required: true},
					&cli.StringFlag{Name: "file", Usage: "Local file to upload", Required: true},
					&cli.StringFlag{Name: "content-type", Usage: "Override the detected content type"},
				},
				Action: runPutAsset,
			},
			{
				Name:      "ask",
				Usage:     "Print the chat widget reply for a message",
				ArgsUsage: "<message>",
				Action:    runAsk,
			},
		},
	}

	// Flags read their EnvVars during parsing, so .env must be loaded first.
	if err := loadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	// Lambda invokes the binary without arguments.
	args := os.Args
	if len(args) == 1 {
		args = append(args, "lambda")
	}
	if err := app.Run(args); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

// loadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func runLambda(c *cli.Context) error {
	h, err := buildHandler(c)
	if err != nil {
		return err
	}
	lambda.StartWithOptions(h.Handle, lambda.WithContext(c.Context))
	return nil
}

func runServe(c *cli.Context) error {
	h, err := buildHandler(c)
	if err != nil {
		return err
	}

	port := c.String("port")
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "server_addr", "http://localhost:"+port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-done:
		slog.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

func runPutAsset(c *cli.Context) error {
	ctx := c.Context
	assetPath := c.String("path")
	if !strings.HasPrefix(assetPath, "/") {
		assetPath = "/" + assetPath
	}

	body, err := os.ReadFile(c.String("file"))
	if err != nil {
		return fmt.Errorf("failed to read asset file: %w", err)
	}
	contentType := c.String("content-type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(c.String("file")))
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	store, err := repository.New(awsdynamodb.NewFromConfig(cfg), c.String("asset-table"))
	if err != nil {
		return fmt.Errorf("failed to create asset store: %w", err)
	}

	if err := store.PutAsset(ctx, domain.Asset{Key: assetPath, Body: body, ContentType: contentType}); err != nil {
		return err
	}
	slog.Info("asset uploaded", "path", assetPath, "bytes", len(body), "content_type", contentType)
	return nil
}

func runAsk(c *cli.Context) error {
	message := strings.Join(c.Args().Slice(), " ")
	category, reply := responder.Classify(message)
	slog.Debug("reply selected", "category", category)
	_, err := fmt.Fprintln(c.App.Writer, reply)
	return err
}

func buildHandler(c *cli.Context) (*handler.Handler, error) {
	ctx := c.Context

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ---- Clients ----
	store, err := repository.New(awsdynamodb.NewFromConfig(cfg), c.String("asset-table"))
	if err != nil {
		return nil, fmt.Errorf("failed to create asset store: %w", err)
	}

	defaults := usecase.DefaultSiteSettings()
	defaults.Debug = c.Bool("debug")

	var loader usecase.SettingsLoader
	if prefix := c.String("param-prefix"); prefix != "" {
		params, err := paramstore.New(awsssm.NewFromConfig(cfg), prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to create SSM client: %w", err)
		}
		loader = params
	}

	// ---- Services ----
	assets, err := usecase.NewAssetService(store, loader, defaults)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset service: %w", err)
	}
	chat := usecase.NewChatService(c.Int("max-message-length"))

	h, err := handler.NewHandler(chat, assets, handler.WithDefaultOrigin(c.String("site-origin")))
	if err != nil {
		return nil, fmt.Errorf("failed to create handler: %w", err)
	}
	return h, nil
}
