package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/npezzotti/go-messenger/internal/api"
	"github.com/npezzotti/go-messenger/internal/config"
	"github.com/npezzotti/go-messenger/internal/database"
	"github.com/npezzotti/go-messenger/internal/server"
	"github.com/npezzotti/go-messenger/internal/stats"
	"github.com/npezzotti/go-messenger/internal/upload"
)

var (
	configFile     string
	addr           string
	dsn            string
	uploadDir      string
	allowedOrigins string
)

// loadConfig layers defaults, the YAML file, the environment and finally
// any flags given on the command line.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		if err := cfg.LoadFile(configFile); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv()

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.ServerAddr = addr
		case "dsn":
			cfg.DatabaseDSN = dsn
		case "upload-dir":
			cfg.UploadDir = uploadDir
		case "allowed-origins":
			cfg.AllowedOrigins = config.SplitList(allowedOrigins)
		}
	})

	return cfg, cfg.Validate()
}

func openRepository(logger *log.Logger, cfg *config.Config) (database.MessengerRepository, io.Closer, error) {
	if cfg.DatabaseDSN == "" {
		logger.Println("no database configured, keeping state in memory")
		return database.NewMemoryRepository(), io.NopCloser(nil), nil
	}

	repo, err := database.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}

	return repo, repo, nil
}

func main() {
	flag.StringVar(&configFile, "config", "", "path to a YAML config file")
	flag.StringVar(&addr, "addr", "", "server address")
	flag.StringVar(&dsn, "dsn", "", "postgres connection string, empty keeps state in memory")
	flag.StringVar(&uploadDir, "upload-dir", "", "directory uploaded images are stored in")
	flag.StringVar(&allowedOrigins, "allowed-origins", "", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[go-messenger] ", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Fatal("load .env:", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("config: ", err)
	}

	repo, closer, err := openRepository(logger, cfg)
	if err != nil {
		logger.Fatal("db open: ", err)
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	blobs, err := upload.NewLocalStore(cfg.UploadDir, cfg.UploadURLPrefix)
	if err != nil {
		logger.Fatal("upload store: ", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, repo, statsUpdater, server.Options{
		HistoryLimit: cfg.HistoryLimit,
		ChatOrder:    cfg.ChatOrder,
		EventRate:    cfg.EventRate,
		EventBurst:   cfg.EventBurst,
	})
	if err != nil {
		logger.Fatal("new chat server: ", err)
	}

	srv := api.NewMessengerApp(mux, logger, chatServer, blobs, cfg)

	statsUpdater.Run()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	shutdown(shutDownCtx, logger, srv, chatServer, statsUpdater)
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

type stopper interface {
	Stop()
}

// shutdown stops the HTTP server, then the chat server. Stats stay open
// unless the chat server confirmed it stopped.
func shutdown(ctx context.Context, logger *log.Logger, httpSrv, chatServer shutdowner, statsUpdater stopper) {
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(ctx); err != nil {
		logger.Println("chat server shutdown:", err)
		return
	}

	statsUpdater.Stop()
	logger.Println("shutdown complete")
}
