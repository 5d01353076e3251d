package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/internal/config"
	"taskboard/internal/result"
	"taskboard/internal/server"
	"taskboard/internal/store"
	"taskboard/internal/task"
	"taskboard/internal/telemetry"
	"taskboard/pkg/mq"
)

func main() {
	mode := flag.String("mode", "help", "help|server|tasks|add|done|undone|delete|export|watch")
	id := flag.String("id", "", "task id (add, done, undone, delete)")
	title := flag.String("title", "", "task title (add)")
	format := flag.String("format", "json", "export format: json|csv|pdf")
	out := flag.String("out", "tasks.json", "export output path")
	httpAddr := flag.String("http-addr", "", "http listen address, overrides PORT/HTTP_ADDR (server mode)")
	dsn := flag.String("dsn", "", "store DSN, overrides STORE_DSN")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *dsn != "" {
		cfg.StoreDSN = *dsn
	}
	logger := setupLogger(cfg)

	if *mode == "help" || *mode == "" {
		usage()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rc *redis.Client
	if cfg.RedisURL != "" {
		rc, err = mq.Dial(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer rc.Close()
	}

	if *mode == "watch" {
		if rc == nil {
			logger.Fatal("watch needs REDIS_URL")
		}
		err := mq.NewRedis(rc).Subscribe(ctx, cfg.EventsChannel, func(payload []byte) error {
			fmt.Println(string(payload))
			return nil
		})
		if err != nil {
			logger.Fatalf("watch: %v", err)
		}
		return
	}

	st, err := store.Open(ctx, store.Options{Driver: cfg.StoreDriver, DSN: cfg.StoreDSN})
	if err != nil {
		logger.Fatalf("store: %v", err)
	}
	defer st.Close()

	opts := []task.Option{task.WithLogger(logger)}
	if rc != nil {
		opts = append(opts, task.WithPublisher(mq.NewRedis(rc), cfg.EventsChannel))
	}
	if cfg.Tracing {
		tp, shutdown := telemetry.Setup(logger)
		defer func() { _ = shutdown(context.Background()) }()
		opts = append(opts, task.WithTracerProvider(tp))
	}
	mgr := task.NewManager(st, opts...)

	switch *mode {
	case "server":
		srv := server.New(mgr, server.Options{
			PublicDir:       cfg.PublicDir,
			StaticCacheTTL:  cfg.StaticCacheTTL,
			ShutdownTimeout: cfg.ShutdownTimeout,
			Logger:          logger,
		})
		if err := srv.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
			logger.Fatalf("server: %v", err)
		}
		logger.Info("server stopped")

	case "tasks":
		tasks, err := mgr.List(ctx)
		if err != nil {
			logger.Fatalf("list: %v", err)
		}
		for _, t := range tasks {
			mark := " "
			if t.Done {
				mark = "x"
			}
			fmt.Printf("[%s] %s  %s  (%s)\n", mark, t.ID, t.Title, t.CreatedAt)
		}
		fmt.Printf("%d task(s)\n", len(tasks))

	case "add":
		t, err := mgr.Create(ctx, task.NewTask{ID: *id, Title: *title})
		if err != nil {
			logger.Fatalf("add: %v", err)
		}
		fmt.Printf("Added: id=%s title=%q\n", t.ID, t.Title)

	case "done", "undone":
		if *id == "" {
			logger.Fatalf("%s needs -id", *mode)
		}
		t, err := mgr.SetDone(ctx, *id, *mode == "done")
		if err != nil {
			logger.Fatalf("%s: %v", *mode, err)
		}
		fmt.Printf("Updated: id=%s done=%v\n", t.ID, t.Done)

	case "delete":
		if *id == "" {
			logger.Fatal("delete needs -id")
		}
		if err := mgr.Delete(ctx, *id); err != nil {
			logger.Fatalf("delete: %v", err)
		}
		fmt.Printf("Deleted: id=%s\n", *id)

	case "export":
		b, err := result.NewExporter(mgr).Export(ctx, *format)
		if err != nil {
			logger.Fatalf("export: %v", err)
		}
		if err := os.WriteFile(*out, b, 0644); err != nil {
			logger.Fatalf("write: %v", err)
		}
		fmt.Printf("Exported -> %s\n", *out)

	default:
		logger.Errorf("unknown mode %q", *mode)
		usage()
		os.Exit(2)
	}
}

func setupLogger(cfg config.Config) *log.Logger {
	logger := log.StandardLogger()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	}
	return logger
}

func usage() {
	fmt.Println("Usage examples:")
	fmt.Println("  go run ./cmd --mode server --http-addr :3000")
	fmt.Println("  go run ./cmd --mode add --title \"buy milk\"")
	fmt.Println("  go run ./cmd --mode done --id <task-id>")
	fmt.Println("  go run ./cmd --mode tasks")
	fmt.Println("  go run ./cmd --mode export --format csv --out ./tasks.csv")
	fmt.Println("  REDIS_URL=redis://localhost:6379/0 go run ./cmd --mode watch")
}
