// Command assistant-server exposes a relay agent over HTTP. POST /chat
// answers in one shot, POST /chat/stream replays the run's events over
// SSE, and final outputs can be forwarded to a webhook. The model is
// scripted (the toolkit ships no provider adapters); swap in a real
// relay.Model to go live.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nevindra/relay"
	"github.com/nevindra/relay/internal/config"
	"github.com/nevindra/relay/observer"
	"github.com/nevindra/relay/store/sqlite"
	"github.com/nevindra/relay/tools/shell"
	"github.com/nevindra/relay/tools/web"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmsgprefix)
	log.SetPrefix("[assistant] ")

	// 1. Load config
	cfg := config.Load(os.Getenv("RELAY_CONFIG"))

	// 2. Scripted demo model
	var model relay.Model = newAssistantModel()

	// 3. Observer (opt-in via config)
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		if cfg.Observer.Endpoint != "" {
			// Exporters read the standard OTEL env vars.
			os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Observer.Endpoint)
		}
		pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
		for name, p := range cfg.Observer.Pricing {
			pricing[name] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
		}

		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(context.Background(), cfg.Observer.Service, pricing)
		if err != nil {
			log.Fatalf(" [observer] init failed: %v", err)
		}
		defer shutdown(context.Background())

		model = observer.WrapModel(model, inst)
		log.Println(" [observer] OTEL observability enabled")
	}

	// 4. Session store
	store := sqlite.New(cfg.Store.Path)
	defer store.Close()
	if err := store.Init(context.Background()); err != nil {
		log.Fatalf(" [store] init failed: %v", err)
	}

	// 5. Assistant agent with tools
	assistant := relay.New("Assistant",
		relay.WithInstructions(assistantPrompt()),
		relay.WithModel(model),
		relay.WithTools(web.NewReadPage(), shell.New(os.TempDir())),
	)

	// 6. Runner
	runnerOpts := []relay.RunnerOption{
		relay.WithDefaultMaxTurns(cfg.Run.MaxTurns),
	}
	if inst != nil {
		runnerOpts = append(runnerOpts, relay.WithHooks(observer.Hooks(inst)))
		if cfg.Run.Tracing {
			runnerOpts = append(runnerOpts, relay.WithTracer(observer.NewTracer()))
		}
	}
	runner := relay.NewRunner(runnerOpts...)

	// 7. HTTP server
	s := newServer(runner, assistant, store, cfg.Server.WebhookURL)
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleChat(w, r)
	})
	mux.HandleFunc("/chat/stream", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleChatStream(w, r)
	})
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/health", handleHealth)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")

	shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	log.Println("stopped")
}

func assistantPrompt() string {
	return `You are a helpful assistant with two tools. Use read_page to
fetch a web page when the user asks you to read a URL, and shell_exec to
run a command when asked. Answer everything else directly, in Markdown.`
}
