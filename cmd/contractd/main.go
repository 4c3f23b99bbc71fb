// Command contractd is the entry point for the contract drafting server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/ovleluv/AIContract-STT/internal/app"
	"github.com/ovleluv/AIContract-STT/internal/config"
	"github.com/ovleluv/AIContract-STT/pkg/provider/llm"
	"github.com/ovleluv/AIContract-STT/pkg/provider/llm/anyllm"
	oallm "github.com/ovleluv/AIContract-STT/pkg/provider/llm/openai"
	"github.com/ovleluv/AIContract-STT/pkg/provider/stt"
	oastt "github.com/ovleluv/AIContract-STT/pkg/provider/stt/openai"
	"github.com/ovleluv/AIContract-STT/pkg/provider/stt/whisper"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	reload := flag.Duration("reload-interval", 5*time.Second, "how often to check the config file for changes (0 disables)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "contractd: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "contractd: %v\n", err)
		}
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("contractd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := app.BuildProviders(cfg, reg, nil)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLogLevel(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *reload > 0 {
		w, err := config.NewWatcher(*configPath, application.ApplyConfig,
			config.WithInterval(*reload), config.WithEnv(os.LookupEnv))
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	runErr := application.Run(ctx)
	if runErr != nil {
		slog.Error("run error", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if entry.Timeout > 0 {
			opts = append(opts, oallm.WithTimeout(entry.Timeout))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining vendors go through any-llm-go. ollama, llamacpp and
	// llamafile are local servers addressed by BaseURL and need no key.
	for _, name := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq",
		"ollama", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oastt.WithModel(entry.Model))
		}
		if entry.Timeout > 0 {
			opts = append(opts, oastt.WithTimeout(entry.Timeout))
		}
		return oastt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if entry.Timeout > 0 {
			opts = append(opts, whisper.WithHTTPClient(&http.Client{Timeout: entry.Timeout}))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       contractd — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	fmt.Printf("║  LLM fallbacks   : %-19d ║\n", len(cfg.Providers.LLMFallbacks))
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printSetting("Sessions", backend(cfg.Session.RedisURL, "redis"))
	printSetting("Drafts", backend(cfg.Store.PostgresDSN, "postgres"))
	printSetting("Merge", cfg.Merge.Strategy)
	printSetting("Export", cfg.Export.Format)
	fmt.Printf("║  Contract types  : %-19d ║\n", len(cfg.Pipeline.Catalog))
	printSetting("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printSetting(kind, value)
}

func printSetting(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

func backend(dsn, name string) string {
	if dsn == "" {
		return "memory"
	}
	return name
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
