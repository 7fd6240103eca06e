package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/skillmesh/trust-engine/internal/alerts"
	"github.com/skillmesh/trust-engine/internal/api"
	"github.com/skillmesh/trust-engine/internal/config"
	"github.com/skillmesh/trust-engine/internal/credibility"
	"github.com/skillmesh/trust-engine/internal/db"
	"github.com/skillmesh/trust-engine/internal/events"
	"github.com/skillmesh/trust-engine/internal/feedback"
	"github.com/skillmesh/trust-engine/internal/metrics"
	"github.com/skillmesh/trust-engine/internal/providers"
	"github.com/skillmesh/trust-engine/internal/scoring"
	"github.com/skillmesh/trust-engine/internal/summary"
	"github.com/skillmesh/trust-engine/internal/tee"
)

func main() {
	log.Println("Starting SkillMesh Trust Engine (Microservice: skill-trust-scoring)...")

	// ─── Configuration ──────────────────────────────────────────────────
	// Numeric tables come from an optional YAML file; secrets come from
	// environment variables only.
	// ────────────────────────────────────────────────────────────────────

	cfg, err := config.Load(os.Getenv("ENGINE_CONFIG"))
	if err != nil {
		log.Fatalf("FATAL: Invalid configuration: %v", err)
	}

	var dbConn *db.PostgresStore
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		dbConn, err = db.Connect(dbURL)
		if err != nil {
			log.Printf("Warning: Failed to connect to PostgreSQL, continuing without durable feedback log. Error: %v", err)
			dbConn = nil
		} else {
			defer dbConn.Close()
			if err := dbConn.InitSchema(); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			}
		}
	} else {
		log.Println("DATABASE_URL not set — running with in-memory corpus only")
	}

	// ─── Core wiring ────────────────────────────────────────────────────

	clock := providers.SystemClock{}
	bus := events.NewBus(cfg.EventQueueSize)
	bus.OnDrop(func(kind events.Kind) {
		metrics.EventsDropped.WithLabelValues(string(kind)).Inc()
	})

	stake := providers.NewMemoryStake()
	receipts := providers.NewMemoryReceipts()

	// KNOWN_AGENTS unset means open registration: any agent id is accepted
	var known providers.KnownAgents
	if registry := registryFromEnv(); registry != nil {
		known = registry
	}

	store := feedback.NewStore(known, bus)
	warmLoadCorpus(dbConn, store)

	tiers := scoring.NewTierMap(cfg.TierThresholds)
	naive := scoring.NewNaiveScorer(tiers, cfg.SummaryDecimals)
	hardened := scoring.NewHardenedScorer(cfg.Mitigation, tiers, cfg.SummaryDecimals)
	resolver := credibility.NewResolver(receipts, stake)
	resolver.GlobalMultiplier = cfg.CredibilityMultiplier
	usage := scoring.NewUsageScorer(hardened, resolver, tiers, cfg.SummaryDecimals, cfg.BlendWeight)

	cache := summary.NewCache()
	recomputer := summary.NewRecomputer(store, cache, naive, usage, bus, clock)

	verifier := tee.NewVerifier(cfg.TEE, clock)
	trustKeysFromEnv(verifier)
	teeStore := tee.NewStore(verifier, clock, bus)
	warmLoadPins(dbConn, teeStore)

	// ─── Fan-out: WebSocket hub + alert manager ─────────────────────────

	wsHub := api.NewHub()
	alertMgr := alerts.NewManager(func(alert alerts.Alert) {
		payload, err := json.Marshal(map[string]interface{}{
			"type":  "security_alert",
			"alert": alert,
		})
		if err != nil {
			log.Printf("[Main] Failed to marshal security alert payload: %v", err)
			return
		}
		wsHub.Broadcast(payload)
	})
	if slackURL := os.Getenv("ALERT_WEBHOOK_URL"); slackURL != "" {
		alertMgr.RegisterWebhook("ops", slackURL, "medium", nil)
	}

	// ─── Run loop ───────────────────────────────────────────────────────

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return wsHub.Run(ctx, bus) })
	g.Go(func() error { return recomputer.Run(ctx) })
	g.Go(func() error { return alertMgr.Watch(ctx, bus) })

	router := api.SetupRouter(api.Deps{
		Store:      store,
		Recomputer: recomputer,
		TEEStore:   teeStore,
		AlertMgr:   alertMgr,
		Hub:        wsHub,
		DBStore:    dbConn,
		Clock:      clock,
		Mitigation: cfg.Mitigation,
	})

	port := getEnvOrDefault("PORT", "5340")
	log.Printf("Engine running on :%s (API Node: skill-trust-scoring)\n", port)

	g.Go(func() error { return router.Run(":" + port) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatalf("Engine stopped: %v", err)
	}
}

// registryFromEnv builds the known-agent set from KNOWN_AGENTS
// (comma-separated). Returns nil when unset.
func registryFromEnv() *providers.MemoryAgents {
	raw := os.Getenv("KNOWN_AGENTS")
	if raw == "" {
		return nil
	}
	agents := providers.NewMemoryAgents()
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			agents.Register(id)
		}
	}
	return agents
}

// trustKeysFromEnv loads comma-separated hex Ed25519 keys from
// TEE_TRUSTED_KEYS into the verifier's trusted set.
func trustKeysFromEnv(verifier *tee.Verifier) {
	raw := os.Getenv("TEE_TRUSTED_KEYS")
	if raw == "" {
		log.Println("Warning: TEE_TRUSTED_KEYS not set — every attestation will fail signature verification")
		return
	}
	count := 0
	for _, key := range strings.Split(raw, ",") {
		if key = strings.TrimSpace(key); key == "" {
			continue
		}
		if err := verifier.TrustKey(key); err != nil {
			log.Printf("Warning: skipping malformed trusted key: %v", err)
			continue
		}
		count++
	}
	log.Printf("Loaded %d trusted TEE keys", count)
}

// warmLoadCorpus replays the durable feedback log into the in-memory store
func warmLoadCorpus(dbConn *db.PostgresStore, store *feedback.Store) {
	if dbConn == nil {
		return
	}
	entries, err := dbConn.LoadFeedback(context.Background())
	if err != nil {
		log.Printf("Warning: failed to warm-load feedback log: %v", err)
		return
	}
	loaded := 0
	for _, fb := range entries {
		revoked := fb.Revoked
		fb.Revoked = false
		if _, err := store.Submit(fb); err != nil {
			continue
		}
		if revoked {
			_ = store.Revoke(fb.ID)
		}
		loaded++
	}
	if loaded > 0 {
		log.Printf("Warm-loaded %d feedback entries from the durable log", loaded)
	}
}

// warmLoadPins replays persisted code-hash pins into the TEE store
func warmLoadPins(dbConn *db.PostgresStore, teeStore *tee.Store) {
	if dbConn == nil {
		return
	}
	pins, err := dbConn.LoadPins(context.Background())
	if err != nil {
		log.Printf("Warning: failed to warm-load code hash pins: %v", err)
		return
	}
	for _, pin := range pins {
		if _, err := teeStore.PinCodeHash(pin.AgentID, pin.CodeHash, pin.PinnedBy, pin.AuditReference); err != nil {
			log.Printf("Warning: skipping invalid persisted pin for %s: %v", pin.AgentID, err)
		}
	}
	if len(pins) > 0 {
		log.Printf("Warm-loaded %d code hash pins", len(pins))
	}
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
