// Command assistantd runs the local AI-assistant runtime: the memory
// store, model manager, resource monitor, and inference engine behind the
// optional HTTP+WebSocket façade, with background heartbeats published over
// an embedded NATS server the way the teacher's dashboard published agent
// status.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/localmind/assistant/internal/backend"
	"github.com/localmind/assistant/internal/config"
	"github.com/localmind/assistant/internal/embedding"
	"github.com/localmind/assistant/internal/inference"
	"github.com/localmind/assistant/internal/instance"
	"github.com/localmind/assistant/internal/memory"
	"github.com/localmind/assistant/internal/models"
	"github.com/localmind/assistant/internal/nats"
	"github.com/localmind/assistant/internal/notifications"
	"github.com/localmind/assistant/internal/persistence"
	"github.com/localmind/assistant/internal/resource"
	"github.com/localmind/assistant/internal/server"
	"github.com/localmind/assistant/internal/session"
	"github.com/localmind/assistant/internal/types"
	"github.com/localmind/assistant/internal/vectorindex"
)

// ANSI color codes for terminal output
const (
	colorGreen = "\033[32m"
	colorReset = "\033[0m"
)

func main() {
	configPath := flag.String("config", "configs/assistantd.yaml", "Runtime configuration file")
	addr := flag.String("addr", ":8085", "HTTP+WebSocket listen address")
	dataDir := flag.String("data", "data", "Data directory (memory database, snapshot, NATS JetStream store)")
	modelBudgetMB := flag.Uint64("model-budget-mb", 8192, "Total RAM budget for loaded models, in MB")
	resourceIntervalSec := flag.Int("resource-interval", 5, "Resource sampler interval, in seconds")
	consolidationIntervalSec := flag.Int("consolidation-interval", 3600, "Memory consolidation sweep interval, in seconds")
	sessionSweepIntervalSec := flag.Int("session-sweep-interval", 60, "Session TTL sweep interval, in seconds")
	natsPort := flag.Int("nats-port", 4222, "Embedded NATS server port")
	disableNats := flag.Bool("disable-nats", false, "Run without the embedded NATS server and its heartbeats")

	status := flag.Bool("status", false, "Show status of running instance")
	stop := flag.Bool("stop", false, "Stop running instance gracefully")
	forceStop := flag.Bool("force-stop", false, "Force kill running instance")
	flag.Parse()

	port := portFromAddr(*addr)

	if *status {
		showInstanceStatus(*dataDir, port)
		os.Exit(0)
	}
	if *stop || *forceStop {
		stopInstance(*dataDir, port, *forceStop)
		os.Exit(0)
	}

	basePath, err := getBasePath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to determine base path: %v\n", err)
		os.Exit(1)
	}
	if !filepath.IsAbs(*configPath) {
		*configPath = filepath.Join(basePath, *configPath)
	}
	if !filepath.IsAbs(*dataDir) {
		*dataDir = filepath.Join(basePath, *dataDir)
	}
	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create data directory: %v\n", err)
		os.Exit(1)
	}

	pidFilePath := filepath.Join(*dataDir, "assistantd.pid")
	instanceMgr := instance.NewManager(pidFilePath, filepath.Join(*dataDir, "snapshot.json"), port)

	existingInfo, err := instanceMgr.CheckExistingInstance()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to check for existing instance: %v\n", err)
		os.Exit(1)
	}
	if existingInfo != nil && existingInfo.IsRunning {
		fmt.Fprintf(os.Stderr, "assistantd is already running (PID %d, port %d)\n", existingInfo.PID, existingInfo.Port)
		os.Exit(1)
	}

	if err := instanceMgr.AcquireLock(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to acquire instance lock: %v\n", err)
		os.Exit(1)
	}
	defer instanceMgr.ReleaseLock()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	printBanner()

	notifier := notifications.NewDefaultManager()
	hub := server.NewHub()
	alertSink := newAlertBroadcaster(notifier, hub)

	index, err := vectorindex.New(cfg.Vector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build vector index: %v\n", err)
		os.Exit(1)
	}

	// memEmbedder/infEmbedder stay nil-interface unless a concrete service is
	// built below: assigning a typed-nil *embedding.Service to them would
	// make the "embedder may be nil" checks in internal/memory and
	// internal/inference see a non-nil interface wrapping a nil pointer.
	var memEmbedder memory.Embedder
	var infEmbedder inference.Embedder
	if cfg.Vector.EmbeddingModelPath != "" && cfg.Vector.EmbeddingTokenizerPath != "" {
		onnxBackend, err := embedding.NewONNXBackend(
			cfg.Vector.EmbeddingModelPath,
			cfg.Vector.EmbeddingTokenizerPath,
			cfg.Vector.EmbeddingModel,
			cfg.Vector.EmbeddingDimension,
			cfg.Vector.EmbeddingMaxTokens,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load embedding model: %v\n", err)
			os.Exit(1)
		}
		embedder, err := embedding.NewService(onnxBackend, cfg.Performance.CacheSizeMB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start embedding service: %v\n", err)
			os.Exit(1)
		}
		memEmbedder, infEmbedder = embedder, embedder
		fmt.Println("  Embedding service ready (semantic recall enabled)")
	} else {
		fmt.Println("  No embedding model configured, recall falls back to keyword matching")
	}

	memoryDBPath := filepath.Join(*dataDir, "memory.db")
	memStore, err := memory.Open(memoryDBPath, cfg.Memory, index, memEmbedder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open memory store: %v\n", err)
		os.Exit(1)
	}
	defer memStore.Close()
	fmt.Print(colorGreen)
	fmt.Println("  Memory store opened at " + memoryDBPath)
	fmt.Print(colorReset)

	sessions := session.NewManager(session.DefaultConfig(), nil)

	descriptors, backendConfigs := buildCatalogue(cfg.Models)
	loader := backend.NewLoader(backendConfigs)
	modelMgr := models.NewManager(loader, *modelBudgetMB, alertSink)

	resMon := resource.NewMonitor(time.Duration(*resourceIntervalSec)*time.Second, alertSink)

	engine := inference.NewEngine(sessions, memStore, modelMgr, resMon, descriptors, infEmbedder, inference.DefaultConfig())

	srv := server.New(server.Config{
		Addr:         *addr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}, engine, sessions).UseHub(hub)

	snapshotPath := filepath.Join(*dataDir, "snapshot.json")
	store := persistence.New(sessions, memStore, snapshotPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load snapshot: %v\n", err)
	} else {
		fmt.Println("  Snapshot loaded from " + snapshotPath)
	}

	resMon.Start(ctx)

	var natsServer *nats.EmbeddedServer
	var natsClient *nats.Client
	if !*disableNats {
		natsServer, natsClient = startNATS(*natsPort, filepath.Join(*dataDir, "jetstream"))
		if natsClient != nil {
			defer natsClient.Close()
			go publishResourceHeartbeats(ctx, natsClient, resMon, time.Duration(*resourceIntervalSec)*time.Second)
			go publishConsolidationHeartbeats(ctx, natsClient, memStore, time.Duration(*consolidationIntervalSec)*time.Second)
			go publishSessionSweepHeartbeats(ctx, natsClient, sessions, time.Duration(*sessionSweepIntervalSec)*time.Second)
			fmt.Println("  NATS heartbeats running")
		}
	}
	if natsServer != nil {
		defer natsServer.Shutdown()
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Run()
	}()

	if err := instanceMgr.WritePIDFile(os.Getpid(), port, basePath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to write PID file: %v\n", err)
	}

	fmt.Printf("  Listening on %s\n", *addr)
	fmt.Println()

	select {
	case err := <-serverErr:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		}
	case <-shutdown:
		fmt.Println()
		fmt.Println("Shutting down (signal received)...")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	fmt.Println("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
	}

	fmt.Println("Saving snapshot...")
	if err := store.Save(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save snapshot: %v\n", err)
	}

	fmt.Println("Removing PID file...")
	instanceMgr.RemovePIDFile()

	fmt.Println("Goodbye!")
}

// alertBroadcaster satisfies the Notify(severity, message string) shape
// resource.Monitor and models.Manager both accept as their alert sink: it
// forwards to the OS-level notifier and pushes the same alert onto every
// connected WebSocket client as a types.WSTypeAlert event.
type alertBroadcaster struct {
	notifier *notifications.Manager
	hub      *server.Hub
}

func newAlertBroadcaster(notifier *notifications.Manager, hub *server.Hub) *alertBroadcaster {
	return &alertBroadcaster{notifier: notifier, hub: hub}
}

func (a *alertBroadcaster) Notify(severity, message string) {
	a.notifier.Notify(severity, message)
	a.hub.BroadcastJSON(types.WSMessage{
		Type: types.WSTypeAlert,
		Data: types.Alert{
			ID:        uuid.NewString(),
			Type:      "threshold",
			Source:    "pipeline",
			Message:   message,
			Severity:  severity,
			CreatedAt: time.Now(),
		},
	})
}

// buildCatalogue turns the configured model entries into the descriptor
// list the selector scores and the per-model backend configs the loader
// dispatches on. Entries with Enabled == false are skipped.
func buildCatalogue(cfg config.ModelsConfig) ([]models.Descriptor, map[string]backend.Config) {
	descriptors := make([]models.Descriptor, 0, len(cfg.Models))
	backendConfigs := make(map[string]backend.Config, len(cfg.Models))

	for id, entry := range cfg.Models {
		if !entry.Enabled {
			continue
		}

		backendKind := entry.BackendKind
		if backendKind == "" {
			backendKind = "local-process"
		}

		contextLength := entry.ContextLength
		if contextLength == 0 {
			contextLength = cfg.DefaultContextLength
		}

		descriptor := models.Descriptor{
			ID:            id,
			BackendKind:   backendKind,
			RequiredRAMMB: entry.RequiredRAMMB,
			QualityScore:  entry.QualityScore,
			SpeedScore:    entry.SpeedScore,
			ContextLength: contextLength,
			SweetSpot:     entry.SweetSpot,
			Heavyweight:   entry.Heavyweight,
		}
		descriptors = append(descriptors, descriptor)

		backendConfigs[id] = backend.Config{
			Descriptor: descriptor,
			BinaryPath: entry.BinaryPath,
			Args: []string{
				"--model", entry.Path,
				"--ctx-size", strconv.Itoa(contextLength),
				"--batch-size", strconv.Itoa(entry.BatchSize),
				"--threads", strconv.Itoa(entry.Threads),
				"--gpu-layers", strconv.Itoa(entry.GPULayers),
			},
			Port:      entry.Port,
			APIKey:    entry.APIKey,
			ModelName: entry.ModelName,
		}
	}

	return descriptors, backendConfigs
}

// startNATS launches an embedded JetStream-enabled NATS server and a client
// connected to it. Failures are logged and treated as "heartbeats
// disabled" rather than fatal: the inference pipeline has no hard
// dependency on NATS.
func startNATS(port int, dataDir string) (*nats.EmbeddedServer, *nats.Client) {
	srv, err := nats.NewEmbeddedServer(nats.EmbeddedServerConfig{
		Port:      port,
		JetStream: true,
		DataDir:   dataDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to build NATS server: %v\n", err)
		return nil, nil
	}
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to start NATS server: %v\n", err)
		return nil, nil
	}

	client, err := nats.NewClient(srv.URL())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to connect to NATS: %v\n", err)
		srv.Shutdown()
		return srv, nil
	}

	streamMgr, err := nats.NewStreamManager(client.RawConn())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to build JetStream context: %v\n", err)
	} else if err := streamMgr.SetupStreams(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to configure streams: %v\n", err)
	}

	return srv, client
}

func publishResourceHeartbeats(ctx context.Context, client *nats.Client, mon *resource.Monitor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := mon.CurrentSnapshot()
			client.PublishJSON(nats.SubjectResourceHeartbeat, nats.ResourceHeartbeatMessage{
				CPUPercent:       snap.CPUUsagePercent,
				MemoryUsedMB:     snap.MemoryUsedMB,
				MemoryTotalMB:    snap.MemoryTotalMB,
				PerformanceLevel: string(snap.PerformanceLevel),
				Timestamp:        snap.LastUpdated,
			})
		}
	}
}

func publishConsolidationHeartbeats(ctx context.Context, client *nats.Client, store *memory.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			report, err := store.Consolidate(ctx, "")
			if err != nil {
				continue
			}
			client.PublishJSON(nats.SubjectConsolidationHeartbeat, nats.ConsolidationHeartbeatMessage{
				MemoriesScanned:      report.MemoriesProcessed,
				MemoriesConsolidated: report.MemoriesConsolidated,
				Duration:             time.Since(start),
				Timestamp:            time.Now(),
			})
		}
	}
}

func publishSessionSweepHeartbeats(ctx context.Context, client *nats.Client, sessions *session.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired := sessions.EvictExpired()
			client.PublishJSON(nats.SubjectSessionSweepHeartbeat, nats.SessionSweepHeartbeatMessage{
				SessionsExpired:   expired,
				SessionsRemaining: len(sessions.All()),
				Timestamp:         time.Now(),
			})
		}
	}
}

// getBasePath returns the directory containing the executable, or the
// current working directory if running via `go run`.
func getBasePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return os.Getwd()
	}
	dir := filepath.Dir(exe)
	if filepath.Base(dir) == "exe" || filepath.Base(filepath.Dir(dir)) == "go-build" {
		return os.Getwd()
	}
	if filepath.Base(dir) == "bin" {
		return filepath.Dir(dir), nil
	}
	return dir, nil
}

func portFromAddr(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(portStr)
	return port
}

func showInstanceStatus(dataDir string, port int) {
	pidPath := filepath.Join(dataDir, "assistantd.pid")
	mgr := instance.NewManager(pidPath, filepath.Join(dataDir, "snapshot.json"), port)
	info, err := mgr.CheckExistingInstance()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	if info == nil {
		fmt.Println("No assistantd instance is currently running")
		return
	}

	fmt.Println()
	fmt.Printf("Instance:    RUNNING\n")
	fmt.Printf("  PID:       %d\n", info.PID)
	fmt.Printf("  Port:      %d\n", info.Port)
	fmt.Printf("  Started:   %s (%s ago)\n", info.StartTime.Format("2006-01-02 15:04:05"), time.Since(info.StartTime).Round(time.Second))
	fmt.Printf("  Health:    ")
	if info.IsResponding {
		fmt.Println("OK (responding)")
	} else {
		fmt.Println("DEGRADED (not responding)")
	}
	fmt.Println()
}

func stopInstance(dataDir string, port int, force bool) {
	pidPath := filepath.Join(dataDir, "assistantd.pid")
	mgr := instance.NewManager(pidPath, filepath.Join(dataDir, "snapshot.json"), port)
	info, err := mgr.CheckExistingInstance()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if info == nil {
		fmt.Println("No assistantd instance is currently running")
		return
	}

	if force {
		fmt.Printf("Force killing process %d...\n", info.PID)
		if err := instance.KillProcess(info.PID); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to kill process: %v\n", err)
			os.Exit(1)
		}
		time.Sleep(1 * time.Second)
		mgr.RemovePIDFile()
		fmt.Println("Instance terminated")
		return
	}

	fmt.Printf("Sending SIGTERM to process %d...\n", info.PID)
	proc, err := os.FindProcess(info.PID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to find process: %v\n", err)
		os.Exit(1)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to signal process: %v\n", err)
		fmt.Println("Try using -force-stop to force kill the process")
		os.Exit(1)
	}
	fmt.Println("Graceful shutdown requested")
}

func printBanner() {
	fmt.Println()
	fmt.Println("  assistantd")
	fmt.Println("  local AI-assistant runtime")
	fmt.Println()
}
