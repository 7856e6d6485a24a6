package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"questsync.dev/internal/persistence/journal"
	"questsync.dev/internal/platform/config"
	"questsync.dev/internal/platform/otel"
	"questsync.dev/internal/protocol"
	"questsync.dev/internal/quest"
	"questsync.dev/internal/session"
	"questsync.dev/internal/transport/ws"
	"questsync.dev/internal/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/quest.yaml", "path to quest.yaml (empty for built-in defaults)")
		backend    = flag.String("store", "sqlite", "state store backend: memory|sqlite|files|http")
		storeDSN   = flag.String("store_dsn", "", "sqlite path, files dir or http endpoint (default derived from -data)")
		noJournal  = flag.Bool("disable_journal", false, "disable the transition journal")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	var env config.ServerEnv
	if err := config.ParseEnv(&env); err != nil {
		logger.Fatalf("%v", err)
	}
	*addr = config.Pick(env.Addr, *addr)
	*dataDir = config.Pick(env.DataDir, *dataDir)
	*tuningPath = config.Pick(env.TuningPath, *tuningPath)
	*backend = config.Pick(env.StoreBackend, *backend)
	*storeDSN = config.Pick(env.StoreDSN, *storeDSN)
	*noJournal = *noJournal || env.DisableLog

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}

	validator, err := protocol.NewValidator()
	if err != nil {
		logger.Fatalf("protocol schemas: %v", err)
	}

	st, err := openStore(storeOptions{
		Backend: *backend,
		DSN:     *storeDSN,
		DataDir: *dataDir,
		Token:   env.StoreToken,
		Timeout: env.StoreTimeout,
	})
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer st.Close()
	logger.Printf("store backend=%s", st.name)

	ctx, cancel := signalContext()
	defer cancel()

	shutdownTracing, err := otel.Setup(ctx, "questsync-server")
	if err != nil {
		logger.Printf("otel setup: %v (tracing disabled)", err)
	}
	defer func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = shutdownTracing(ctx2)
	}()

	uploader, err := openOffsite(env.Offsite, *dataDir, logger)
	if err != nil {
		logger.Fatalf("offsite: %v", err)
	}
	defer uploader.Close()

	var recorder session.Recorder
	if tune.Journal.Enabled && !*noJournal {
		j := journal.Open(*dataDir)
		if uploader != nil {
			j.OnFileClosed(uploader.Enqueue)
		}
		defer j.Close()
		recorder = j
	} else {
		logger.Printf("transition journal disabled")
	}

	hub := ws.NewHub()
	sess := session.New(session.Config{
		Engine:    quest.NewEngine(tune.Quest),
		Store:     st.Store,
		Publisher: hub,
		Logger:    logger,
		Journal:   recorder,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(sess, uploader))

	if adminEnabled(env) {
		registerAdmin(mux, sess)
	} else {
		logger.Printf("admin endpoints disabled (QS_ENABLE_ADMIN_HTTP=false)")
	}
	if env.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/quest/ws", ws.NewServer(sess, hub, validator, tune.Transport, logger).Handler())

	logger.Printf("rules vines=%d berries=%d kimkim=%d",
		tune.Quest.RequiredVines, tune.Quest.RequiredBerries, tune.Quest.RequiredKimkim)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := serve(ctx, srv, logger); err != nil {
		// Exit after the deferred closers so the open journal hour is finalized.
		logger.Printf("serve: %v", err)
		exitCode = 1
		return
	}
	logger.Printf("stopped")
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, logger *log.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	return g.Wait()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func adminEnabled(env config.ServerEnv) bool {
	if v := strings.TrimSpace(env.EnableAdmin); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	switch strings.ToLower(strings.TrimSpace(env.DeployEnv)) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
