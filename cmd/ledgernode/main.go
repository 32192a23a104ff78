// Command ledgernode is the main orchestrator: boot sequence Config →
// Logger → Keyring → DataStore → BlockEngine → RPC → EventScheduler →
// APIs; shutdown in reverse order.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"tenantledger/internal/api"
	"tenantledger/internal/rpcnet"
	"tenantledger/internal/scheduler"
	"tenantledger/ledger"
	"tenantledger/ledger/mongostore"
	"tenantledger/pkg/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ledgernode: fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Config
	_ = godotenv.Load(".env", "cmd/ledgernode/.env")
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(lvl)
	}
	log.WithField("node", cfg.Node.ID).Info("booting ledgernode")

	// 3. Keyring
	keys, err := bootKeyring(cfg)
	if err != nil {
		return fmt.Errorf("keyring: %w", err)
	}

	// 4. DataStore
	store, closeStore, err := bootStore(cfg)
	if err != nil {
		return fmt.Errorf("datastore: %w", err)
	}
	defer closeStore()

	tenants, err := ledger.NewRegistry(store.(ledger.TenantStore))
	if err != nil {
		return fmt.Errorf("tenant registry: %w", err)
	}

	// 5. BlockEngine + RPC peer roster
	roster, err := config.LoadRoster(cfg.Node.RosterFile)
	var peers []*rpcnet.PeerClient
	if err == nil {
		timeout := time.Duration(cfg.RPC.TimeoutMs) * time.Millisecond
		for _, p := range roster.Peers {
			peers = append(peers, rpcnet.NewPeerClient(cfg.Node.ID, p.NodeID, p.Addr, timeout, log))
		}
	} else {
		log.WithError(err).Warn("no peer roster loaded; running single-node")
	}
	peerSet := rpcnet.NewPeerRoster(peers)

	engine := ledger.NewEngine(cfg.Node.ID, store, tenants, keys, peerSet, ledger.EngineConfig{
		MaxPayloadBytes:    cfg.Pool.MaxPayloadBytes,
		SealRetries:        cfg.Pool.SealRetries,
		DeliveryStaleAfter: time.Duration(cfg.Pool.DeliveryStaleMs) * time.Millisecond,
	})

	// 6. RPC server
	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&rpcnet.ServiceDesc, rpcnet.NewDispatcher(cfg.Node.ID, engine, log))
	if lis, err := net.Listen("tcp", os.Getenv("LEDGER_RPC_ADDR")); err == nil {
		go func() {
			log.WithField("addr", lis.Addr().String()).Info("rpc listening")
			if err := grpcServer.Serve(lis); err != nil {
				log.WithError(err).Error("rpc server stopped")
			}
		}()
	} else {
		log.WithError(err).Warn("rpc listener disabled")
	}

	// 7. EventScheduler
	pubKeys := map[string]string{cfg.Node.ID: keys.PublicKeyHex()}
	if roster != nil {
		for _, p := range roster.Peers {
			pubKeys[p.NodeID] = p.PubKey
		}
	}
	sched := scheduler.New(time.Duration(cfg.Scheduler.TickIntervalMs)*time.Millisecond, log)
	registerScanTasks(sched, engine, pubKeys)

	// 8. APIs
	userAuth := api.Credentials{AuthMode: cfg.UserAPI.AuthMode, Username: cfg.UserAPI.Username, Password: cfg.UserAPI.Password}
	adminAuth := api.Credentials{AuthMode: cfg.AdminAPI.AuthMode, Username: cfg.AdminAPI.Username, Password: cfg.AdminAPI.Password}
	srv := api.NewServer(engine, tenants, log, userAuth, adminAuth, int64(cfg.Pool.MaxPayloadBytes))

	userSrv := &http.Server{Addr: cfg.UserAPI.Addr, Handler: srv.UserRouter()}
	adminSrv := &http.Server{Addr: cfg.AdminAPI.Addr, Handler: srv.AdminRouter()}

	go listenAndLog(userSrv, "user api", log)
	go listenAndLog(adminSrv, "admin api", log)

	// Shutdown, reverse order of boot.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = userSrv.Shutdown(shutdownCtx)
	_ = adminSrv.Shutdown(shutdownCtx)

	if err := sched.UnregisterAllAndQuiesce(shutdownCtx, 100*time.Millisecond, 50); err != nil {
		log.WithError(err).Warn("quiesce did not complete cleanly")
	}

	grpcServer.GracefulStop()
	for _, p := range peers {
		p.Close()
	}

	return nil
}

func bootKeyring(cfg *config.Config) (*ledger.Keyring, error) {
	if cfg.Node.KeyFile == "" {
		return ledger.GenerateKeyring(cfg.Node.ID)
	}
	if _, err := os.Stat(cfg.Node.KeyFile); os.IsNotExist(err) {
		keys, err := ledger.GenerateKeyring(cfg.Node.ID)
		if err != nil {
			return nil, err
		}
		if err := keys.SaveTo(cfg.Node.KeyFile); err != nil {
			return nil, err
		}
		return keys, nil
	}
	return ledger.LoadKeyring(cfg.Node.ID, cfg.Node.KeyFile)
}

func bootStore(cfg *config.Config) (ledger.DataStore, func(), error) {
	if cfg.DB.URI == "" {
		return ledger.NewMemStore(), func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := mongostore.Connect(ctx, mongostore.Config{
		URI:      cfg.DB.URI,
		Database: cfg.DB.Database,
		NodeName: cfg.Node.ID,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Disconnect(ctx)
	}, nil
}

// registerScanTasks wires the scheduler's closed four-method whitelist to
// the engine's scan-and-fix tasks. /sys/deliverpooling and /sys/blocking
// are admin-HTTP-triggered, not scheduler-dispatched; the scheduler only
// drives the self-repair tasks.
func registerScanTasks(sched *scheduler.Scheduler, engine *ledger.Engine, pubKeys map[string]string) {
	sched.Register("scan-and-fix-block", scheduler.ScanBlocks, 15000, func(ctx context.Context) error {
		return engine.ScanAndFixBlock(ctx, func(signer string) (string, bool) {
			pub, ok := pubKeys[signer]
			return pub, ok
		})
	})
	sched.Register("scan-and-fix-pool", scheduler.ScanPool, 10000, func(ctx context.Context) error {
		_, err := engine.ScanAndFixPool(ctx)
		return err
	})
	sched.Register("delivery-pool", scheduler.DeliverPool, 10000, engine.ScanAndFixPoolDelivery)
	sched.Register("append-blocks", scheduler.AppendBlocks, 10000, engine.ScanAndFixAppendBlocks)
}

func listenAndLog(srv *http.Server, name string, log *logrus.Logger) {
	log.WithFields(logrus.Fields{"listener": name, "addr": srv.Addr}).Info("api listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Errorf("%s stopped", name)
	}
}
