package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridian-apps/casecomms/src/api/audit"
	"github.com/meridian-apps/casecomms/src/api/authz"
	"github.com/meridian-apps/casecomms/src/api/config"
	"github.com/meridian-apps/casecomms/src/api/data"
	"github.com/meridian-apps/casecomms/src/api/directory"
	"github.com/meridian-apps/casecomms/src/api/files"
	"github.com/meridian-apps/casecomms/src/api/gateway"
	"github.com/meridian-apps/casecomms/src/api/hierarchy"
	"github.com/meridian-apps/casecomms/src/api/identity"
	"github.com/meridian-apps/casecomms/src/api/logger"
	"github.com/meridian-apps/casecomms/src/api/roster"
	"github.com/meridian-apps/casecomms/src/api/store"
	"github.com/meridian-apps/casecomms/src/api/webserver"
	"github.com/meridian-apps/casecomms/src/api/workflow"
)

func main() {
	log := logger.New()
	defer log.Sync()

	cfg := config.Load()

	db := data.MustMySQL(cfg.MySQLDSN)
	if err := data.Migrate(db); err != nil {
		log.Fatalw("migrate", "err", err)
	}
	rdb := data.MustRedis(cfg.RedisURL)

	storage, err := files.NewDisk(cfg.UploadDir)
	if err != nil {
		log.Fatalw("upload dir", "err", err)
	}

	ros := roster.NewDB(db)
	hier := hierarchy.NewDB(db)
	gate := authz.NewGate(hier)
	dir := directory.New(db, ros, gate, log)
	wf := workflow.New(db, dir, gate, hier, log)
	st := store.New(db, dir, ros, storage, log)
	verifier := identity.NewJWT([]byte(cfg.JWTSecret), db)
	rec := audit.NewStream(rdb, log)
	hub := gateway.NewHub(dir, log)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := webserver.New(webserver.Deps{
		Cfg:      cfg,
		DB:       db,
		RDB:      rdb,
		Verifier: verifier,
		Dir:      dir,
		Workflow: wf,
		Store:    st,
		Hub:      hub,
		Audit:    rec,
		Log:      log,
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		var err error
		if cfg.EnableSSL && cfg.SSLCert != "" && cfg.SSLKey != "" {
			reloader, rerr := webserver.NewTLSReloader(cfg.SSLCert, cfg.SSLKey, log)
			if rerr != nil {
				log.Warnw("TLS reloader failed, falling back to HTTP", "err", rerr)
				err = httpSrv.ListenAndServe()
			} else {
				httpSrv.TLSConfig = reloader.GetConfig()
				err = httpSrv.ListenAndServeTLS("", "")
			}
		} else {
			err = httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalw("http", "err", err)
		}
	}()

	log.Infow("casecomms api listening", "port", cfg.Port, "ssl", cfg.EnableSSL)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	cancel()
	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()
	_ = httpSrv.Shutdown(shutCtx)
}
