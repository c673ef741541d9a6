package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/smmpanel/panelsync/internal/config"
	"github.com/smmpanel/panelsync/internal/database"
	"github.com/smmpanel/panelsync/internal/forwarder"
	"github.com/smmpanel/panelsync/internal/provider"
	"github.com/smmpanel/panelsync/internal/syncer"
)

type BackendServer struct {
	Server    *http.Server
	DB        *database.Postgres
	Syncer    *syncer.Syncer
	Forwarder *forwarder.Forwarder
}

var cfg = &config.Config

func DefaultBackendServer(createTables bool) (*BackendServer, error) {
	dbConfig, err := database.PGConfigParser(cfg.DatabaseURI)
	if err != nil {
		return nil, err
	}

	dbInstance := database.NewPostgresInstance(context.Background(), dbConfig)

	if createTables {
		errTables := dbInstance.CreateTables()
		if errTables != nil {
			return nil, errTables
		}
	}

	caller := provider.NewCaller()

	return &BackendServer{
		Server:    &http.Server{},
		DB:        dbInstance,
		Syncer:    syncer.New(dbInstance, caller),
		Forwarder: forwarder.New(dbInstance, caller),
	}, nil
}

func StartService() {
	srv, err := DefaultBackendServer(true)
	if err != nil {
		log.Fatalf("can't start server, error: %v", err)
	}

	go srv.scheduledSyncLoop()

	log.Fatal(http.ListenAndServe(cfg.RunAddress, srv.router()))
}

// scheduledSyncLoop is the timer-driven trigger for reconciliation. Each tick
// is one bounded batch; a failed attempt simply waits for the next pass.
func (bs *BackendServer) scheduledSyncLoop() {
	for {
		<-time.After(cfg.SyncInterval)

		summary := bs.Syncer.Run(context.Background(), syncer.Options{Limit: cfg.SyncBatchSize})
		log.Printf("sync run %s: checked %d, updated %d, unchanged %d, errored %d",
			summary.RunID, summary.TotalChecked, summary.Updated, summary.Unchanged, summary.Errored)
	}
}
