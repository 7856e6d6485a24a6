package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"questsync.dev/internal/persistence/store"
)

type storeOptions struct {
	Backend string
	DSN     string
	DataDir string
	Token   string
	Timeout time.Duration
}

type openedStore struct {
	store.Store
	name  string
	close func() error
}

func (o openedStore) Close() error {
	if o.close == nil {
		return nil
	}
	return o.close()
}

func openStore(opts storeOptions) (openedStore, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" {
		backend = "sqlite"
	}
	dsn := strings.TrimSpace(opts.DSN)

	switch backend {
	case "memory":
		return openedStore{Store: store.NewMemory(), name: backend}, nil
	case "sqlite":
		if dsn == "" {
			dsn = filepath.Join(opts.DataDir, "store", "quest.sqlite")
		}
		db, err := store.OpenSQLite(dsn)
		if err != nil {
			return openedStore{}, err
		}
		return openedStore{Store: db, name: backend, close: db.Close}, nil
	case "files":
		if dsn == "" {
			dsn = filepath.Join(opts.DataDir, "store", "players")
		}
		f, err := store.OpenFiles(dsn)
		if err != nil {
			return openedStore{}, err
		}
		return openedStore{Store: f, name: backend}, nil
	case "http":
		if dsn == "" {
			return openedStore{}, fmt.Errorf("store=http needs -store_dsn or QS_STORE_DSN")
		}
		h, err := store.OpenHTTP(store.HTTPConfig{
			Endpoint:    dsn,
			Token:       opts.Token,
			HTTPTimeout: opts.Timeout,
		})
		if err != nil {
			return openedStore{}, err
		}
		return openedStore{Store: h, name: backend}, nil
	default:
		return openedStore{}, fmt.Errorf("unsupported store backend: %s", backend)
	}
}
