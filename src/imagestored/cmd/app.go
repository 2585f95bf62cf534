package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/q-controller/imagestore/src/pkg/config"
	"github.com/q-controller/imagestore/src/pkg/images"
	"github.com/q-controller/imagestore/src/pkg/images/journal"
	"github.com/q-controller/imagestore/src/pkg/images/storage"
	"github.com/q-controller/imagestore/src/pkg/images/upload"
)

type app struct {
	store      *storage.LocalStore
	journal    *journal.Journal
	journalErr error
	client     *upload.Client
	svc        images.ImageService
}

func openApp(conf *config.Config) (*app, error) {
	store := storage.NewLocalStore(conf.ImagesPath())
	if initErr := store.Initialize(); initErr != nil {
		return nil, initErr
	}

	a := &app{store: store}

	// The journal is locked by a running server; other commands work without
	// it.
	j, journalErr := journal.Open(conf.JournalPath())
	if journalErr != nil {
		slog.Warn("Upload history unavailable", "directory", conf.JournalPath(), "error", journalErr)
		a.journalErr = journalErr
	} else {
		a.journal = j
	}

	if conf.UploadEnabled() {
		client, clientErr := upload.NewClient(conf.Endpoint, conf.APIKey, upload.WithSettleDelay(conf.SettleDelay))
		if clientErr != nil {
			return nil, errors.Join(clientErr, a.Close())
		}
		a.client = client
	}

	svc, svcErr := images.CreateService(store, a.client, a.journal)
	if svcErr != nil {
		return nil, errors.Join(fmt.Errorf("failed to create service: %w", svcErr), a.Close())
	}
	a.svc = svc
	return a, nil
}

func (a *app) Close() error {
	if a.client != nil {
		a.client.Tracker().Close()
	}
	if a.journal != nil {
		return a.journal.Close()
	}
	return nil
}
