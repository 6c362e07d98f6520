package monitor

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sla-monitor/watch-server/internal/model"
	"github.com/sla-monitor/watch-server/internal/registry"
	"github.com/sla-monitor/watch-server/internal/store"
)

// SyncServices reconciles the services table with the registry at
// startup: new services are inserted, changed metadata is updated, and
// rows already in sync are left untouched. Rows for services no longer
// registered are kept so their history stays queryable.
func SyncServices(ctx context.Context, reg *registry.Registry, st *store.Store, log *logrus.Entry) error {
	var created, updated int
	for _, sc := range reg.Services() {
		action, err := st.SyncService(ctx, model.Service{
			ID:          sc.ID,
			Name:        sc.Name,
			Description: sc.Description,
			EndpointURL: sc.URL,
		})
		if err != nil {
			return fmt.Errorf("sync service %s: %w", sc.ID, err)
		}
		switch action {
		case "created":
			created++
			log.WithField("service", sc.ID).Info("service registered")
		case "updated":
			updated++
			log.WithField("service", sc.ID).Info("service metadata updated")
		}
	}
	log.WithFields(logrus.Fields{
		"total":   reg.Size(),
		"created": created,
		"updated": updated,
	}).Info("service registry synchronized")
	return nil
}
