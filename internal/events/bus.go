// The bus implementation lives in platform/events; the aliases here let
// modules import everything event-related from one package.
package events

import (
	platformevents "driveassist_backend/platform/events"
	"driveassist_backend/platform/logger"
)

type InMemoryBus = platformevents.InMemoryBus

// NewInMemoryBus builds the process-local bus the API and worker share.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}
