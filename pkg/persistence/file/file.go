// Package file provides file-based persistence for flows, contacts and the automation ledgers.
package file

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
	"github.com/google/uuid"
)

// Persistence implements the persistence.Persistence interface using the file system.
// Read-modify-write operations are serialized by a single mutex, so compare-and-swap
// semantics only hold within one process.
type Persistence struct {
	root string
	mu   sync.RWMutex

	flows          *FlowRepository
	contacts       *ContactRepository
	channels       *ChannelRepository
	deliveryLogs   *DeliveryLogRepository
	automationLogs *AutomationLogRepository
	timers         *TimerRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.flows = &FlowRepository{p: p, docs: newCollection[models.Flow](cleanRoot, "flows")}
	p.contacts = &ContactRepository{p: p, docs: newCollection[models.Contact](cleanRoot, "contacts")}
	p.channels = &ChannelRepository{p: p, docs: newCollection[models.Channel](cleanRoot, "channels")}
	p.deliveryLogs = &DeliveryLogRepository{p: p, docs: newCollection[models.DeliveryLog](cleanRoot, "delivery_logs")}
	p.automationLogs = &AutomationLogRepository{p: p, docs: newCollection[models.AutomationLog](cleanRoot, "automation_logs")}
	p.timers = &TimerRepository{p: p, docs: newCollection[models.DelayTimer](cleanRoot, "timers")}

	return p
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) FlowRepository() persistence.FlowRepository {
	return fp.flows
}

func (fp *Persistence) ContactRepository() persistence.ContactRepository {
	return fp.contacts
}

func (fp *Persistence) ChannelRepository() persistence.ChannelRepository {
	return fp.channels
}

func (fp *Persistence) DeliveryLogRepository() persistence.DeliveryLogRepository {
	return fp.deliveryLogs
}

func (fp *Persistence) AutomationLogRepository() persistence.AutomationLogRepository {
	return fp.automationLogs
}

func (fp *Persistence) TimerRepository() persistence.TimerRepository {
	return fp.timers
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
