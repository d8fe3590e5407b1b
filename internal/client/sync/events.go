package sync

import (
	"time"

	"github.com/iudanet/famsync/internal/models"
)

// State is the coordinator's position in the sync cycle.
type State string

const (
	StateIdle         State = "idle"
	StateDraining     State = "draining"
	StateTransmitting State = "transmitting"
	StateReconciling  State = "reconciling"
	StateFailed       State = "failed"
)

// Reason says what asked for a sync cycle.
type Reason string

const (
	ReasonTimer        Reason = "timer"
	ReasonConnectivity Reason = "connectivity"
	ReasonUser         Reason = "user"
	ReasonForeground   Reason = "foreground"
	ReasonNudge        Reason = "nudge"
	ReasonRetry        Reason = "retry"
	ReasonPaging       Reason = "paging" // сервер отдал изменения не целиком
)

// EventType classifies coordinator notifications.
type EventType string

const (
	EventCycleCompleted EventType = "cycle_completed"
	EventConflict       EventType = "conflict"      // локальная правка была отброшена
	EventDeadLettered   EventType = "dead_lettered" // мутация отклонена окончательно
	EventSyncFailed     EventType = "sync_failed"
)

// Event is delivered to subscribers. Only the fields relevant to Type are set.
type Event struct {
	At         time.Time
	Err        error
	Discarded  models.Fields // EventConflict: локальные поля, проигравшие конфликт
	Stats      *CycleStats   // EventCycleCompleted
	Type       EventType
	EntityID   string
	EntityType models.EntityType
	Strategy   models.Strategy
	Reason     string
	Code       string
	Seq        uint64
}

// CycleStats summarises one completed sync cycle.
type CycleStats struct {
	ServerTime   time.Time
	Sent         int // отправлено мутаций
	Applied      int
	Conflicts    int
	DeadLettered int
	Retrying     int // остались в очереди после временной ошибки
	Pulled       int // изменения других устройств, записанные локально
	Rebased      int
	More         bool // на сервере остались изменения для следующего цикла
}

func (s *CycleStats) add(o *CycleStats) {
	s.ServerTime = o.ServerTime
	s.Sent += o.Sent
	s.Applied += o.Applied
	s.Conflicts += o.Conflicts
	s.DeadLettered += o.DeadLettered
	s.Retrying += o.Retrying
	s.Pulled += o.Pulled
	s.Rebased += o.Rebased
	s.More = o.More
}
