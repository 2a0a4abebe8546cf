package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RunContext identifica una ejecución (quién y cuándo) y se pasa explícitamente a cada operación
// que escribe en el ledger.
type RunContext struct {
	RunID uuid.UUID
	Actor string
	Now   func() time.Time
}

// NewRunContext crea un contexto de ejecución con un RunID nuevo y reloj UTC.
func NewRunContext(actor string) RunContext {
	if actor == "" {
		actor = "system"
	}
	return RunContext{
		RunID: uuid.New(),
		Actor: actor,
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

func (rc RunContext) now() time.Time {
	if rc.Now == nil {
		return time.Now().UTC()
	}
	return rc.Now()
}

// logger agrega run_id y actor al logger del caso de uso.
func (rc RunContext) logger(log zerolog.Logger) zerolog.Logger {
	return log.With().Str("run_id", rc.RunID.String()).Str("actor", rc.Actor).Logger()
}
