package domain

import (
	"errors"
	"fmt"
	"time"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound                = errors.New("recurso no encontrado")
	ErrInvalidInput            = errors.New("entrada inválida")
	ErrConflict                = errors.New("conflicto con el estado actual")
	ErrDuplicateLot            = errors.New("ya existe un lote para el movimiento de entrada")
	ErrInsufficientLotQuantity = errors.New("cantidad insuficiente en el lote")
	ErrInsufficientInventory   = errors.New("inventario insuficiente para la salida")
	ErrLockTimeout             = errors.New("tiempo de espera agotado al bloquear el SKU")
	ErrAlreadyReversed         = errors.New("el movimiento ya fue reversado")
	ErrNotAllocated            = errors.New("el movimiento no tiene asignaciones")
)

// DuplicateLotError se produce al reprocesar una entrada que ya abrió su lote.
// El procesador la trata como trabajo ya hecho.
type DuplicateLotError struct {
	SourceMovementID int64
}

func (e *DuplicateLotError) Error() string {
	return fmt.Sprintf("lote duplicado para movimiento %d", e.SourceMovementID)
}

func (e *DuplicateLotError) Is(target error) bool { return target == ErrDuplicateLot }

// InsufficientLotQuantityError indica un intento de consumir más de lo que queda en un lote.
// Es una violación de consistencia interna: nunca se recorta en silencio.
type InsufficientLotQuantityError struct {
	LotID     int64
	Requested int64
	Remaining int64
}

func (e *InsufficientLotQuantityError) Error() string {
	return fmt.Sprintf("lote %d: solicitado %d, disponible %d", e.LotID, e.Requested, e.Remaining)
}

func (e *InsufficientLotQuantityError) Is(target error) bool {
	return target == ErrInsufficientLotQuantity
}

// InsufficientInventoryError indica que los lotes abiertos del SKU no cubren la salida.
// Shortfall = Requested - Available.
type InsufficientInventoryError struct {
	SKU        string
	MovementID int64
	Requested  int64
	Available  int64
	Shortfall  int64
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("sku %s movimiento %d: solicitado %d, disponible %d, faltante %d",
		e.SKU, e.MovementID, e.Requested, e.Available, e.Shortfall)
}

func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}

// LockTimeoutError indica que no se obtuvo el bloqueo del SKU dentro de la espera máxima.
type LockTimeoutError struct {
	SKU  string
	Wait time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("sku %s: bloqueo no obtenido tras %s", e.SKU, e.Wait)
}

func (e *LockTimeoutError) Is(target error) bool { return target == ErrLockTimeout }
