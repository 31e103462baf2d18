package domain

import "errors"

// Errores de dominio (sin dependencias externas).
// Los handlers HTTP los mapean a códigos de estado; la capa de infraestructura
// los envuelve con fmt.Errorf("%w") para conservar el contexto.
var (
	ErrNotFound        = errors.New("recurso no encontrado")
	ErrInvalidInput    = errors.New("entrada inválida")
	ErrDuplicate       = errors.New("recurso duplicado")
	ErrUnauthorized    = errors.New("no autorizado")
	ErrConflict        = errors.New("conflicto con el estado actual")
	ErrAlreadyVerified = errors.New("evidencia ya verificada")
	ErrAlreadyRejected = errors.New("evidencia ya rechazada")
	ErrLedgerInvariant = errors.New("invariante del libro mayor violado")
	ErrUpstreamTimeout = errors.New("proveedor externo no disponible")
)
