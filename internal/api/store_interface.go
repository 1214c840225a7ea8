package api

import "github.com/soaringjerry/Sigmo/internal/services"

// Store is everything the HTTP layer needs from persistence. Implementations
// live in internal/db (sqlite, postgres) and in this package (memory).
type Store interface {
	services.ProtocolStore
	services.AdminStore
	services.QuestionnaireStore
	Close() error
}
