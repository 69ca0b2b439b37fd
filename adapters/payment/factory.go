package payment

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tinytb/web3.storage/adapters/memory"
	"github.com/tinytb/web3.storage/adapters/sqlite"
	"github.com/tinytb/web3.storage/domain/billing"
	"github.com/tinytb/web3.storage/ports"
)

// Backend names accepted by NewCollaborators.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendStripe = "stripe"
)

// Options selects and configures a billing backend.
type Options struct {
	Backend string
	Stripe  StripeConfig
	Catalog billing.PriceCatalog
	DB      *sqlite.DB // required for the sqlite backend
	IDGen   ports.IDGenerator
	Clock   ports.Clock
	Logger  zerolog.Logger
}

// NewCollaborators creates the billing collaborators for the configured backend.
func NewCollaborators(opts Options) (ports.Collaborators, error) {
	switch opts.Backend {
	case BackendStripe:
		s, err := NewStripe(opts.Stripe, opts.Catalog, opts.Logger)
		if err != nil {
			return ports.Collaborators{}, err
		}
		return s.Collaborators(), nil

	case BackendSQLite:
		if opts.DB == nil {
			return ports.Collaborators{}, errors.New("sqlite backend requires a database")
		}
		return sqlite.Collaborators(opts.DB, opts.IDGen, opts.Clock), nil

	case BackendMemory, "":
		// Development only; state is lost on restart.
		return memory.NewBackend(opts.IDGen, opts.Clock).Collaborators(), nil

	default:
		return ports.Collaborators{}, fmt.Errorf("unknown billing backend: %s", opts.Backend)
	}
}
