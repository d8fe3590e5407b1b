// Package cli implements the commands of the famsync device client.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/template"

	httpClient "github.com/iudanet/famsync/internal/client/api"
	"github.com/iudanet/famsync/internal/client/auth"
	"github.com/iudanet/famsync/internal/client/data"
	"github.com/iudanet/famsync/internal/client/iocli"
	"github.com/iudanet/famsync/internal/client/storage"
	"github.com/iudanet/famsync/internal/client/sync"
)

// PassphraseEnv overrides every other passphrase source
const PassphraseEnv = "FAMSYNC_PASSPHRASE"

// Syncer is the part of the sync coordinator the commands drive.
type Syncer interface {
	SyncOnce(ctx context.Context) (*sync.CycleStats, error)
	Run(ctx context.Context) error
	Trigger(reason sync.Reason)
	Subscribe() (<-chan sync.Event, func())
}

// Deps are the services a Cli is built from.
type Deps struct {
	IO          iocli.IO
	Data        data.Service
	Auth        auth.Service
	Sync        Syncer
	DeadLetters storage.DeadLetterStorage
	Credentials storage.CredentialsStorage
	API         httpClient.ClientAPI
	Logger      *slog.Logger
}

// Cli runs client commands against the local store.
type Cli struct {
	io          iocli.IO
	data        data.Service
	auth        auth.Service
	sync        Syncer
	deadLetters storage.DeadLetterStorage
	credentials storage.CredentialsStorage
	api         httpClient.ClientAPI
	logger      *slog.Logger
}

func New(d Deps) *Cli {
	return &Cli{
		io:          d.IO,
		data:        d.Data,
		auth:        d.Auth,
		sync:        d.Sync,
		deadLetters: d.DeadLetters,
		credentials: d.Credentials,
		api:         d.API,
		logger:      d.Logger,
	}
}

// Passphrase lists where the local store passphrase may come from.
type Passphrase struct {
	FromFile string
}

// ReadPassphrase returns the passphrase of a sealed local store.
// Priority: FAMSYNC_PASSPHRASE, then the file, then an interactive prompt.
func (c *Cli) ReadPassphrase(p Passphrase) (string, error) {
	if env := os.Getenv(PassphraseEnv); env != "" {
		return env, nil
	}

	if p.FromFile != "" {
		content, err := os.ReadFile(p.FromFile)
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase file: %w", err)
		}
		// Убираем trailing newline/whitespace
		passphrase := strings.TrimSpace(string(content))
		if passphrase == "" {
			return "", fmt.Errorf("passphrase file is empty")
		}
		return passphrase, nil
	}

	passphrase, err := c.io.ReadPassword("Passphrase: ")
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if passphrase == "" {
		return "", fmt.Errorf("passphrase cannot be empty")
	}
	return passphrase, nil
}

// render executes a template from template.go into the terminal
func (c *Cli) render(tmpl *template.Template, v any) error {
	if err := tmpl.Execute(c.io, v); err != nil {
		return fmt.Errorf("failed to render %s: %w", tmpl.Name(), err)
	}
	return nil
}
