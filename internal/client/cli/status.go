package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/famsync/internal/client/auth"
)

// Enroll binds the device to a family. An empty token is read from the terminal.
func (c *Cli) Enroll(ctx context.Context, serverURL, token string) error {
	if token == "" {
		var err error
		if token, err = c.io.ReadPassword("Device token: "); err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
	}

	creds, err := c.auth.Enroll(ctx, serverURL, token)
	if err != nil {
		return fmt.Errorf("enrollment failed: %w", err)
	}

	c.io.Printf("✓ Device enrolled in family %s", creds.FamilyID)
	if creds.Member != "" {
		c.io.Printf(" as %s", creds.Member)
	}
	c.io.Println()
	c.io.Println("Run 'famsync sync' or start 'famsync daemon' to synchronize.")
	return nil
}

func (c *Cli) Logout(ctx context.Context) error {
	if err := c.auth.Logout(ctx); err != nil {
		if errors.Is(err, auth.ErrNotEnrolled) {
			c.io.Println("Device is not enrolled.")
			return nil
		}
		return err
	}
	c.io.Println("✓ Logged out. Pending changes are kept and will sync after the next enroll.")
	return nil
}

func (c *Cli) Status(ctx context.Context) error {
	st, err := c.auth.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	return c.render(statusTemplate, st)
}
