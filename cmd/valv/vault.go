package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hemliga/valvet/pkg/audit"
	"github.com/hemliga/valvet/pkg/container"
	"github.com/hemliga/valvet/pkg/crypto"
	"github.com/hemliga/valvet/pkg/vfs"
)

// initCmd creates a new empty vault.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new empty vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(vaultPath); err == nil {
			return fmt.Errorf("vault already exists: %s", vaultPath)
		}
		if err := os.MkdirAll(filepath.Dir(vaultPath), 0700); err != nil {
			return fmt.Errorf("failed to create vault directory: %w", err)
		}

		fmt.Printf("Creating vault at %s\n", vaultPath)
		password, err := readNewPassword()
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(password)

		c, err := container.Open(vaultPath)
		if err != nil {
			return err
		}
		defer c.Close()

		v := vfs.New(c)
		if err := v.Create(password, cfg.KDFParams()); err != nil {
			return err
		}

		log := newAuditLogger()
		log.SetKey(c.AuditKey())
		auditWarn(log.LogSuccess(audit.OpVaultCreate, ""))

		fmt.Println("Vault created.")
		return nil
	},
}

// auditCmd groups audit log operations.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
}

// auditVerifyCmd checks the audit log's HMAC chain.
var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit log chain",
	Long: `Recomputes the HMAC chain over every audit record. A failure means
records were edited, removed, or reordered since they were written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(c *container.Container, v *vfs.VFS, password []byte, log *audit.Logger) error {
			n, err := log.Verify()
			if err != nil {
				if errors.Is(err, audit.ErrChainBroken) {
					fmt.Printf("Audit log FAILED verification after %d records: %v\n", n, err)
					return errors.New("audit log is tampered")
				}
				return err
			}
			fmt.Printf("Audit log OK: %d records verified.\n", n)
			return nil
		})
	},
}
