package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hemliga/valvet/internal/config"
	"github.com/hemliga/valvet/pkg/audit"
	"github.com/hemliga/valvet/pkg/container"
	"github.com/hemliga/valvet/pkg/crypto"
	"github.com/hemliga/valvet/pkg/security"
	"github.com/hemliga/valvet/pkg/vfs"
)

var (
	vaultPath string
	cfg       *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "valv",
	Short: "valv is an encrypted single-file vault for personal files",
	Long: `Stores files inside a single container encrypted with Argon2id and
AES-256-GCM. Files keep their virtual paths and can be listed, extracted,
and removed without ever touching the disk in plaintext.`,
	SilenceUsage: true,
	// PersistentPreRunE resolves the vault path: flag, then config file,
	// then the default location under the home directory.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded

		if vaultPath == "" {
			vaultPath = cfg.VaultPath
		}
		if vaultPath == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get user home directory: %w", err)
			}
			vaultPath = filepath.Join(home, ".valvet", "vault.valvet")
		}
		return nil
	},
}

// Flags for extract command
var extractDir string

// Flags for ls command
var lsLong bool

func init() {
	rootCmd.PersistentFlags().StringVarP(&vaultPath, "vault", "f", "", "Path to the vault file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(shellCmd)

	auditCmd.AddCommand(auditVerifyCmd)

	extractCmd.Flags().StringVarP(&extractDir, "dir", "d", ".", "Directory to extract into")
	lsCmd.Flags().BoolVarP(&lsLong, "long", "l", false, "Show sizes and MIME types")
}

// readPassword prompts without echo. The caller owns the returned bytes
// and must wipe them.
func readPassword(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}

// readNewPassword prompts twice for a fresh master password and enforces
// the strength rules.
func readNewPassword() ([]byte, error) {
	password1, err := readPassword("Enter master password: ")
	if err != nil {
		return nil, err
	}
	password2, err := readPassword("Confirm master password: ")
	if err != nil {
		crypto.SecureWipe(password1)
		return nil, err
	}
	defer crypto.SecureWipe(password2)

	if string(password1) != string(password2) {
		crypto.SecureWipe(password1)
		return nil, errors.New("passwords do not match")
	}

	valid, issues := security.ValidatePassword(string(password1))
	if !valid {
		crypto.SecureWipe(password1)
		fmt.Println("Password is too weak:")
		for _, issue := range issues {
			fmt.Printf("  - %s\n", issue)
		}
		return nil, errors.New("password validation failed")
	}

	score := security.StrengthScore(string(password1))
	fmt.Printf("Password strength: %s (%d/100)\n", security.StrengthFromScore(score), score)
	return password1, nil
}

// newAuditLogger returns the logger for the current vault. The key is
// installed after a successful unlock.
func newAuditLogger() *audit.Logger {
	dir := cfg.AuditDir
	if dir == "" {
		dir = vaultPath + ".audit"
	}
	return audit.NewLogger(dir)
}

// auditWarn records an event and only warns when the log write fails;
// audit trouble never blocks the vault operation itself.
func auditWarn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: audit log write failed: %v\n", err)
	}
}

// withVault opens and unlocks the vault, runs fn, and closes it again.
// fn receives the password for a later Save and must not retain it.
func withVault(fn func(c *container.Container, v *vfs.VFS, password []byte, log *audit.Logger) error) error {
	c, err := container.Open(vaultPath)
	if err != nil {
		if errors.Is(err, container.ErrLocked) {
			return fmt.Errorf("vault %s is in use by another process", vaultPath)
		}
		return err
	}
	defer c.Close()

	password, err := readPassword("Enter master password: ")
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(password)

	v := vfs.New(c)
	if err := v.Load(password); err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			return errors.New("wrong password or corrupted vault")
		}
		return err
	}
	defer v.Discard()

	log := newAuditLogger()
	log.SetKey(c.AuditKey())
	auditWarn(log.LogSuccess(audit.OpVaultUnlock, ""))

	return fn(c, v, password, log)
}

// formatSize renders a byte count for humans.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
