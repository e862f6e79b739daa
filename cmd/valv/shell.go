package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/hemliga/valvet/pkg/audit"
	"github.com/hemliga/valvet/pkg/container"
	"github.com/hemliga/valvet/pkg/crypto"
	"github.com/hemliga/valvet/pkg/session"
	"github.com/hemliga/valvet/pkg/vfs"
)

// shellCmd runs an interactive session against one unlocked vault, so
// the key derivation cost is paid once instead of per command. An
// inactivity timer locks the vault again and discards unsaved changes.
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive vault session with auto-lock",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := container.Open(vaultPath)
		if err != nil {
			if errors.Is(err, container.ErrLocked) {
				return fmt.Errorf("vault %s is in use by another process", vaultPath)
			}
			return err
		}
		defer c.Close()

		s := &shell{
			container: c,
			vfs:       vfs.New(c),
			log:       newAuditLogger(),
		}
		if err := s.unlock(); err != nil {
			return err
		}

		s.session = session.NewManager(cfg.SessionTimeout(), s.autoLock)
		s.session.Start()
		defer s.session.Stop()

		fmt.Printf("valv shell on %s. Type 'help' for commands.\n", vaultPath)
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("valv> ")
			if !scanner.Scan() {
				break
			}
			s.session.Touch()

			fields := strings.Fields(scanner.Text())
			if len(fields) == 0 {
				continue
			}
			if fields[0] == "quit" || fields[0] == "exit" {
				if err := s.confirmQuit(scanner); err != nil {
					fmt.Println(err)
					continue
				}
				break
			}
			if err := s.dispatch(fields[0], fields[1:]); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		}
		s.lock(true)
		return scanner.Err()
	},
}

// shell holds the state of one interactive session. The mutex covers
// everything below it; the auto-lock callback runs on the timer
// goroutine.
type shell struct {
	container *container.Container
	vfs       *vfs.VFS
	log       *audit.Logger
	session   *session.Manager

	mu       sync.Mutex
	password []byte
	locked   bool
}

// unlock prompts for the password and loads the vault.
func (s *shell) unlock() error {
	password, err := readPassword("Enter master password: ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	relock := s.locked
	s.mu.Unlock()

	if err := s.vfs.Load(password); err != nil {
		crypto.SecureWipe(password)
		// The audit key only exists after the first successful unlock,
		// so failed attempts are recorded for relocks only.
		if relock {
			auditWarn(s.log.LogError(audit.OpVaultUnlockFailed, "", err))
		}
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			return errors.New("wrong password or corrupted vault")
		}
		return err
	}

	s.mu.Lock()
	s.password = password
	s.locked = false
	s.mu.Unlock()

	s.log.SetKey(s.container.AuditKey())
	auditWarn(s.log.LogSuccess(audit.OpVaultUnlock, ""))
	return nil
}

// lock wipes the key material and drops the decrypted state. Unsaved
// changes are discarded.
func (s *shell) lock(quiet bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		return
	}
	if s.vfs.IsDirty() && !quiet {
		fmt.Println("warning: unsaved changes discarded")
	}
	s.vfs.Discard()
	crypto.SecureWipe(s.password)
	s.password = nil
	s.locked = true
	auditWarn(s.log.LogSuccess(audit.OpVaultLock, ""))
}

// autoLock fires on the inactivity timer.
func (s *shell) autoLock() {
	s.lock(false)
	fmt.Println("\nVault locked after inactivity. Type 'unlock' to continue.")
	fmt.Print("valv> ")
}

func (s *shell) confirmQuit(scanner *bufio.Scanner) error {
	s.mu.Lock()
	dirty := !s.locked && s.vfs.IsDirty()
	s.mu.Unlock()

	if !dirty {
		return nil
	}
	fmt.Print("Unsaved changes. Save before quitting? [y/n] ")
	if !scanner.Scan() {
		return nil
	}
	if strings.TrimSpace(scanner.Text()) == "y" {
		return s.dispatch("save", nil)
	}
	return nil
}

func (s *shell) dispatch(command string, args []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		switch command {
		case "unlock":
			s.mu.Unlock()
			err := s.unlock()
			s.mu.Lock()
			if err == nil {
				s.session.Start()
			}
			return err
		case "help":
			printShellHelp()
			return nil
		default:
			return errors.New("vault is locked, type 'unlock' first")
		}
	}

	switch command {
	case "help":
		printShellHelp()

	case "ls":
		for _, path := range s.vfs.ListFiles() {
			entry, err := s.vfs.FileInfo(path)
			if err != nil {
				return err
			}
			fmt.Printf("%-10s %s\n", formatSize(entry.Size), path)
		}

	case "tree":
		fmt.Println("/")
		printTree(s.vfs.DirectoryTree(), "")

	case "info":
		fmt.Printf("Files: %d, total %s, unsaved changes: %v\n",
			s.vfs.FileCount(), formatSize(s.vfs.TotalSize()), s.vfs.IsDirty())

	case "add":
		if len(args) < 1 || len(args) > 2 {
			return errors.New("usage: add SOURCE [VAULT_PATH]")
		}
		dest := "/" + filepath.Base(args[0])
		if len(args) == 2 {
			dest = args[1]
		}
		if err := s.vfs.AddFile(args[0], dest); err != nil {
			auditWarn(s.log.LogError(audit.OpFileAdd, dest, err))
			return err
		}
		auditWarn(s.log.LogSuccess(audit.OpFileAdd, dest))
		fmt.Printf("Added %s (unsaved)\n", dest)

	case "rm":
		if len(args) != 1 {
			return errors.New("usage: rm VAULT_PATH")
		}
		if err := s.vfs.RemoveFile(args[0]); err != nil {
			auditWarn(s.log.LogError(audit.OpFileRemove, args[0], err))
			return err
		}
		auditWarn(s.log.LogSuccess(audit.OpFileRemove, args[0]))
		fmt.Printf("Removed %s (unsaved)\n", args[0])

	case "extract":
		if len(args) < 1 || len(args) > 2 {
			return errors.New("usage: extract VAULT_PATH [DIR]")
		}
		dir := "."
		if len(args) == 2 {
			dir = args[1]
		}
		dest, err := s.vfs.ExtractTo(args[0], dir)
		if err != nil {
			if errors.Is(err, vfs.ErrUnsafePath) {
				auditWarn(s.log.LogDenied(audit.OpFileExtract, args[0], "destination escapes extraction directory"))
			} else {
				auditWarn(s.log.LogError(audit.OpFileExtract, args[0], err))
			}
			return err
		}
		auditWarn(s.log.LogSuccess(audit.OpFileExtract, args[0]))
		fmt.Printf("Extracted to %s\n", dest)

	case "save":
		if err := s.vfs.Save(s.password); err != nil {
			auditWarn(s.log.LogError(audit.OpVaultSave, "", err))
			return err
		}
		auditWarn(s.log.LogSuccess(audit.OpVaultSave, ""))
		fmt.Println("Saved.")

	case "lock":
		s.mu.Unlock()
		s.lock(false)
		s.mu.Lock()
		s.session.Stop()
		fmt.Println("Vault locked.")

	case "timeout":
		fmt.Printf("Auto-lock in %s\n", s.session.Remaining().Round(time.Second))

	case "unlock":
		fmt.Println("Vault is already unlocked.")

	default:
		return fmt.Errorf("unknown command %q, type 'help'", command)
	}
	return nil
}

func printShellHelp() {
	fmt.Println(`Commands:
  ls                       List files
  tree                     Show contents as a tree
  info                     Show vault statistics
  add SOURCE [VAULT_PATH]  Add a file (in memory until save)
  rm VAULT_PATH            Remove a file (in memory until save)
  extract VAULT_PATH [DIR] Extract a file
  save                     Write changes to disk
  lock                     Lock the vault now
  unlock                   Unlock after a lock
  timeout                  Show time until auto-lock
  quit                     Exit the shell`)
}
