package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hemliga/valvet/pkg/audit"
	"github.com/hemliga/valvet/pkg/container"
	"github.com/hemliga/valvet/pkg/vfs"
)

// addCmd stores a file in the vault.
var addCmd = &cobra.Command{
	Use:   "add SOURCE [VAULT_PATH]",
	Short: "Add a file to the vault",
	Long: `Encrypts SOURCE into the vault under VAULT_PATH. When VAULT_PATH is
omitted the file lands at the root under its own name.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := args[0]
		dest := "/" + filepath.Base(source)
		if len(args) == 2 {
			dest = args[1]
		}

		return withVault(func(c *container.Container, v *vfs.VFS, password []byte, log *audit.Logger) error {
			if err := v.AddFile(source, dest); err != nil {
				auditWarn(log.LogError(audit.OpFileAdd, dest, err))
				return err
			}
			if err := v.Save(password); err != nil {
				auditWarn(log.LogError(audit.OpVaultSave, "", err))
				return err
			}
			auditWarn(log.LogSuccess(audit.OpFileAdd, dest))
			auditWarn(log.LogSuccess(audit.OpVaultSave, ""))

			size, _ := v.FileSize(dest)
			fmt.Printf("Added %s (%s)\n", dest, formatSize(size))
			return nil
		})
	},
}

// rmCmd removes a file from the vault.
var rmCmd = &cobra.Command{
	Use:   "rm VAULT_PATH",
	Short: "Remove a file from the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(c *container.Container, v *vfs.VFS, password []byte, log *audit.Logger) error {
			if err := v.RemoveFile(args[0]); err != nil {
				auditWarn(log.LogError(audit.OpFileRemove, args[0], err))
				return err
			}
			if err := v.Save(password); err != nil {
				auditWarn(log.LogError(audit.OpVaultSave, "", err))
				return err
			}
			auditWarn(log.LogSuccess(audit.OpFileRemove, args[0]))
			auditWarn(log.LogSuccess(audit.OpVaultSave, ""))

			fmt.Printf("Removed %s\n", args[0])
			return nil
		})
	},
}

// extractCmd writes a vault file back to disk.
var extractCmd = &cobra.Command{
	Use:   "extract VAULT_PATH",
	Short: "Extract a file from the vault",
	Long: `Decrypts the file at VAULT_PATH into the extraction directory,
recreating its virtual directory structure. Destinations outside the
extraction directory are refused.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(c *container.Container, v *vfs.VFS, password []byte, log *audit.Logger) error {
			dest, err := v.ExtractTo(args[0], extractDir)
			if err != nil {
				if errors.Is(err, vfs.ErrUnsafePath) {
					auditWarn(log.LogDenied(audit.OpFileExtract, args[0], "destination escapes extraction directory"))
				} else {
					auditWarn(log.LogError(audit.OpFileExtract, args[0], err))
				}
				return err
			}
			auditWarn(log.LogSuccess(audit.OpFileExtract, args[0]))

			fmt.Printf("Extracted to %s\n", dest)
			return nil
		})
	},
}

// lsCmd lists vault contents.
var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List files in the vault",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(c *container.Container, v *vfs.VFS, password []byte, log *audit.Logger) error {
			paths := v.ListFiles()
			if len(paths) == 0 {
				fmt.Println("Vault is empty.")
				return nil
			}
			for _, path := range paths {
				if !lsLong {
					fmt.Println(path)
					continue
				}
				entry, err := v.FileInfo(path)
				if err != nil {
					return err
				}
				fmt.Printf("%-10s %-24s %s\n", formatSize(entry.Size), entry.MimeType, path)
			}
			return nil
		})
	},
}

// treeCmd renders the vault contents as a directory tree.
var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Show vault contents as a tree",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(c *container.Container, v *vfs.VFS, password []byte, log *audit.Logger) error {
			root := v.DirectoryTree()
			fmt.Println("/")
			printTree(root, "")
			return nil
		})
	},
}

// infoCmd prints vault statistics.
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show vault statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(c *container.Container, v *vfs.VFS, password []byte, log *audit.Logger) error {
			fmt.Printf("Vault:      %s\n", vaultPath)
			fmt.Printf("Created:    %s\n", v.CreatedAt().Local().Format("2006-01-02 15:04:05"))
			fmt.Printf("Files:      %d\n", v.FileCount())
			fmt.Printf("Total size: %s\n", formatSize(v.TotalSize()))
			return nil
		})
	},
}

// printTree renders node's children with box-drawing connectors.
func printTree(node *vfs.TreeNode, prefix string) {
	children := node.SortedChildren()
	for i, child := range children {
		connector := "├── "
		childPrefix := prefix + "│   "
		if i == len(children)-1 {
			connector = "└── "
			childPrefix = prefix + "    "
		}

		if child.IsDir() {
			fmt.Printf("%s%s%s/\n", prefix, connector, child.Name)
			printTree(child, childPrefix)
			continue
		}
		fmt.Printf("%s%s%s (%s)\n", prefix, connector, child.Name, formatSize(child.Entry.Size))
		if len(child.Children) > 0 {
			printTree(child, childPrefix)
		}
	}
}
