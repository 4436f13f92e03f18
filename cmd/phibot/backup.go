package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"phibot/internal/audit"
	"phibot/internal/config"

	"github.com/spf13/cobra"
)

// Archive entry names. Restore places each by name, not by file extension.
const (
	entryConfig = "config.json"
	entryAudit  = "audit.db"
)

// archived is one entry written to or read from a backup.
type archived struct {
	Name string
	Path string // source on backup, destination on restore
	Size int64
}

func backupCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the config file and a snapshot of the audit database",
		Long: `Writes a .tar.gz (mode 0600) holding the config file and a consistent
snapshot of the audit database. The archive contains credentials and alert
metadata; store it accordingly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if outputPath == "" {
				dir := filepath.Join(config.DefaultConfigDir(), "backups")
				if err := os.MkdirAll(dir, 0o700); err != nil {
					return fmt.Errorf("cannot create backup directory: %w", err)
				}
				outputPath = filepath.Join(dir, "phibot-backup-"+time.Now().Format("20060102-150405")+".tar.gz")
			}

			entries, err := writeBackup(cmd.Context(), outputPath, cfgPath, resolveAuditPath(cfgPath))
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %s\n", outputPath)
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %d bytes  (from %s)\n", e.Name, e.Size, e.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "archive path (default: ~/.phibot/backups/phibot-backup-<timestamp>.tar.gz)")
	return cmd
}

func restoreCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <file.tar.gz>",
		Short: "Restore the config file and audit database from a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			dbPath := resolveAuditPath(cfgPath)

			if !force {
				for _, p := range []string{cfgPath, dbPath} {
					if _, err := os.Stat(p); err == nil {
						return fmt.Errorf("%s exists; stop the bot and rerun with --force to overwrite", p)
					}
				}
			}

			entries, err := restoreBackup(args[0], cfgPath, dbPath)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}
			if len(entries) == 0 {
				return errors.New("archive holds no PHIbot entries")
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "restored %s -> %s\n", e.Name, e.Path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite the existing config and database")
	return cmd
}

// resolveAuditPath reads audit.dbPath from the config file, falling back to the default.
func resolveAuditPath(cfgPath string) string {
	if cfg, err := config.Load(cfgPath); err == nil && cfg.Audit.DBPath != "" {
		return cfg.Audit.DBPath
	}
	return config.Defaults().Audit.DBPath
}

// writeBackup archives whichever of cfgPath and dbPath exist. The database
// is copied through audit.Store.Snapshot, so a running bot's WAL is included
// consistently.
func writeBackup(ctx context.Context, out, cfgPath, dbPath string) ([]archived, error) {
	var entries []archived
	if _, err := os.Stat(cfgPath); err == nil {
		entries = append(entries, archived{Name: entryConfig, Path: cfgPath})
	}
	if _, err := os.Stat(dbPath); err == nil {
		tmp, err := os.MkdirTemp("", "phibot-backup-")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(tmp)

		snap := filepath.Join(tmp, entryAudit)
		store, err := audit.NewStore(dbPath, logger)
		if err != nil {
			return nil, err
		}
		err = store.Snapshot(ctx, snap)
		store.Close()
		if err != nil {
			return nil, err
		}
		entries = append(entries, archived{Name: entryAudit, Path: snap})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("nothing to back up (config: %s, db: %s)", cfgPath, dbPath)
	}

	f, err := os.OpenFile(out, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	for i := range entries {
		n, err := addEntry(tw, entries[i].Name, entries[i].Path)
		if err != nil {
			f.Close()
			os.Remove(out)
			return nil, fmt.Errorf("add %s: %w", entries[i].Name, err)
		}
		entries[i].Size = n
		if entries[i].Name == entryAudit {
			entries[i].Path = dbPath
		}
	}

	for _, c := range []io.Closer{tw, gz, f} {
		if err := c.Close(); err != nil {
			os.Remove(out)
			return nil, err
		}
	}
	return entries, nil
}

func addEntry(tw *tar.Writer, name, src string) (int64, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return 0, err
	}
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o600,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return 0, err
	}
	n, err := tw.Write(data)
	return int64(n), err
}

// restoreBackup writes the known entries of archive to cfgPath and dbPath.
// Stale WAL and SHM files next to dbPath are removed so SQLite does not
// replay them over the restored database.
func restoreBackup(archive, cfgPath, dbPath string) ([]archived, error) {
	f, err := os.Open(archive)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("not a gzip archive: %w", err)
	}
	defer gz.Close()

	var restored []archived
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return restored, err
		}

		var dest string
		switch hdr.Name {
		case entryConfig:
			dest = cfgPath
		case entryAudit:
			dest = dbPath
			for _, suffix := range []string{"-wal", "-shm"} {
				if err := os.Remove(dbPath + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
					return restored, err
				}
			}
		default:
			logger.Warn("skipping unknown archive entry", "name", hdr.Name)
			continue
		}

		n, err := writeAtomic(dest, tr)
		if err != nil {
			return restored, fmt.Errorf("restore %s: %w", hdr.Name, err)
		}
		restored = append(restored, archived{Name: hdr.Name, Path: dest, Size: n})
	}
	return restored, nil
}

// writeAtomic copies r into a temp file beside dest and renames it over dest.
func writeAtomic(dest string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".restore-*")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp.Name(), 0o600)
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dest)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	return n, nil
}
