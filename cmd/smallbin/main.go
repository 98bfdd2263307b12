package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	smallbin "github.com/GarvinSchaub/SmallBin"
	"github.com/GarvinSchaub/SmallBin/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	flagConfig   string
	flagDatabase string
	flagPassword string
	flagVerbose  bool
)

// loadConfig reads the config file named by --config, or the per-user
// default. A missing default file is not an error: built-in defaults
// apply.
func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := config.ReadFromFile(path)
	if err != nil {
		if flagConfig == "" && errors.Is(err, os.ErrNotExist) {
			dbPath, derr := config.DefaultDatabasePath()
			if derr != nil {
				return nil, derr
			}
			return config.NewConfig(dbPath), nil
		}
		return nil, err
	}
	return cfg, nil
}

// databasePath resolves the database location: the --db flag wins,
// then the config file, then the per-user default.
func databasePath(cfg *config.Config) (string, error) {
	if flagDatabase != "" {
		return flagDatabase, nil
	}
	if cfg.DatabasePath != "" {
		return cfg.DatabasePath, nil
	}
	return config.DefaultDatabasePath()
}

func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprintf(os.Stderr, "%s: ", label)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}

	// Not a terminal: take one line from stdin so scripts can pipe
	// the password in.
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// resolvePassword finds the database password: the --password flag
// wins, then SMALLBIN_PASSWORD, then an interactive prompt. With
// confirm set the prompt is asked twice and both answers must match.
func resolvePassword(confirm bool) (string, error) {
	if flagPassword != "" {
		return flagPassword, nil
	}
	if env := os.Getenv("SMALLBIN_PASSWORD"); env != "" {
		return env, nil
	}

	password, err := promptPassword("Password")
	if err != nil {
		return "", err
	}
	if confirm {
		again, err := promptPassword("Confirm password")
		if err != nil {
			return "", err
		}
		if password != again {
			return "", errors.New("passwords do not match")
		}
	}
	return password, nil
}

func buildOptions(cfg *config.Config) (*smallbin.Options, error) {
	opts := &smallbin.Options{
		DisableCompression: !cfg.Compression,
		AutoSave:           cfg.AutoSave,
		DisableCache:       cfg.Cache.Disabled,
		CacheMaxBytes:      cfg.Cache.MaxBytes,
	}

	if cfg.Checksum != "" {
		algo, err := smallbin.ParseChecksumAlgorithm(cfg.Checksum)
		if err != nil {
			return nil, err
		}
		opts.Checksum = algo
	}

	ttl, err := cfg.CacheTTL()
	if err != nil {
		return nil, err
	}
	opts.CacheTTL = ttl

	if flagVerbose || cfg.Log.Verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("building logger: %w", err)
		}
		opts.Logger = logger
	}
	return opts, nil
}

// openExisting opens the configured database and refuses to invent a
// new one: creation is what "smallbin init" is for.
func openExisting() (*smallbin.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path, err := databasePath(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no database at %s (run \"smallbin init\" first)", path)
	}

	password, err := resolvePassword(false)
	if err != nil {
		return nil, err
	}
	opts, err := buildOptions(cfg)
	if err != nil {
		return nil, err
	}
	return smallbin.Open(path, password, opts)
}

func formatBytes(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}

func printEntryLine(e *smallbin.FileEntry) {
	marker := " "
	switch {
	case e.IsDuplicate():
		marker = "D"
	case e.IsVersion():
		marker = "V"
	}
	tags := ""
	if len(e.Tags) > 0 {
		tags = "  [" + strings.Join(e.Tags, ",") + "]"
	}
	fmt.Printf("%s %-36s  %9s  %s  %s%s\n",
		marker, e.ID, formatBytes(e.FileSize),
		e.CreatedAt.Format("2006-01-02 15:04:05"), e.FileName, tags)
}

var rootCmd = &cobra.Command{
	Use:           "smallbin",
	Short:         "Single-file encrypted blob store",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path, err := databasePath(cfg)
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("database already exists at %s", path)
		}

		password, err := resolvePassword(true)
		if err != nil {
			return err
		}
		opts, err := buildOptions(cfg)
		if err != nil {
			return err
		}

		db, err := smallbin.Open(path, password, opts)
		if err != nil {
			return err
		}
		if err := db.Save(); err != nil {
			db.Close()
			return err
		}
		db.Close()

		fmt.Printf("Database initialized at %s\n", path)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add PATH...",
	Short: "Store files in the database",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tags, _ := cmd.Flags().GetStringSlice("tags")
		contentType, _ := cmd.Flags().GetString("content-type")

		db, err := openExisting()
		if err != nil {
			return err
		}
		defer db.Close()

		for _, path := range args {
			id, err := db.SaveFile(path, tags, contentType)
			if err != nil {
				return fmt.Errorf("storing %s: %w", path, err)
			}
			entry, err := db.GetEntry(id)
			if err != nil {
				return err
			}
			dup := ""
			if entry.IsDuplicate() {
				dup = "  (duplicate of " + entry.OriginalFileID + ")"
			}
			fmt.Printf("%s  %s%s\n", id, entry.FileName, dup)
		}
		return db.Save()
	},
}

var getCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Retrieve a file's content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		db, err := openExisting()
		if err != nil {
			return err
		}
		defer db.Close()

		data, err := db.GetFile(args[0])
		if err != nil {
			return err
		}
		if output == "" || output == "-" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(output, data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", output, err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %s (%s)\n", output, formatBytes(int64(len(data))))
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info ID",
	Short: "Show an entry's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openExisting()
		if err != nil {
			return err
		}
		defer db.Close()

		e, err := db.GetEntry(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("ID:           %s\n", e.ID)
		fmt.Printf("Name:         %s\n", e.FileName)
		fmt.Printf("Size:         %s\n", formatBytes(e.FileSize))
		fmt.Printf("Content type: %s\n", e.ContentType)
		fmt.Printf("Created:      %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Updated:      %s\n", e.UpdatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Checksum:     %s (%s)\n", e.Checksum, e.ChecksumAlgorithm)
		fmt.Printf("Compressed:   %v\n", e.IsCompressed)
		if len(e.Tags) > 0 {
			fmt.Printf("Tags:         %s\n", strings.Join(e.Tags, ", "))
		}
		if e.IsDuplicate() {
			fmt.Printf("Duplicate of: %s\n", e.OriginalFileID)
		}
		if len(e.DuplicateFileIDs) > 0 {
			fmt.Printf("Duplicates:   %s\n", strings.Join(e.DuplicateFileIDs, ", "))
		}
		if e.IsVersion() {
			fmt.Printf("Version:      %d of %s\n", e.VersionNumber, e.BaseFileID)
			if e.VersionComment != "" {
				fmt.Printf("Comment:      %s\n", e.VersionComment)
			}
		}
		if len(e.VersionIDs) > 0 {
			fmt.Printf("Versions:     %d\n", len(e.VersionIDs))
		}
		for k, v := range e.CustomMetadata {
			fmt.Printf("Meta:         %s=%s\n", k, v)
		}
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openExisting()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.ListFiles()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No entries.")
			return nil
		}
		for _, e := range entries {
			printEntryLine(e)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find entries by name, tags, type, metadata or age",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		tags, _ := cmd.Flags().GetStringSlice("tag")
		contentType, _ := cmd.Flags().GetString("content-type")
		metaPairs, _ := cmd.Flags().GetStringArray("meta")
		after, _ := cmd.Flags().GetString("after")
		before, _ := cmd.Flags().GetString("before")

		criteria := smallbin.SearchCriteria{
			FileName:    name,
			Tags:        tags,
			ContentType: contentType,
		}
		if len(metaPairs) > 0 {
			criteria.Metadata = make(map[string]string, len(metaPairs))
			for _, pair := range metaPairs {
				k, v, ok := strings.Cut(pair, "=")
				if !ok {
					return fmt.Errorf("invalid --meta %q, want KEY=VALUE", pair)
				}
				criteria.Metadata[k] = v
			}
		}
		if after != "" {
			ts, err := time.Parse("2006-01-02", after)
			if err != nil {
				return fmt.Errorf("invalid --after %q: %w", after, err)
			}
			criteria.CreatedAfter = ts
		}
		if before != "" {
			ts, err := time.Parse("2006-01-02", before)
			if err != nil {
				return fmt.Errorf("invalid --before %q: %w", before, err)
			}
			criteria.CreatedBefore = ts
		}

		db, err := openExisting()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.Search(criteria)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for _, e := range entries {
			printEntryLine(e)
		}
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm ID...",
	Short: "Delete entries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openExisting()
		if err != nil {
			return err
		}
		defer db.Close()

		for _, id := range args {
			if err := db.DeleteFile(id); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", id)
		}
		return db.Save()
	},
}

var tagCmd = &cobra.Command{
	Use:   "tag ID TAG...",
	Short: "Add or remove tags on an entry",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		remove, _ := cmd.Flags().GetBool("remove")

		db, err := openExisting()
		if err != nil {
			return err
		}
		defer db.Close()

		err = db.UpdateMetadata(args[0], func(e *smallbin.FileEntry) error {
			for _, tag := range args[1:] {
				if remove {
					e.RemoveTag(tag)
				} else {
					e.AddTag(tag)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		return db.Save()
	},
}

var metaCmd = &cobra.Command{
	Use:   "meta ID KEY=VALUE...",
	Short: "Set or delete custom metadata on an entry",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deletes, _ := cmd.Flags().GetStringSlice("delete")
		if len(args) < 2 && len(deletes) == 0 {
			return errors.New("nothing to change: pass KEY=VALUE pairs or --delete KEY")
		}

		db, err := openExisting()
		if err != nil {
			return err
		}
		defer db.Close()

		err = db.UpdateMetadata(args[0], func(e *smallbin.FileEntry) error {
			for _, pair := range args[1:] {
				k, v, ok := strings.Cut(pair, "=")
				if !ok {
					return fmt.Errorf("invalid pair %q, want KEY=VALUE", pair)
				}
				e.CustomMetadata[k] = v
			}
			for _, k := range deletes {
				delete(e.CustomMetadata, k)
			}
			return nil
		})
		if err != nil {
			return err
		}
		return db.Save()
	},
}

var reviseCmd = &cobra.Command{
	Use:   "revise ID FILE",
	Short: "Store a new version of an entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		comment, _ := cmd.Flags().GetString("comment")

		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[1], err)
		}

		db, err := openExisting()
		if err != nil {
			return err
		}
		defer db.Close()

		id, err := db.CreateVersion(args[0], data, comment)
		if err != nil {
			return err
		}
		entry, err := db.GetEntry(id)
		if err != nil {
			return err
		}
		fmt.Printf("%s  version %d of %s\n", id, entry.VersionNumber, args[0])
		return db.Save()
	},
}

var versionsCmd = &cobra.Command{
	Use:   "versions ID",
	Short: "Show an entry's version history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openExisting()
		if err != nil {
			return err
		}
		defer db.Close()

		history, err := db.GetVersionHistory(args[0])
		if err != nil {
			return err
		}
		for _, e := range history {
			comment := e.VersionComment
			if comment == "" && !e.IsVersion() {
				comment = e.FileName
			}
			fmt.Printf("v%-3d  %-36s  %s  %s\n",
				e.VersionNumber, e.ID,
				e.CreatedAt.Format("2006-01-02 15:04:05"), comment)
		}
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every entry against its stored checksum",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openExisting()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.ListFiles()
		if err != nil {
			return err
		}
		failures, err := db.VerifyAll()
		if err != nil {
			return err
		}
		if len(failures) == 0 {
			fmt.Printf("All %d entries verified.\n", len(entries))
			return nil
		}
		for _, f := range failures {
			fmt.Printf("FAIL  %s  %s: %v\n", f.ID, f.FileName, f.Err)
		}
		return fmt.Errorf("%d of %d entries failed verification", len(failures), len(entries))
	},
}

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change the database password",
	RunE: func(cmd *cobra.Command, args []string) error {
		newPassword, _ := cmd.Flags().GetString("new-password")

		db, err := openExisting()
		if err != nil {
			return err
		}
		defer db.Close()

		if newPassword == "" {
			newPassword, err = promptPassword("New password")
			if err != nil {
				return err
			}
			again, err := promptPassword("Confirm new password")
			if err != nil {
				return err
			}
			if newPassword != again {
				return errors.New("passwords do not match")
			}
		}

		if err := db.ChangePassword(newPassword); err != nil {
			return err
		}
		fmt.Println("Password changed.")
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Recover the database from its rolling backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path, err := databasePath(cfg)
		if err != nil {
			return err
		}
		password, err := resolvePassword(false)
		if err != nil {
			return err
		}
		opts, err := buildOptions(cfg)
		if err != nil {
			return err
		}

		if err := smallbin.RestoreFromBackup(path, password, opts); err != nil {
			return err
		}
		fmt.Printf("Restored %s from backup\n", path)
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := flagConfig
		if path == "" {
			p, err := config.DefaultPath()
			if err != nil {
				return err
			}
			path = p
		}
		dbPath, err := config.DefaultDatabasePath()
		if err != nil {
			return err
		}
		if flagDatabase != "" {
			dbPath = flagDatabase
		}

		if err := config.Init(path, config.NewConfig(dbPath)); err != nil {
			return err
		}
		fmt.Printf("Configuration initialized at %s\n", path)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path, err := databasePath(cfg)
		if err != nil {
			return err
		}

		fmt.Printf("Database:     %s\n", path)
		fmt.Printf("Checksum:     %s\n", cfg.Checksum)
		fmt.Printf("Compression:  %v\n", cfg.Compression)
		fmt.Printf("Auto save:    %v\n", cfg.AutoSave)
		fmt.Printf("Cache:        disabled=%v max=%s ttl=%s\n",
			cfg.Cache.Disabled, formatBytes(cfg.Cache.MaxBytes), cfg.Cache.TTL)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to the config file")
	rootCmd.PersistentFlags().StringVarP(&flagDatabase, "db", "d", "", "Path to the database file")
	rootCmd.PersistentFlags().StringVarP(&flagPassword, "password", "p", "", "Database password (prefer SMALLBIN_PASSWORD or the prompt)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")

	addCmd.Flags().StringSliceP("tags", "t", nil, "Tags to attach, comma separated")
	addCmd.Flags().String("content-type", "", "MIME type of the content")

	getCmd.Flags().StringP("output", "o", "", "Write content to this file instead of stdout")

	searchCmd.Flags().String("name", "", "Substring of the file name")
	searchCmd.Flags().StringSlice("tag", nil, "Match entries carrying any of these tags")
	searchCmd.Flags().String("content-type", "", "Exact MIME type")
	searchCmd.Flags().StringArray("meta", nil, "KEY=VALUE metadata pair, repeatable")
	searchCmd.Flags().String("after", "", "Created after this date (YYYY-MM-DD)")
	searchCmd.Flags().String("before", "", "Created before this date (YYYY-MM-DD)")

	tagCmd.Flags().BoolP("remove", "r", false, "Remove the tags instead of adding them")

	metaCmd.Flags().StringSlice("delete", nil, "Metadata keys to delete")

	reviseCmd.Flags().StringP("comment", "m", "", "Comment describing the revision")

	passwdCmd.Flags().String("new-password", "", "New password (prompted when omitted)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(metaCmd)
	rootCmd.AddCommand(reviseCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(passwdCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(configCmd)
}
