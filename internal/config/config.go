package config

// Config holds app configuration
type Config struct {
	// InputFile is the archive to read, or the directory to pack
	InputFile string `mapstructure:"input"`
	// OutputFile is the directory to unpack into, or the archive to create
	OutputFile string `mapstructure:"output"`

	// ArchiveVersion selects the format written by pack (1 or 3)
	// If zero, it is guessed from the output file extension
	ArchiveVersion int `mapstructure:"archive_version"`

	// Key is the rgss3a archive key used by pack, in any base accepted by
	// strconv.ParseUint (e.g. "0xDEADCAFE")
	Key string `mapstructure:"key"`

	// Parallel is the number of rgss3a extraction workers
	Parallel int `mapstructure:"parallel"`

	// Match restricts unpack and list to entries matching a glob pattern
	Match string `mapstructure:"match"`

	JSON bool `mapstructure:"json"`

	Overwrite    bool   `mapstructure:"overwrite"`
	DryRun       bool   `mapstructure:"dry_run"`
	LogLevel     string `mapstructure:"log_level"`
	LogOutputDir string `mapstructure:"log_output_dir"`
}
