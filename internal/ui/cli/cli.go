package cli

import "flag"

const versionString = "0.4.0"
const defaultConfigPath = "./pyanalyzer.toml"

type cliOptions struct {
	configPath    string
	once          bool
	jsonOutput    bool
	python        string
	dump          string
	members       string
	typesAt       string
	resolve       string
	resolveFrom   string
	history       bool
	since         string
	historyWindow string
	historyTSV    string
	historyJSON   string
	verbose       bool
	version       bool
	args          []string
}

func parseOptions(args []string) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("pyanalyzer", flag.ContinueOnError)

	fs.StringVar(&opts.configPath, "config", defaultConfigPath, "Path to config file")
	fs.BoolVar(&opts.once, "once", false, "Analyze once and exit instead of watching")
	fs.BoolVar(&opts.jsonOutput, "json", false, "Print the analysis report as JSON")
	fs.StringVar(&opts.python, "python", "", "Language version to analyze as (overrides interpreter.version)")
	fs.StringVar(&opts.dump, "dump", "", "Print the analysis state of a file and exit")
	fs.StringVar(&opts.members, "members", "", "Print the module member types of a file and exit")
	fs.StringVar(&opts.typesAt, "types-at", "", "Print the types of a name at a position (<file>:<line>:<column>:<name>) and exit")
	fs.StringVar(&opts.resolve, "resolve", "", "Resolve a module name to the file that defines it and exit")
	fs.StringVar(&opts.resolveFrom, "from", "", "Importing module for relative --resolve names")
	fs.BoolVar(&opts.history, "history", false, "Record runs in the history database and print trends")
	fs.StringVar(&opts.since, "since", "", "Include historical runs at/after this timestamp (RFC3339 or YYYY-MM-DD)")
	fs.StringVar(&opts.historyWindow, "history-window", "24h", "Moving-window duration for trend summaries (requires --history)")
	fs.StringVar(&opts.historyTSV, "history-tsv", "", "Write trend report TSV to this path (requires --history)")
	fs.StringVar(&opts.historyJSON, "history-json", "", "Write trend report JSON to this path (requires --history)")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	opts.args = fs.Args()
	return opts, nil
}

// singleCommand reports whether opts asks for one query instead of a report.
func (o cliOptions) singleCommand() bool {
	return o.dump != "" || o.members != "" || o.typesAt != "" || o.resolve != ""
}
