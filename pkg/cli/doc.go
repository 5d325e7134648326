/*
Package cli provides helpers shared by the proxyrouter commands.

Output formatting:

	format, err := cli.ParseOutputFormat(flagValue)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, summary)

Results implementing Table render as aligned columns in text mode and as
CSV; every result renders as JSON or YAML.

Signal handling:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
*/
package cli
