package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	GitCommit string
	GitTag    string
	BuildTime string
)

//	@title			Alexandria books catalog api
//	@version		1.0
//	@description	Books catalog fed by the Google Books api. Fetch and delete requests are queued and run by a single worker.
//	@BasePath		/
func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile, envFile string

	serve := func(cmd *cobra.Command, _ []string) error {
		app, err := NewApp(configFile, envFile)
		if err != nil {
			log.Fatal("application failed to initialized: ", err)
		}
		if err = app.Run(); err != nil {
			log.Fatal("application exited. check logs for more details.", err)
		}
		return nil
	}

	root := &cobra.Command{
		Use:          "alexandria",
		Short:        "Personal books catalog fed by the Google Books api",
		Version:      fmt.Sprintf("%s (commit %s, built %s)", GitTag, GitCommit, BuildTime),
		SilenceUsage: true,
		RunE:         serve,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "./config.yml", "path of the yaml configuration file")
	root.PersistentFlags().StringVarP(&envFile, "env", "e", "./config.env", "path of the optional environment file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the api server and the jobs worker",
		Args:  cobra.NoArgs,
		RunE:  serve,
	})
	root.AddCommand(newISBNCommand())
	return root
}

// newISBNCommand prints the normalized form of each identifier.
func newISBNCommand() *cobra.Command {
	var policy string
	cmd := &cobra.Command{
		Use:   "isbn <id>...",
		Short: "Print the normalized ISBN-13 of each identifier",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := ChecksumPolicy(policy)
			if !p.IsValid() {
				return fmt.Errorf("unknown checksum policy %q", policy)
			}
			for _, raw := range args {
				id, err := PrepareISBN(raw, p)
				status := "valid"
				if err != nil {
					status = "invalid"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", raw, id, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&policy, "checksum", "p", string(ChecksumStandard), "checksum policy: standard or legacy")
	return cmd
}
