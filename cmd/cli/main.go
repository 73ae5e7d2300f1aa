package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/yurifrl/categorisation/pkg/castlight"
	"github.com/yurifrl/categorisation/pkg/catalog"
	"github.com/yurifrl/categorisation/pkg/plan"
	"github.com/yurifrl/categorisation/pkg/records"
	"github.com/yurifrl/categorisation/pkg/result"
	"github.com/yurifrl/categorisation/pkg/service"
	"github.com/yurifrl/categorisation/pkg/tink"
)

var (
	cliFilters filters
	cfgFile    string
	current    *app

	sourceFiles struct {
		users        string
		accounts     string
		transactions string
	}
)

var rootCmd = &cobra.Command{
	Use:           "catpoc",
	Short:         "Categorisation PoC client for the Tink and Castlight APIs",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		current = a
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Show help when no subcommand is provided
		return cmd.Help()
	},
}

// show prints seq with the configured detail level and filters.
func show(seq *result.Sequence) {
	cliFilters.render(os.Stdout, seq, current.config.DetailLevel)
}

// bind points kind at the positional file argument, if one was given.
func bind(kind catalog.Kind, args []string) {
	if len(args) > 0 {
		current.source.Bind(kind, args[0])
	}
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test connectivity to the Tink API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		show(current.executor.TestConnectivity(cmd.Context()))
		return nil
	},
}

var authorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "Obtain a client access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		scope, _ := cmd.Flags().GetString("scope")
		show(current.executor.AuthorizeClient(cmd.Context(), scope))
		return nil
	},
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the Tink category tree",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		locale, _ := cmd.Flags().GetString("locale")
		show(current.executor.ListCategories(cmd.Context(), locale))
		return nil
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Create, delete and inspect users",
}

var usersActivateCmd = &cobra.Command{
	Use:   "activate [users_file]",
	Short: "Create every user of the users file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bind(catalog.UserEntity, args)
		seq, err := current.executor.ActivateUsers(cmd.Context())
		show(seq)
		return err
	},
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete [users_file]",
	Short: "Delete every user of the users file (needs --allow-delete)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bind(catalog.UserEntity, args)
		seq, err := current.executor.DeleteUsers(cmd.Context())
		show(seq)
		return err
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete-one <external_user_id>",
	Short: "Delete a single user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seq, err := current.executor.DeleteUser(cmd.Context(), args[0])
		show(seq)
		if errors.Is(err, tink.ErrUserNotFound) {
			fmt.Printf("user %s does not exist, nothing to delete\n", args[0])
			return nil
		}
		return err
	},
}

var userExistsCmd = &cobra.Command{
	Use:   "exists <external_user_id>",
	Short: "Check whether a user exists",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exists, seq, err := current.executor.UserExists(cmd.Context(), args[0])
		show(seq)
		if err != nil {
			return err
		}
		fmt.Printf("user %s exists: %t\n", args[0], exists)
		return nil
	},
}

var userGetCmd = &cobra.Command{
	Use:   "get <external_user_id>",
	Short: "Read a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seq, err := current.executor.GetUser(cmd.Context(), args[0])
		show(seq)
		return err
	},
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Ingest and list accounts",
}

var accountsIngestCmd = &cobra.Command{
	Use:   "ingest [accounts_file]",
	Short: "Upload every account of the accounts file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bind(catalog.AccountEntity, args)
		seq, err := current.executor.IngestAccounts(cmd.Context())
		show(seq)
		return err
	},
}

var accountsListCmd = &cobra.Command{
	Use:   "list <external_user_id>",
	Short: "List the accounts of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seq, resp, err := current.executor.ListAccounts(cmd.Context(), args[0])
		show(seq)
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("output")
		if out == "" || resp == nil {
			return nil
		}
		recs, fields := resp.Records()
		if err := records.WriteFile(out, recs, fields, current.config.Delimiter()); err != nil {
			return err
		}
		fmt.Printf("%d account(s) written to %s\n", len(recs), out)
		return nil
	},
}

var transactionsCmd = &cobra.Command{
	Use:   "transactions",
	Short: "Ingest transactions",
}

var transactionsIngestCmd = &cobra.Command{
	Use:   "ingest [transactions_file]",
	Short: "Upload every transaction of the transactions file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bind(catalog.TransactionEntity, args)
		seq, err := current.executor.IngestTransactions(cmd.Context())
		show(seq)
		return err
	},
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Create users, ingest accounts and ingest transactions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		seq, err := current.executor.Process(cmd.Context())
		show(seq)
		return err
	},
}

var categoriseCmd = &cobra.Command{
	Use:   "categorise <input_file> <output_file>",
	Short: "Categorise the transactions of a file with Castlight",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		seq, err := current.executor.Categorise(cmd.Context(), args[0], args[1])
		show(seq)
		if errors.Is(err, castlight.ErrDryRun) {
			fmt.Println("Warning: " + err.Error())
			return nil
		}
		return err
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Categorise every file matching files.in_pattern",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p := service.NewProcessor(current.config, current.logger, current.categoriser)
		seq, err := p.ProcessPattern(cmd.Context())
		show(seq)
		return err
	},
}

var planCmd = &cobra.Command{
	Use:   "plan <plan_file>",
	Short: "Preview a YAML run plan (dry-run)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := plan.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Plan preview for %s\n", args[0])
		p.Print()
		fmt.Println()
		return current.executor.Plan(os.Stdout, p)
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply <plan_file>",
	Short: "Run the steps of a YAML run plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := plan.Load(args[0])
		if err != nil {
			return err
		}
		seq, err := current.executor.Apply(cmd.Context(), p)
		show(seq)
		return err
	},
}

func init() {
	// Global flags; names match the configuration keys they override.
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "Config file (default is config.yaml)")
	pf.String("detail", "low", "Detail level of the output (low|medium|high)")
	pf.String("log-level", "info", "Log level (debug|info|warn|error)")
	pf.String("log-file", "", "Also append logs to this file")
	pf.Bool("dry-run", false, "Read and log inputs but suppress categorisation calls")
	pf.String("delimiter", ";", "Delimiter of input and output files")
	pf.Duration("timeout", 0, "HTTP timeout (0 = none)")
	pf.String("proxy", "", "HTTP proxy host[:port]")
	pf.String("tink-url", "", "Tink API root")
	pf.String("castlight-api", "v1", "Castlight API version (v1|v2)")
	pf.Bool("allow-delete", false, "Allow deleting existing users")

	// Data sources
	pf.StringVar(&sourceFiles.users, "users", "", "Users input file")
	pf.StringVar(&sourceFiles.accounts, "accounts", "", "Accounts input file")
	pf.StringVar(&sourceFiles.transactions, "transactions", "", "Transactions input file")

	// Output filters
	pf.StringVar(&cliFilters.endpoint, "endpoint", "", "Only show results of endpoints containing this path")
	pf.BoolVar(&cliFilters.important, "important", false, "Only show important results")
	pf.BoolVar(&cliFilters.exceptions, "exceptions", false, "Only show exceptions")
	pf.BoolVar(&cliFilters.table, "table", false, "Render results as a table")

	authorizeCmd.Flags().String("scope", tink.ScopeAuthorizationGrant, "Client scope")
	categoriesCmd.Flags().String("locale", "", "Category locale, e.g. en_US")
	accountsListCmd.Flags().StringP("output", "o", "", "Write the accounts to this file (.csv or .json)")

	usersCmd.AddCommand(usersActivateCmd, usersDeleteCmd, userDeleteCmd, userExistsCmd, userGetCmd)
	accountsCmd.AddCommand(accountsIngestCmd, accountsListCmd)
	transactionsCmd.AddCommand(transactionsIngestCmd)
	rootCmd.AddCommand(pingCmd, authorizeCmd, categoriesCmd, usersCmd, accountsCmd,
		transactionsCmd, processCmd, categoriseCmd, batchCmd, planCmd, applyCmd)
}

// run executes the command line in args and releases the log file, also when
// the command failed.
func run(ctx context.Context, args []string) error {
	defer func() {
		if current != nil {
			current.closer.Close()
		}
	}()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
