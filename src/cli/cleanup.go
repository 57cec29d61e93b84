package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"odf-cleanup/src/cleanup"
	"odf-cleanup/src/rbdapi"
	"odf-cleanup/src/safety"
)

// connectBackend is a hook so tests can substitute a fake cluster.
var connectBackend = func(confPath, keyringPath, pool string) (rbdapi.Client, error) {
	return rbdapi.Connect(confPath, keyringPath, pool)
}

func newCleanupCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		pool           string
		confPath       string
		keyring        string
		settleDelay    time.Duration
		pollInterval   time.Duration
		flattenTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "cleanup <tenant-id>",
		Short: "Discover, plan, and remove every object belonging to a tenant",
		Long: "Discovers the tenant's volumes, clone snapshots, and trash dependencies,\n" +
			"computes a children-before-parents removal order, and executes it.\n" +
			"Dry-run by default; pass --dry-run=false to actually delete.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant := args[0]
			opts := getSafetyOptions(cmd)

			// Environment fallbacks kept compatible with the older tooling.
			if pool == "" {
				pool = os.Getenv("CL_POOL")
			}
			if confPath == "" {
				confPath = os.Getenv("CL_CONF")
			}
			if keyring == "" {
				keyring = os.Getenv("CL_KEYRING")
			}
			if pool == "" {
				return errors.New("--pool or CL_POOL is required")
			}

			logger := logrus.New()
			logger.SetOutput(stderr)
			if getDebug(cmd) {
				logger.SetLevel(logrus.DebugLevel)
			}

			client, err := connectBackend(confPath, keyring, pool)
			if err != nil {
				return fmt.Errorf("connect to backend: %w", err)
			}
			defer client.Close()

			backend := client
			var dry *rbdapi.DryRun
			if opts.DryRun {
				dry = rbdapi.NewDryRun(client)
				backend = dry
			}

			res := cleanup.Discover(backend, tenant, logger)
			forest := cleanup.BuildForest(res.Objects)
			plan := cleanup.BuildPlan(forest, res.Deps)

			fmt.Fprintf(stdout, "Discovered objects for tenant %s in pool %s:\n", tenant, pool)
			cleanup.RenderForest(stdout, forest, res.Deps)

			if len(plan.Objects) == 0 {
				fmt.Fprintln(stdout, "nothing to clean up")
				return nil
			}

			if !opts.DryRun {
				question := fmt.Sprintf("Permanently delete %d object(s) of tenant %s from pool %s?",
					len(plan.Objects), tenant, pool)
				ok, err := safety.Confirm(opts, cmd.InOrStdin(), stdout, question)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(stdout, "aborted")
					return nil
				}
			}

			exec := cleanup.NewExecutor(backend, cleanup.Options{
				DryRun:         opts.DryRun,
				SettleDelay:    settleDelay,
				PollInterval:   pollInterval,
				FlattenTimeout: flattenTimeout,
			}, logger)
			summary := exec.Run(tenant, plan)
			summary.Pool = pool
			if dry != nil {
				summary.PlannedActions = dry.Actions
			}
			summary.Render(stdout)

			if !summary.Succeeded() {
				return fmt.Errorf("cleanup of tenant %s finished with failures", tenant)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pool, "pool", "", "RBD pool to clean (env CL_POOL)")
	cmd.Flags().StringVar(&confPath, "conf", "", "Path to ceph.conf (env CL_CONF)")
	cmd.Flags().StringVar(&keyring, "keyring", "", "Path to the keyring file (env CL_KEYRING)")
	cmd.Flags().DurationVar(&settleDelay, "settle-delay", cleanup.DefaultSettleDelay,
		"Pause after disruptive backend calls")
	cmd.Flags().DurationVar(&pollInterval, "flatten-poll-interval", cleanup.DefaultPollInterval,
		"Interval between flatten completion checks")
	cmd.Flags().DurationVar(&flattenTimeout, "flatten-timeout", cleanup.DefaultFlattenTimeout,
		"Maximum time to wait for a flatten before moving on")
	return cmd
}
