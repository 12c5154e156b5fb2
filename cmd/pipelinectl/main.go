// Command pipelinectl is an operator CLI for tenant pipelines: provisioning,
// printing the board and moving leads between stages.
package main

import (
	"context"
	"fmt"
	"os"

	"realty_crm_backend/internal/events"
	"realty_crm_backend/internal/pipeline"
	"realty_crm_backend/internal/pipeline/domain"
	"realty_crm_backend/internal/pipeline/repository"
	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/db"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// cli holds what every subcommand needs once the root pre-run has connected.
type cli struct {
	tenant     string
	user       string
	role       string
	memory     bool
	jsonOutput bool
	logLevel   string

	log      *logger.Logger
	bus      *events.InMemoryBus
	services pipeline.Services
	actor    domain.Actor
	cleanup  func()
}

func newRootCmd() (*cobra.Command, *cli) {
	c := &cli{}

	root := &cobra.Command{
		Use:           "pipelinectl <command>",
		Short:         "Operate tenant lead pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.tenant, "tenant", os.Getenv("PIPELINE_TENANT"), "tenant id")
	flags.StringVar(&c.user, "user", os.Getenv("PIPELINE_USER"), "acting user id")
	flags.StringVar(&c.role, "role", domain.RoleAdmin, "acting user role")
	flags.BoolVar(&c.memory, "memory", false, "run against a seeded in-memory store")
	flags.BoolVar(&c.jsonOutput, "json", false, "output as JSON")
	flags.StringVar(&c.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(newProvisionCmd(c), newBoardCmd(c), newMoveCmd(c))
	return root, c
}

// execute runs the command and releases what open acquired, also when the
// command failed.
func execute(root *cobra.Command, c *cli) error {
	defer c.close()
	return root.Execute()
}

func (c *cli) open(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c.log = logger.NewWithWriter(cmd.ErrOrStderr(), "production", c.logLevel)
	c.bus = events.NewInMemoryBus(c.log)

	if c.memory {
		repo := repository.NewMemory()
		c.services = pipeline.NewServices(repo, c.bus, &config.Config{
			DefaultStageName: domain.DefaultStageName,
			PhoneRegion:      "BR",
		}, c.log)
		if err := seedDemo(ctx, repo, c.services); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
		if c.tenant == "" {
			c.tenant = demoTenantID.String()
		}
		if c.user == "" {
			c.user = demoUserID.String()
		}
	} else {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		c.services = pipeline.NewServices(repository.New(pool), c.bus, cfg, c.log)
		c.cleanup = pool.Close
	}

	tenantID, err := uuid.Parse(c.tenant)
	if err != nil {
		return fmt.Errorf("invalid --tenant %q: %w", c.tenant, err)
	}
	userID := uuid.Nil
	if c.user != "" {
		if userID, err = uuid.Parse(c.user); err != nil {
			return fmt.Errorf("invalid --user %q: %w", c.user, err)
		}
	}
	c.actor = domain.Actor{UserID: userID, TenantID: tenantID, Role: c.role}
	return nil
}

func (c *cli) close() {
	if c.bus != nil {
		c.bus.Wait()
		c.bus = nil
	}
	if c.cleanup != nil {
		c.cleanup()
		c.cleanup = nil
	}
}

func main() {
	if err := execute(newRootCmd()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
