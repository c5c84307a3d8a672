package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dynamatics/dynamatics/internal/controllers"
	"github.com/dynamatics/dynamatics/internal/server"
	"github.com/dynamatics/dynamatics/internal/storage"
	"github.com/dynamatics/dynamatics/pkg/dataflow"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func NewStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the dataflow service",
		Long:  `Start the HTTP service that stores flow definitions and executes dataflow graphs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			return runStart(debug)
		},
	}

	return cmd
}

func runStart(debug bool) error {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	config, err := LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().
		Str("http_address", config.HTTPAddress).
		Str("mongo_database", config.MongoDatabase).
		Msg("Starting dataflow service")

	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	defer connectCancel()

	mongoClient, err := mongo.Connect(connectCtx, options.Client().ApplyURI(config.MongoURI))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to disconnect from MongoDB")
		}
	}()

	fixtures := dataflow.NewFixtureStore()

	flowRepository := storage.NewFlowRepository(storage.FlowRepositoryDependencies{
		Database: mongoClient.Database(config.MongoDatabase),
	})

	runner := dataflow.NewRunner(dataflow.RunnerDependencies{
		Fixtures: fixtures,
	})

	schemaPropagator := dataflow.NewSchemaPropagator(dataflow.SchemaPropagatorDependencies{
		Fixtures: fixtures,
	})

	flowController := controllers.NewFlowController(controllers.FlowControllerDependencies{
		FlowRepository:   flowRepository,
		Runner:           runner,
		SchemaPropagator: schemaPropagator,
	})

	httpServer := server.NewHTTPServer(server.HTTPServerDependencies{
		FlowController: flowController,
	})

	if err := httpServer.Listen(config.HTTPAddress, fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
	}); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
	}

	log.Info().Msg("Dataflow service stopped")
	return nil
}
