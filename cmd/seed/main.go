// Command seed loads a treatment catalog from YAML into MongoDB.
//
//	seed -file catalog.yaml
//
// Options are upserted by name, so running it twice is harmless.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/yaml.v3"

	"github.com/harentsoaR/doctors-portal/internal/logging"
	"github.com/harentsoaR/doctors-portal/internal/models"
	"github.com/harentsoaR/doctors-portal/internal/services"
	"github.com/harentsoaR/doctors-portal/internal/store"
)

type catalogFile struct {
	Options []catalogEntry `yaml:"options"`
}

type catalogEntry struct {
	Name  string   `yaml:"name"`
	Price float64  `yaml:"price"`
	Slots []string `yaml:"slots"`
}

func parseCatalog(r io.Reader) ([]models.TreatmentOption, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Options) == 0 {
		return nil, fmt.Errorf("parse catalog: no options")
	}
	opts := make([]models.TreatmentOption, 0, len(f.Options))
	for _, e := range f.Options {
		opts = append(opts, models.TreatmentOption{Name: e.Name, Price: e.Price, Slots: e.Slots})
	}
	return opts, nil
}

// seed upserts every option, stopping at the first failure.
func seed(ctx context.Context, catalog *services.Catalog, opts []models.TreatmentOption, logger zerolog.Logger) error {
	for i := range opts {
		if err := catalog.Upsert(ctx, &opts[i]); err != nil {
			return err
		}
		logger.Info().Str("name", opts[i].Name).Int("slots", len(opts[i].Slots)).Msg("option upserted")
	}
	return nil
}

func main() {
	file := flag.String("file", "catalog.yaml", "catalog YAML file")
	flag.Parse()

	_ = godotenv.Load()
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("MONGO_DATABASE", "doctorsPortal")
	v.SetDefault("LOG_LEVEL", "info")

	logger := logging.New(v.GetString("LOG_LEVEL"), true)
	uri := v.GetString("MONGO_URI")
	if uri == "" {
		logger.Fatal().Msg("MONGO_URI is required")
	}

	f, err := os.Open(*file)
	if err != nil {
		logger.Fatal().Err(err).Msg("open catalog")
	}
	opts, err := parseCatalog(f)
	f.Close()
	if err != nil {
		logger.Fatal().Err(err).Str("file", *file).Msg("invalid catalog")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to MongoDB")
	}
	defer client.Disconnect(context.Background())

	m := store.NewMongo(client.Database(v.GetString("MONGO_DATABASE")), 10*time.Second)
	if err := m.EnsureIndexes(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ensure indexes")
	}
	if err := seed(ctx, services.NewCatalog(m), opts, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed failed")
	}
	logger.Info().Int("options", len(opts)).Msg("catalog seeded")
}
