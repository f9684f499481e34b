package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/dinein/internal/domain/auth"
	"github.com/xenking/dinein/internal/domain/menu"
	"github.com/xenking/dinein/internal/domain/table"
	"github.com/xenking/dinein/internal/storage/postgres"
)

type seedFile struct {
	Tables []tableJSON `json:"tables"`
	Menu   []itemJSON  `json:"menu"`
}

type tableJSON struct {
	ID     string       `json:"id"`
	Number string       `json:"number"`
	Status table.Status `json:"status"`
}

type itemJSON struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Status menu.ItemStatus `json:"status"`
	Groups []groupJSON     `json:"groups"`
}

type groupJSON struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	SelectionType menu.SelectionType `json:"selectionType"`
	Required      bool               `json:"required"`
	MinSelections int                `json:"minSelections"`
	MaxSelections int                `json:"maxSelections"`
	Options       []optionJSON       `json:"options"`
}

type optionJSON struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	PriceAdjustment decimal.Decimal `json:"priceAdjustment"`
	// Active defaults to true when omitted.
	Active *bool `json:"active"`
}

func main() {
	var (
		databaseURL  string
		seedPath     string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/menu.json", "path to tables and menu JSON file (.json or .json.gz)")
	flag.StringVar(&apiKey, "api-key", "", "staff API key to seed (or DINEIN_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or DINEIN_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("DINEIN_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or DINEIN_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("DINEIN_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath, apiKey, pepper string) error {
	seed, err := readSeed(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	tables := postgres.NewTableRepository(pool)
	for _, t := range seed.Tables {
		status := t.Status
		if status == "" {
			status = table.StatusAvailable
		}
		if err := tables.Upsert(ctx, &table.Table{ID: t.ID, Number: t.Number, Status: status}); err != nil {
			return errors.Wrap(err, "seed tables")
		}
		slog.Info("upserted table", slog.String("id", t.ID), slog.String("number", t.Number))
	}

	menus := postgres.NewMenuRepository(pool)
	for _, it := range seed.Menu {
		item := it.domain()
		if err := menus.Upsert(ctx, item); err != nil {
			return errors.Wrap(err, "seed menu")
		}
		slog.Info("upserted menu item",
			slog.String("id", item.ID),
			slog.String("name", item.Name),
			slog.Int("groups", len(item.Groups)),
		)
	}

	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

// readSeed decodes the seed file, inflating it first when it ends in .gz.
func readSeed(path string) (*seedFile, error) {
	slog.Info("reading seed file", slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip stream")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}
	return decodeSeed(r)
}

func decodeSeed(r io.Reader) (*seedFile, error) {
	var seed seedFile
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return nil, errors.Wrap(err, "parse seed JSON")
	}
	for _, it := range seed.Menu {
		if it.ID == "" || it.Name == "" {
			return nil, errors.Errorf("menu item %q: id and name are required", it.ID)
		}
		for _, g := range it.Groups {
			if g.SelectionType != menu.SelectionSingle && g.SelectionType != menu.SelectionMultiple {
				return nil, errors.Errorf("menu item %q group %q: unknown selection type %q", it.ID, g.ID, g.SelectionType)
			}
		}
	}
	return &seed, nil
}

func (it itemJSON) domain() *menu.Item {
	status := it.Status
	if status == "" {
		status = menu.ItemAvailable
	}
	item := &menu.Item{ID: it.ID, Name: it.Name, Price: it.Price, Status: status}
	for _, g := range it.Groups {
		group := menu.ModifierGroup{
			ID:            g.ID,
			Name:          g.Name,
			SelectionType: g.SelectionType,
			Required:      g.Required,
			MinSelections: g.MinSelections,
			MaxSelections: g.MaxSelections,
		}
		for _, o := range g.Options {
			group.Options = append(group.Options, menu.ModifierOption{
				ID:              o.ID,
				Name:            o.Name,
				PriceAdjustment: o.PriceAdjustment,
				Active:          o.Active == nil || *o.Active,
			})
		}
		item.Groups = append(item.Groups, group)
	}
	return item
}

func seedAPIKey(ctx context.Context, keys *postgres.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding staff API key")

	info := &auth.APIKeyInfo{
		ID:      "staff",
		KeyHash: auth.Hash([]byte(pepper), apiKey),
		Name:    "Default staff key",
		Scopes:  []string{auth.ScopeOrdersWrite, auth.ScopePaymentsRead},
	}
	if err := keys.Upsert(ctx, info); err != nil {
		return errors.Wrap(err, "upsert staff API key")
	}

	slog.Info("upserted API key", slog.String("id", info.ID), slog.String("name", info.Name))

	return nil
}
