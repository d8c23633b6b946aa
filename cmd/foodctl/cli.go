package main

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/foodlens/backend/config"
	"github.com/foodlens/backend/internal/domain"
	"github.com/foodlens/backend/internal/foodname"
	"github.com/foodlens/backend/internal/infrastructure/llm"
	"github.com/foodlens/backend/internal/infrastructure/sqlite"
	"github.com/foodlens/backend/internal/usecase"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config, logger *zap.Logger) *cli.App {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &cli.App{
		Name:    "foodctl",
		Usage:   "FoodLens catalog and contributed food administration",
		Version: Version,
		Commands: []*cli.Command{
			catalogCmd(db, cfg),
			resolveCmd(db, cfg, logger),
			contributedCmd(db),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func catalogCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "Manage the curated food catalog",
		Subcommands: []*cli.Command{
			{
				Name:  "import",
				Usage: "Upsert catalog records from a CSV file with a header row",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Required: true, Usage: "CSV file, - for stdin"},
				},
				Action: func(c *cli.Context) error {
					in, err := openInput(c.String("file"))
					if err != nil {
						return outputError(err)
					}
					defer in.Close()

					foods, err := parseCatalogCSV(in)
					if err != nil {
						return outputError(err)
					}

					store := sqlite.NewCatalogStore(db, newNormalizer(cfg))
					n, err := store.Upsert(c.Context, foods)
					if err != nil {
						return outputError(err)
					}
					total, err := store.Count(c.Context)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, map[string]int{"imported": n, "total": total})
				},
			},
		},
	}
}

func resolveCmd(db *sql.DB, cfg *config.Config, logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Resolve a food name the way the API does",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "user", Aliases: []string{"u"}, Required: true, Usage: "Owner user id"},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Food name"},
			&cli.StringSliceFlag{Name: "ingredient", Aliases: []string{"i"}, Usage: "Ingredient (repeatable)"},
			&cli.StringFlag{Name: "hint", Usage: "Category hint"},
		},
		Action: func(c *cli.Context) error {
			svc := newResolutionService(db, cfg, logger)
			res, err := svc.Resolve(c.Context, domain.ResolveRequest{
				FoodName:     c.String("name"),
				Ingredients:  c.StringSlice("ingredient"),
				CategoryHint: c.String("hint"),
				OwnerUserID:  c.Int64("user"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, res)
		},
	}
}

func contributedCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "contributed",
		Usage: "Review user-contributed foods",
		Subcommands: []*cli.Command{
			{
				Name:  "top",
				Usage: "List unapproved records that are candidates for promotion",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "min-usage", Value: 10, Usage: "Minimum usage count"},
					&cli.IntFlag{Name: "limit", Value: 50, Usage: "Maximum records"},
				},
				Action: func(c *cli.Context) error {
					foods, err := sqlite.NewContributedStore(db).ListPromotionCandidates(c.Context, c.Int("min-usage"), c.Int("limit"))
					if err != nil {
						return outputError(err)
					}
					if foods == nil {
						foods = []domain.ContributedFood{}
					}
					return outputJSON(c, foods)
				},
			},
			{
				Name:      "approve",
				Usage:     "Mark a contributed record approved",
				ArgsUsage: "<food-id>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return outputError(fmt.Errorf("%w: exactly one food id is required", domain.ErrInvalidInput))
					}
					food, err := sqlite.NewContributedStore(db).Approve(c.Context, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, food)
				},
			},
		},
	}
}

func newNormalizer(cfg *config.Config) *foodname.Normalizer {
	if cfg == nil {
		return foodname.NewNormalizer("", "")
	}
	return foodname.NewNormalizer(cfg.Matching.Delimiter, cfg.Matching.CategorySuffix)
}

// newResolutionService wires the engine straight onto the stores, without the catalog cache
func newResolutionService(db *sql.DB, cfg *config.Config, logger *zap.Logger) *usecase.ResolutionService {
	normalizer := newNormalizer(cfg)
	if cfg == nil {
		cfg = &config.Config{}
	}

	var resolver domain.SimilarityResolver
	if cfg.Resolver.Enabled {
		resolver = llm.NewClient(llm.Config{
			APIKey:        cfg.Resolver.APIKey,
			BaseURL:       cfg.Resolver.BaseURL,
			Model:         cfg.Resolver.Model,
			RatePerMinute: cfg.Resolver.RatePerMinute,
		}, logger)
	}

	scorer := usecase.NewScorer(normalizer, usecase.ScorerConfig{
		Weights:             cfg.Matching.Weights,
		GenericPlaceholders: cfg.Matching.GenericPlaceholders,
		EnableDebugLogging:  cfg.Matching.EnableDebugLogging,
	}, logger)

	return usecase.NewResolutionService(
		sqlite.NewCatalogStore(db, normalizer),
		sqlite.NewContributedStore(db),
		resolver,
		scorer,
		usecase.ResolutionConfig{
			FallbackMinScore:   cfg.Matching.FallbackMinScore,
			PopularityMinUsage: cfg.Matching.PopularityMinUsage,
			MaxCandidates:      cfg.Matching.MaxCandidates,
			ResolverCandidates: cfg.Matching.ResolverCandidates,
			ResolverTimeout:    cfg.Resolver.Timeout,
		},
		logger,
	)
}

// nutrientColumns maps CSV header names to nutrient fields
var nutrientColumns = map[string]func(*domain.Nutrients) *float64{
	"reference_value": func(n *domain.Nutrients) *float64 { return &n.ReferenceValue },
	"kcal":            func(n *domain.Nutrients) *float64 { return &n.Kcal },
	"protein":         func(n *domain.Nutrients) *float64 { return &n.Protein },
	"carb":            func(n *domain.Nutrients) *float64 { return &n.Carb },
	"fat":             func(n *domain.Nutrients) *float64 { return &n.Fat },
	"fiber":           func(n *domain.Nutrients) *float64 { return &n.Fiber },
	"vitamin_a":       func(n *domain.Nutrients) *float64 { return &n.VitaminA },
	"vitamin_c":       func(n *domain.Nutrients) *float64 { return &n.VitaminC },
	"calcium":         func(n *domain.Nutrients) *float64 { return &n.Calcium },
	"iron":            func(n *domain.Nutrients) *float64 { return &n.Iron },
	"potassium":       func(n *domain.Nutrients) *float64 { return &n.Potassium },
	"magnesium":       func(n *domain.Nutrients) *float64 { return &n.Magnesium },
	"saturated_fat":   func(n *domain.Nutrients) *float64 { return &n.SaturatedFat },
	"added_sugar":     func(n *domain.Nutrients) *float64 { return &n.AddedSugar },
	"sodium":          func(n *domain.Nutrients) *float64 { return &n.Sodium },
	"cholesterol":     func(n *domain.Nutrients) *float64 { return &n.Cholesterol },
	"trans_fat":       func(n *domain.Nutrients) *float64 { return &n.TransFat },
}

// parseCatalogCSV reads catalog records. food_id and display_name columns are required;
// unknown columns are ignored and empty nutrient cells read as zero.
func parseCatalogCSV(r io.Reader) ([]domain.FoodRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty CSV", domain.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{"food_id", "display_name"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing %s column", domain.ErrInvalidInput, required)
		}
	}

	var foods []domain.FoodRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV line %d: %w", line, err)
		}

		get := func(name string) string {
			if i, ok := cols[name]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}

		food := domain.FoodRecord{
			FoodID:             get("food_id"),
			DisplayName:        get("display_name"),
			Category1:          get("category1"),
			Category2:          get("category2"),
			RepresentativeName: get("representative_name"),
		}
		food.Nutrients.Unit = get("unit")
		for name, field := range nutrientColumns {
			v := get(name)
			if v == "" {
				continue
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d column %s: %q is not a number", domain.ErrInvalidInput, line, name, v)
			}
			*field(&food.Nutrients) = f
		}
		foods = append(foods, food)
	}
	return foods, nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// outputJSON writes v as indented JSON to the app's writer.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return cli.Exit(fmt.Sprintf("[invalid_request] %s", err), 2)
	case errors.Is(err, domain.ErrNotFound):
		return cli.Exit(fmt.Sprintf("[not_found] %s", err), 1)
	}
	return cli.Exit(err.Error(), 1)
}
