package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hackgods/booking-availability/internal/config"
	"github.com/hackgods/booking-availability/internal/db"
	"github.com/hackgods/booking-availability/internal/logging"
	"github.com/hackgods/booking-availability/internal/schedule"
)

var (
	businessCount       int
	servicesPerBusiness int
	applySchema         bool
	randomSeed          int64
)

var rootCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed businesses, weekly schedules and services with fake data",
	Long: `seed inserts fake businesses, each with a weekly schedule and a handful of
services, into the Postgres database named by POSTGRES_DSN.

Examples:
  seed --businesses 100 --services 4
  seed --schema --businesses 10
  seed token --user 3f1c... --role owner`,
	RunE: runSeed,
}

func init() {
	rootCmd.Flags().IntVarP(&businessCount, "businesses", "b", 100, "Number of businesses to create")
	rootCmd.Flags().IntVarP(&servicesPerBusiness, "services", "s", 4, "Services per business")
	rootCmd.Flags().BoolVar(&applySchema, "schema", false, "Create missing tables before seeding")
	rootCmd.Flags().Int64Var(&randomSeed, "seed", 0, "Random seed (0 uses the current time)")
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Setup(cfg.Env)

	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}
	if businessCount < 1 || servicesPerBusiness < 1 {
		return fmt.Errorf("--businesses and --services must be positive")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	connectCtx, cancelConnect := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connectCtx, cfg.PostgresDSN)
	cancelConnect()
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if applySchema {
		if err := db.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		log.Info().Msg("schema applied")
	}

	if randomSeed == 0 {
		randomSeed = time.Now().UnixNano()
	}
	faker := gofakeit.New(uint64(randomSeed))

	log.Info().Int("businesses", businessCount).Int("services_per_business", servicesPerBusiness).Msg("seed starting")
	if err := seedBusinesses(ctx, pool, faker, businessCount, servicesPerBusiness); err != nil {
		return fmt.Errorf("seed businesses: %w", err)
	}
	log.Info().Msg("seed complete")
	return nil
}

var serviceNames = []string{
	"Haircut",
	"Beard Trim",
	"Consultation",
	"Massage",
	"Manicure",
	"Physiotherapy Session",
	"Dental Cleaning",
	"Eye Exam",
	"Personal Training",
	"Tattoo Touch-up",
}

var serviceDurations = []int{15, 30, 45, 60, 90, 120}

func seedBusinesses(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count, services int) error {
	const batchSize = 50

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			businessID := uuid.New()
			week := fakeWeek(faker)
			if err := week.Validate(); err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("generated schedule: %w", err)
			}
			rawWeek, err := json.Marshal(week)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO businesses (id, owner_id, name, schedules, is_active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, TRUE, now(), now())
			`, businessID, uuid.New(), faker.Company(), rawWeek)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}

			for j := 0; j < services; j++ {
				name := serviceNames[faker.Number(0, len(serviceNames)-1)]
				duration := serviceDurations[faker.Number(0, len(serviceDurations)-1)]

				_, err := tx.Exec(ctx, `
					INSERT INTO services (id, business_id, name, duration_minutes, is_active, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, now(), now())
				`, uuid.New(), businessID, name, duration, faker.Number(0, 9) > 0)
				if err != nil {
					_ = tx.Rollback(ctx)
					return err
				}
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info().Int("seeded", end).Int("total", count).Msg("businesses seeded")
	}

	return nil
}

// fakeWeek opens Monday to Friday with random hours on the half hour, Saturday
// sometimes, and Sunday never.
func fakeWeek(faker *gofakeit.Faker) schedule.WeeklySchedule {
	open := schedule.NewClock(faker.Number(7, 10), 30*faker.Number(0, 1))
	closing := schedule.NewClock(faker.Number(16, 20), 30*faker.Number(0, 1))

	week := schedule.WeeklySchedule{}
	for _, day := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday} {
		week[schedule.WeekdayName(day)] = schedule.DaySchedule{Open: open, Close: closing}
	}

	if faker.Bool() {
		week["saturday"] = schedule.DaySchedule{Open: schedule.NewClock(10, 0), Close: schedule.NewClock(14, 0)}
	} else {
		week["saturday"] = schedule.DaySchedule{Closed: true}
	}
	week["sunday"] = schedule.DaySchedule{Closed: true}

	return week
}
