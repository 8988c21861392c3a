package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-booking/internal/booking"
	"github.com/hackgods/clinic-slot-booking/internal/config"
	"github.com/hackgods/clinic-slot-booking/internal/db"
	"github.com/hackgods/clinic-slot-booking/internal/logging"
	"github.com/hackgods/clinic-slot-booking/internal/metrics"
	redisclient "github.com/hackgods/clinic-slot-booking/internal/redis"
)

const (
	doctorCount  = 20
	patientCount = 2000
	seedDays     = 14
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresMaxConn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer rdb.Close()

	faker := gofakeit.New(0)

	doctors, err := seedProfiles(ctx, pool, faker, booking.RoleDoctor, doctorCount)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	logger.Info().Int("count", len(doctors)).Msg("doctors seeded")

	if _, err := seedProfiles(ctx, pool, faker, booking.RolePatient, patientCount); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}
	logger.Info().Int("count", patientCount).Msg("patients seeded")

	template, err := booking.ParseDayTemplate(cfg.SlotDayStart, cfg.SlotDayEnd, cfg.SlotBreakStart, cfg.SlotBreakEnd, cfg.SlotLength)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid slot schedule")
	}

	repo := booking.NewPgRepository(pool)
	resolver := booking.NewResolver(repo, redisclient.NewDatesCache(rdb, cfg.AvailableDatesCacheTTL), cfg.Location(), logger)
	svc := booking.NewService(repo, resolver, redisclient.NewRedisLocker(rdb, cfg.LockTTL), template,
		metrics.NewBookingMetrics(prometheus.NewRegistry()), logger)

	admin := booking.Actor{UserID: uuid.New(), Role: booking.RoleAdmin}
	today := time.Now().In(cfg.Location())

	total := 0
	for _, doctorID := range doctors {
		for d := 1; d <= seedDays; d++ {
			day := today.AddDate(0, 0, d)
			if day.Weekday() == time.Sunday {
				continue
			}
			slots, err := svc.GenerateDaySlots(ctx, admin, doctorID, day)
			if err != nil {
				logger.Fatal().Err(err).Str("doctor_id", doctorID.String()).Time("day", day).Msg("generate slots")
			}
			total += len(slots)
		}
	}

	logger.Info().Int("slots", total).Msg("seed complete")
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

func seedProfiles(ctx context.Context, pool txBeginner, faker *gofakeit.Faker, role booking.Role, count int) ([]uuid.UUID, error) {
	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := faker.Name()
			if role == booking.RoleDoctor {
				name = "Dr. " + name
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO profiles (id, full_name, email, role, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, name, faker.Email(), string(role))
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
	}
	return ids, nil
}
