// Command seedevent inserts an event row for local development. Events are
// owned by the catalogue service in production; this stands in for it.
//
//	go run ./cmd/seedevent -capacity 100 -price 2500 -starts 2026-11-01T19:00:00Z
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/logger"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

func main() {
	title := flag.String("title", "Sample event", "event title")
	organizer := flag.String("organizer", "org-local", "organizer id")
	capacity := flag.Int("capacity", 100, "initial capacity")
	price := flag.Int64("price", 0, "unit price in cents; 0 makes the event free")
	currency := flag.String("currency", "usd", "currency for paid events")
	starts := flag.String("starts", "", "start time, RFC3339 (default: 24h from now)")
	duration := flag.Duration("duration", 3*time.Hour, "event length")
	flag.Parse()

	ctx := context.Background()
	log := logger.InitializeZapLogger(logger.ZapConfig{Level: "info"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf(ctx, "config: %v", err)
	}
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)
	if *starts != "" {
		if start, err = time.Parse(time.RFC3339, *starts); err != nil {
			log.Fatalf(ctx, "invalid -starts: %v", err)
		}
	}
	if *capacity < 0 || *price < 0 {
		log.Fatalf(ctx, "capacity and price must not be negative")
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf(ctx, "database: %v", err)
	}
	defer db.Close()

	ev := &model.Event{
		ID:                uuid.NewString(),
		OrganizerID:       *organizer,
		Title:             *title,
		UnitPriceCents:    *price,
		Currency:          *currency,
		InitialCapacity:   *capacity,
		CapacityRemaining: *capacity,
		StartsAt:          start.UTC(),
		EndsAt:            start.UTC().Add(*duration),
		CreatedAt:         time.Now().UTC(),
	}
	if err := repository.NewEventRepo(db).Create(ctx, ev); err != nil {
		log.Errorf(ctx, "create event: %v", err)
		os.Exit(1)
	}
	fmt.Println(ev.ID)
}
