// rankd recomputes user ranks once, or repeatedly on -interval. The
// recalculator's lock only serialises runs within one process, so deploy
// either the server's RANK_INTERVAL loop or rankd, not both. The recompute
// itself runs in a single transaction, so an overlap wastes work rather
// than corrupting ranks.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/testonline/testonline-core/internal/config"
	"github.com/testonline/testonline-core/internal/db"
	"github.com/testonline/testonline-core/internal/rating"
)

func main() {
	interval := flag.Duration("interval", 0, "recompute repeatedly on this interval (0 = run once)")
	flag.Parse()

	cfg := config.FromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	recalc := rating.NewRecalculator(dbh)
	if *interval <= 0 {
		n, err := recalc.RecomputeRanks(context.Background())
		if err != nil {
			log.Fatalf("rank recompute failed: %v", err)
		}
		log.Printf("rank recompute: %d profiles updated", n)
		return
	}
	log.Printf("rank recompute loop every %s", *interval)
	recalc.RunLoop(context.Background(), *interval)
}
