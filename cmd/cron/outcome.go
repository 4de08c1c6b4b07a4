package main

import (
	"context"
	"log"
	"os"
	"time"

	"pulsepay/internal/chain"
	"pulsepay/internal/datastore"
	"pulsepay/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/uptrace/bun"
)

const recheckBatchSize = 50

// OutcomeJob settles broadcasts whose fate was unknown when the bot gave up
// waiting. Rows stay unknown until the chain answers one way or the other.
type OutcomeJob struct {
	Db    *bun.DB
	Chain chain.Client
}

func NewOutcomeJob(db *bun.DB, chainClient chain.Client) *OutcomeJob {
	return &OutcomeJob{
		Db:    db,
		Chain: chainClient,
	}
}

func (j *OutcomeJob) Start(cronRunner *cron.Cron) error {
	schedule := os.Getenv("CRONJOB_TIME_OUTCOME")
	if schedule == "" {
		schedule = "@every 1m"
	}

	_, err := cronRunner.AddFunc(schedule, j.runScheduledTask)
	log.Println("Outcome Cronjob start at:", time.Now().Format("2006-01-02 15:04:05"), "cron:", schedule, err)
	return err
}

func (j *OutcomeJob) runScheduledTask() {
	ctx := context.Background()
	for _, status := range []string{models.RelayStatusUnknown, models.RelayStatusSubmitted} {
		if err := j.recheck(ctx, status); err != nil {
			log.Println("outcome recheck:", err)
		}
	}
}

func (j *OutcomeJob) recheck(ctx context.Context, status string) error {
	rows, err := datastore.ListRelayLogsByStatus(ctx, j.Db, status, recheckBatchSize)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if row.TxHash == "" {
			continue
		}

		final, err := j.Chain.ResolveOutcome(ctx, row.TxHash)
		if err != nil {
			log.Println("resolve outcome:", row.TxHash, err)
			continue
		}
		if final == nil {
			// still not visible on chain, try again next run
			continue
		}

		next := models.RelayStatusFailure
		if final.Success {
			next = models.RelayStatusSuccess
		}
		if err := datastore.UpdateRelayLogStatus(ctx, j.Db, row.ID, next, final.VMStatus); err != nil {
			log.Println("update outcome:", row.TxHash, err)
		}
	}
	return nil
}
