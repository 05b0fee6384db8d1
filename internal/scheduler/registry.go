package scheduler

import (
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/quantmind-br/photofeed/internal/domain"
)

const keyPrefix = "sched:"

// registry persists registrations in badger
type registry struct {
	db *badger.DB
}

type record struct {
	TaskID       string        `json:"task_id"`
	Period       time.Duration `json:"period"`
	InitialDelay time.Duration `json:"initial_delay"`
}

func (r *registry) save(req domain.ScheduleRequest) error {
	data, err := json.Marshal(record{TaskID: req.TaskID, Period: req.Period, InitialDelay: req.InitialDelay})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+req.TaskID), data)
	})
}

func (r *registry) remove(taskID string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(keyPrefix + taskID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (r *registry) load() ([]domain.ScheduleRequest, error) {
	var reqs []domain.ScheduleRequest
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			reqs = append(reqs, domain.ScheduleRequest{
				TaskID:       rec.TaskID,
				Period:       rec.Period,
				InitialDelay: rec.InitialDelay,
			})
		}
		return nil
	})
	return reqs, err
}
