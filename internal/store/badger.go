package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"github.com/richvergo/subtract-sub005/pkg/api"
)

// BadgerRunStore keeps run records in an embedded Badger database. Each
// record is stored under "run/<id>" and indexed under
// "idx/<workflow>/<id>"
type BadgerRunStore struct {
	db *badger.DB
}

const (
	badgerRunPrefix   = "run/"
	badgerIndexPrefix = "idx/"
)

var _ RunStore = (*BadgerRunStore)(nil)

// NewBadgerRunStore opens (or creates) a Badger database at path. An empty
// path opens an in-memory database
func NewBadgerRunStore(path string) (*BadgerRunStore, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerRunStore{db: db}, nil
}

func (s *BadgerRunStore) CreateRun(_ context.Context, rec *api.RunRecord) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := runKey(rec.RunID)
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrRunExists, rec.RunID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(indexKey(rec.WorkflowID, rec.RunID), nil)
	})
}

func (s *BadgerRunStore) FinishRun(
	_ context.Context, id api.RunID, res *api.RunResult,
) error {
	return s.db.Update(func(txn *badger.Txn) error {
		rec, err := getBadgerRun(txn, id)
		if err != nil {
			return err
		}
		if err := finishRecord(rec, res); err != nil {
			return err
		}
		data, err := encode(rec)
		if err != nil {
			return err
		}
		return txn.Set(runKey(id), data)
	})
}

func (s *BadgerRunStore) GetRun(
	_ context.Context, id api.RunID,
) (*api.RunRecord, error) {
	var res *api.RunRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		res, err = getBadgerRun(txn, id)
		return err
	})
	return res, err
}

func (s *BadgerRunStore) ListRuns(
	_ context.Context, id api.WorkflowID,
) ([]*api.RunRecord, error) {
	res := []*api.RunRecord{}
	err := s.db.View(func(txn *badger.Txn) error {
		if id == "" {
			return scanBadgerRuns(txn, func(rec *api.RunRecord) {
				res = append(res, rec)
			})
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(badgerIndexPrefix + string(id) + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			runID := api.RunID(it.Item().Key()[len(prefix):])
			rec, err := getBadgerRun(txn, runID)
			if err != nil {
				return err
			}
			res = append(res, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRunsNewestFirst(res)
	return res, nil
}

func (s *BadgerRunStore) Close() error {
	return s.db.Close()
}

func getBadgerRun(txn *badger.Txn, id api.RunID) (*api.RunRecord, error) {
	item, err := txn.Get(runKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return decode[api.RunRecord](data)
}

func scanBadgerRuns(txn *badger.Txn, fn func(*api.RunRecord)) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	prefix := []byte(badgerRunPrefix)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		data, err := it.Item().ValueCopy(nil)
		if err != nil {
			return err
		}
		rec, err := decode[api.RunRecord](data)
		if err != nil {
			return err
		}
		fn(rec)
	}
	return nil
}

func runKey(id api.RunID) []byte {
	return []byte(badgerRunPrefix + string(id))
}

func indexKey(wf api.WorkflowID, id api.RunID) []byte {
	return []byte(badgerIndexPrefix + string(wf) + "/" + string(id))
}
