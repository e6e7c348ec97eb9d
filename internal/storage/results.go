package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// ResultRecord is one GIA analysis output: a configurations x samples matrix
// of effect sizes with a label per configuration.
type ResultRecord struct {
	Experiment string    `json:"experiment"`
	Analysis   string    `json:"analysis"`
	Timestamp  time.Time `json:"timestamp"`
	Labels     []string  `json:"labels"`
	Rows       int       `json:"rows"`
	Cols       int       `json:"cols"`
	Values     []float64 `json:"values"`
}

// StoreResult stores a result record keyed by experiment and timestamp.
func (s *Store) StoreResult(record ResultRecord) error {
	if record.Rows*record.Cols != len(record.Values) {
		return fmt.Errorf("result %s/%s: %dx%d needs %d values, got %d",
			record.Experiment, record.Analysis, record.Rows, record.Cols, record.Rows*record.Cols, len(record.Values))
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(resultsBucket))

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal result record: %w", err)
		}

		key := fmt.Sprintf("%s_%020d", record.Experiment, record.Timestamp.UnixNano())
		return b.Put([]byte(key), data)
	})
}

// GetResultsInRange returns the results of an experiment recorded within
// [start, end], oldest first.
func (s *Store) GetResultsInRange(experiment string, start, end time.Time) ([]ResultRecord, error) {
	var results []ResultRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(resultsBucket)).Cursor()

		prefix := []byte(experiment + "_")
		startKey := []byte(fmt.Sprintf("%s_%020d", experiment, start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%s_%020d", experiment, end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			if !bytes.HasPrefix(k, prefix) {
				continue
			}
			var record ResultRecord
			if err := json.Unmarshal(v, &record); err != nil {
				continue // Skip malformed records
			}
			results = append(results, record)
		}
		return nil
	})

	return results, err
}
