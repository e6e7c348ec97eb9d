// Package storage provides the on-disk dataset container.
//
// A container is a single BoltDB file. Every named array lives in its own
// sub-bucket of the "arrays" bucket and holds a small JSON header (shape and
// dtype) next to a zstd-compressed little-endian payload. GIA results are kept
// in a separate bucket keyed by experiment and time so that runs can be
// queried by range.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.etcd.io/bbolt"

	"residualbind/internal/dataset"
	"residualbind/internal/tensor"
)

const (
	arraysBucket  = "arrays"  // Bucket holding one sub-bucket per array
	resultsBucket = "results" // Bucket holding GIA result records

	headerKey = "header"
	dataKey   = "data"

	dtypeFloat32 = "float32"
	dtypeString  = "string"
)

// Array names used for a partitioned dataset.
const (
	KeyXTrain     = "X_train"
	KeyYTrain     = "Y_train"
	KeyXValid     = "X_valid"
	KeyYValid     = "Y_valid"
	KeyXTest      = "X_test"
	KeyYTest      = "Y_test"
	KeyExperiment = "experiment"
)

// ErrNotFound is returned when a named array is not in the container.
var ErrNotFound = errors.New("array not found")

type header struct {
	Shape []int  `json:"shape"`
	DType string `json:"dtype"`
}

// Store is an open dataset container.
type Store struct {
	db  *bbolt.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New opens or creates the container at path, creating parent directories
// as needed.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create container dir: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(arraysBucket)); err != nil {
			return fmt.Errorf("create arrays bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(resultsBucket)); err != nil {
			return fmt.Errorf("create results bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Store{db: db, enc: enc, dec: dec}, nil
}

// Close releases the database and the codecs. Closing twice is a no-op.
func (s *Store) Close() error {
	if s.dec != nil {
		s.dec.Close()
		s.dec = nil
	}
	if s.enc != nil {
		s.enc.Close()
		s.enc = nil
	}
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func (s *Store) put(name string, h header, raw []byte) error {
	hdr, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	payload := []byte{}
	if len(raw) > 0 {
		payload = s.enc.EncodeAll(raw, make([]byte, 0, len(raw)/4))
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		arrays := tx.Bucket([]byte(arraysBucket))
		if arrays.Bucket([]byte(name)) != nil {
			if err := arrays.DeleteBucket([]byte(name)); err != nil {
				return fmt.Errorf("replace %s: %w", name, err)
			}
		}
		b, err := arrays.CreateBucket([]byte(name))
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		if err := b.Put([]byte(headerKey), hdr); err != nil {
			return err
		}
		return b.Put([]byte(dataKey), payload)
	})
}

func (s *Store) get(name string) (header, []byte, error) {
	var h header
	var payload []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(arraysBucket)).Bucket([]byte(name))
		if b == nil {
			return fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		if err := json.Unmarshal(b.Get([]byte(headerKey)), &h); err != nil {
			return fmt.Errorf("unmarshal %s header: %w", name, err)
		}
		// bbolt values are only valid inside the transaction
		payload = append([]byte(nil), b.Get([]byte(dataKey))...)
		return nil
	})
	if err != nil {
		return h, nil, err
	}

	if len(payload) == 0 {
		return h, nil, nil
	}
	raw, err := s.dec.DecodeAll(payload, nil)
	if err != nil {
		return h, nil, fmt.Errorf("decompress %s: %w", name, err)
	}
	return h, raw, nil
}

// PutArray stores a float32 array under name, replacing any previous value.
func (s *Store) PutArray(name string, shape []int, data []float32) error {
	size := 1
	for _, d := range shape {
		size *= d
	}
	if size != len(data) {
		return fmt.Errorf("%s: shape %v needs %d values, got %d", name, shape, size, len(data))
	}

	raw := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	return s.put(name, header{Shape: shape, DType: dtypeFloat32}, raw)
}

// GetArray returns the shape and values of a float32 array.
func (s *Store) GetArray(name string) ([]int, []float32, error) {
	h, raw, err := s.get(name)
	if err != nil {
		return nil, nil, err
	}
	if h.DType != dtypeFloat32 {
		return nil, nil, fmt.Errorf("%s has dtype %s, want %s", name, h.DType, dtypeFloat32)
	}
	if len(raw)%4 != 0 {
		return nil, nil, fmt.Errorf("%s payload is %d bytes, not a float32 multiple", name, len(raw))
	}

	data := make([]float32, len(raw)/4)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return h.Shape, data, nil
}

// PutStrings stores a string list under name.
func (s *Store) PutStrings(name string, values []string) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return s.put(name, header{Shape: []int{len(values)}, DType: dtypeString}, raw)
}

// GetStrings returns a string list stored with PutStrings.
func (s *Store) GetStrings(name string) ([]string, error) {
	h, raw, err := s.get(name)
	if err != nil {
		return nil, err
	}
	if h.DType != dtypeString {
		return nil, fmt.Errorf("%s has dtype %s, want %s", name, h.DType, dtypeString)
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return values, nil
}

// Arrays lists the stored array names in sorted order.
func (s *Store) Arrays() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(arraysBucket)).ForEach(func(k, v []byte) error {
			if v == nil {
				names = append(names, string(k))
			}
			return nil
		})
	})
	sort.Strings(names)
	return names, err
}

func (s *Store) putTensor(name string, t *tensor.Tensor) error {
	return s.PutArray(name, t.Shape[:], t.Data)
}

func (s *Store) getTensor(name string) (*tensor.Tensor, error) {
	shape, data, err := s.GetArray(name)
	if err != nil {
		return nil, err
	}
	if len(shape) != 3 {
		return nil, fmt.Errorf("%s has rank %d, want 3", name, len(shape))
	}
	return tensor.FromData([3]int{shape[0], shape[1], shape[2]}, data)
}

func (s *Store) putMatrix(name string, m *tensor.Matrix) error {
	return s.PutArray(name, []int{m.Rows, m.Cols}, m.Data)
}

func (s *Store) getMatrix(name string) (*tensor.Matrix, error) {
	shape, data, err := s.GetArray(name)
	if err != nil {
		return nil, err
	}
	if len(shape) != 2 {
		return nil, fmt.Errorf("%s has rank %d, want 2", name, len(shape))
	}
	return &tensor.Matrix{Rows: shape[0], Cols: shape[1], Data: data}, nil
}

// SaveDataset writes every partition and the experiment names.
func (s *Store) SaveDataset(d *dataset.Dataset) error {
	tensors := []struct {
		name string
		t    *tensor.Tensor
	}{
		{KeyXTrain, d.XTrain}, {KeyXValid, d.XValid}, {KeyXTest, d.XTest},
	}
	for _, e := range tensors {
		if err := s.putTensor(e.name, e.t); err != nil {
			return err
		}
	}

	matrices := []struct {
		name string
		m    *tensor.Matrix
	}{
		{KeyYTrain, d.YTrain}, {KeyYValid, d.YValid}, {KeyYTest, d.YTest},
	}
	for _, e := range matrices {
		if err := s.putMatrix(e.name, e.m); err != nil {
			return err
		}
	}
	return s.PutStrings(KeyExperiment, d.Experiments)
}

// LoadDataset reads back a dataset written by SaveDataset.
func (s *Store) LoadDataset() (*dataset.Dataset, error) {
	d := &dataset.Dataset{}
	var err error

	for name, dst := range map[string]**tensor.Tensor{
		KeyXTrain: &d.XTrain, KeyXValid: &d.XValid, KeyXTest: &d.XTest,
	} {
		if *dst, err = s.getTensor(name); err != nil {
			return nil, err
		}
	}
	for name, dst := range map[string]**tensor.Matrix{
		KeyYTrain: &d.YTrain, KeyYValid: &d.YValid, KeyYTest: &d.YTest,
	} {
		if *dst, err = s.getMatrix(name); err != nil {
			return nil, err
		}
	}
	if d.Experiments, err = s.GetStrings(KeyExperiment); err != nil {
		return nil, err
	}
	return d, nil
}
