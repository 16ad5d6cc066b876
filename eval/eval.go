// Package eval measures allocator throughput over a suite of workloads,
// producing observations that are written as JSON lines.
package eval

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mit-pdos/idalloc/internal/logging"
)

var logger = logging.New("eval")

// KeyValue is a generic set of key-value pairs
//
// expect values to be string, float64, bool, or a nested KeyValue
type KeyValue map[string]interface{}

func (kv KeyValue) Validate() error {
	for key, v := range kv {
		switch v := v.(type) {
		case string, float64, bool:
			continue
		case KeyValue:
			if err := v.Validate(); err != nil {
				return errors.Wrapf(err, "in %s", key)
			}
		default:
			return fmt.Errorf("key %v is of type %T and not "+
				"string, float64, or bool", key, v)
		}
	}
	return nil
}

type KeyValuePair struct {
	Key string
	Val interface{}
}

// Pairs returns the key-value pairs in kv, sorted by key
func (kv KeyValue) Pairs() []KeyValuePair {
	var pairs []KeyValuePair
	for key, val := range kv {
		pairs = append(pairs, KeyValuePair{key, val})
	}
	sort.Slice(pairs, func(i int, j int) bool {
		return pairs[i].Key < pairs[j].Key
	})
	return pairs
}

// Delete returns a new KeyValue with key removed
func (kv KeyValue) Delete(key string) KeyValue {
	filtered := kv.Clone()
	delete(filtered, key)
	return filtered
}

// Clone copies kv, including nested KeyValues
func (kv KeyValue) Clone() KeyValue {
	kv2 := make(KeyValue, len(kv))
	for k, v := range kv {
		if nested, ok := v.(KeyValue); ok {
			v = nested.Clone()
		}
		kv2[k] = v
	}
	return kv2
}

// Extend adds the pairs in newKv that kv does not already have
func (kv KeyValue) Extend(newKv KeyValue) {
	for k, v := range newKv {
		if _, ok := kv[k]; !ok {
			kv[k] = v
		}
	}
}

// ExtendPrefixed adds all the pairs in newKv to kv
func (kv KeyValue) ExtendPrefixed(prefix string, newKv KeyValue) {
	for k, v := range newKv {
		kv[prefix+k] = v
	}
}

// Flatten replaces nested KeyValues with dotted keys, so
// {"bench": {"ops": 5}} becomes {"bench.ops": 5}.
func (kv KeyValue) Flatten() KeyValue {
	flat := make(KeyValue, len(kv))
	for k, v := range kv {
		if nested, ok := v.(KeyValue); ok {
			flat.ExtendPrefixed(k+".", nested.Flatten())
			continue
		}
		flat[k] = v
	}
	return flat
}

type Observation struct {
	Values KeyValue `json:"values"`
	Config KeyValue `json:"config"`
}

// Write appends the serialized observation to w
func (o Observation) Write(w io.Writer) error {
	p, err := json.Marshal(o)
	if err != nil {
		return err
	}
	p = append(p, '\n')
	_, err = w.Write(p)
	return err
}

// ReadObservation gets the next observation in r
func ReadObservation(r io.Reader) (o Observation, err error) {
	d := json.NewDecoder(r)
	err = d.Decode(&o)
	return
}

// ReadObservations reads observations until the end of r.
//
// Nested configuration is decoded as map[string]interface{}, not KeyValue.
func ReadObservations(r io.Reader) ([]Observation, error) {
	var obs []Observation
	d := json.NewDecoder(r)
	for {
		var o Observation
		err := d.Decode(&o)
		if err == io.EOF {
			return obs, nil
		}
		if err != nil {
			return obs, errors.Wrapf(err, "observation %d", len(obs))
		}
		obs = append(obs, o)
	}
}

func WriteObservations(w io.Writer, obs []Observation) error {
	for _, o := range obs {
		err := o.Write(w)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteObservationsFile saves observations to a file, gzip-compressed if the
// name ends in .gz.
func WriteObservationsFile(outFile string, obs []Observation) (err error) {
	f, err := os.Create(outFile)
	if err != nil {
		return errors.Wrap(err, "could not create output file")
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	var out io.Writer = f
	if strings.HasSuffix(outFile, ".gz") {
		gz := gzip.NewWriter(f)
		defer func() {
			// runs before f.Close
			err = multierr.Append(err, gz.Close())
		}()
		out = gz
	}
	err = WriteObservations(out, obs)
	if err != nil {
		return errors.Wrap(err, "could not write output")
	}
	logger.Info("wrote observations",
		zap.String("file", outFile), zap.Int("count", len(obs)))
	return nil
}
