// Copyright 2026 AeroSync Project Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
)

// CloneConf deeply clones this config.
func CloneConf(conf *Config) (*Config, error) {
	content, err := json.Marshal(conf)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var clonedConf Config
	if err := json.Unmarshal(content, &clonedConf); err != nil {
		return nil, errors.Trace(err)
	}
	return &clonedConf, nil
}

// dynamicConfigItems contains all config items that can be changed at
// runtime, the sysctl-style tunables. Structural options such as the CPU
// count, the topology and the RCU fanout are fixed at construction.
var dynamicConfigItems = map[string]struct{}{
	"Scheduler.LatencyNs":            {},
	"Scheduler.MinGranularityNs":     {},
	"Scheduler.WakeupGranularityNs":  {},
	"Scheduler.RRTimesliceTicks":     {},
	"Scheduler.BalanceIntervalTicks": {},
	"Scheduler.MigrationBatch":       {},
	"Scheduler.BalanceScanLimit":     {},
	"Scheduler.PIChainDepth":         {},
	"RCU.StallTicks":                 {},
	"Log.Level":                      {},
}

// MergeConfigItems overwrites the dynamic config items and leaves the
// other items unchanged, reporting both sets by field path.
func MergeConfigItems(dstConf, newConf *Config) (acceptedItems, rejectedItems []string) {
	return mergeConfigItems(reflect.ValueOf(dstConf), reflect.ValueOf(newConf), "")
}

func mergeConfigItems(dstConf, newConf reflect.Value, fieldPath string) (acceptedItems, rejectedItems []string) {
	t := dstConf.Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
		dstConf = dstConf.Elem()
		newConf = newConf.Elem()
	}
	if t.Kind() != reflect.Struct {
		if reflect.DeepEqual(dstConf.Interface(), newConf.Interface()) {
			return
		}
		if _, ok := dynamicConfigItems[fieldPath]; ok {
			dstConf.Set(newConf)
			return []string{fieldPath}, nil
		}
		return nil, []string{fieldPath}
	}

	for i := 0; i < t.NumField(); i++ {
		fieldName := t.Field(i).Name
		if fieldPath != "" {
			fieldName = fieldPath + "." + fieldName
		}
		as, rs := mergeConfigItems(dstConf.Field(i), newConf.Field(i), fieldName)
		acceptedItems = append(acceptedItems, as...)
		rejectedItems = append(rejectedItems, rs...)
	}
	return
}

func encodeConfig(c *Config) (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return "", errors.Trace(err)
	}
	return buf.String(), nil
}

func atomicWriteConfig(c *Config, confPath string) (err error) {
	content, err := encodeConfig(c)
	if err != nil {
		return err
	}
	tmpConfPath := filepath.Join(os.TempDir(), fmt.Sprintf("tmp_conf_%v.toml", time.Now().Format("20060102150405")))
	if err := os.WriteFile(tmpConfPath, []byte(content), 0o666); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(os.Rename(tmpConfPath, confPath))
}

// RewriteConfig persists the config to confPath with an atomic replace.
func RewriteConfig(c *Config, confPath string) error {
	return atomicWriteConfig(c, confPath)
}
