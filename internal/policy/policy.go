// Copyright 2025 Oliver Eikemeier. All Rights Reserved.
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
//
// SPDX-License-Identifier: Apache-2.0

// Package policy reads the per-root migration policy.
//
// A module root may carry a .timershift.yaml opting its units out of the
// migration. Roots without a policy file participate with defaults.
package policy

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Strategy values of the migration policy.
const (
	// StrategyActive migrates the root's units.
	StrategyActive = "active"

	// StrategyOff skips the root entirely.
	StrategyOff = "off"
)

// Policy is one root's migration policy.
type Policy struct {
	// Strategy is active or off.
	Strategy string
}

// Active reports whether the root participates in the migration.
func (p Policy) Active() bool { return p.Strategy == StrategyActive }

// ErrInvalidPolicy reports an unusable policy file.
var ErrInvalidPolicy = errors.New("invalid migration policy")

// Load reads the root's policy file. A missing file yields the default
// active policy; an unreadable or invalid file is an error, since silently
// migrating an opted-out root would be worse than aborting.
func Load(rootDir string) (Policy, error) {
	v := viper.New()
	v.SetConfigName(".timershift")
	v.SetConfigType("yaml")
	v.AddConfigPath(rootDir)
	v.SetDefault("strategy", StrategyActive)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return Policy{Strategy: StrategyActive}, nil
		}

		return Policy{}, errors.Wrapf(err, "reading policy for %s", rootDir)
	}

	p := Policy{Strategy: v.GetString("strategy")}

	switch p.Strategy {
	case StrategyActive, StrategyOff:
		return p, nil
	default:
		return Policy{}, errors.Wrapf(ErrInvalidPolicy, "unknown strategy %q in %s", p.Strategy, rootDir)
	}
}
