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

package a

import "enterprise.example/container/timer"

type Poller struct {
	timers timer.Service
}

func NewPoller(svc timer.Service) *Poller {
	return &Poller{timers: svc}
}

func (p *Poller) refresh() {
	p.timers.CreateSingleActionTimer(5000, timer.NewConfig("refresh", false))
}

//timer:timeout
func (p *Poller) onTimeout(t *timer.Timer) { // want `timeout callback Poller\.onTimeout can be migrated to the job scheduler automatically`
	process(t.Payload())
}

func process(v any) {}
