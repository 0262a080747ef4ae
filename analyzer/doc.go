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

// Package analyzer implements the timershift classification as a static
// analysis pass.
//
// # Overview
//
// The analyzer is the read-only surface of the timershift migration: it
// classifies every file importing the legacy container-managed timer API
// and reports whether the file can be rewritten to the job scheduler
// automatically or needs manual migration, together with the reasons.
//
// # Example
//
// A file declaring one timeout callback whose timer usage stays within the
// supported shapes is reported as:
//
//	timeout callback Poller.onTimeout can be migrated to the job scheduler automatically
//
// A file enumerating active timers at runtime is reported as:
//
//	timer usage requires manual migration: dynamic enumeration of timers implies runtime-managed state
//
// The analyzer never edits source; rewriting is done by the timershift
// command.
package analyzer
