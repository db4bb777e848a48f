// Copyright 2025 AxonFlow
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

/*
Package policy implements the per-key access control document and its
deterministic evaluation algorithm.

# Overview

A Policy binds a set of typed Permissions, resource allow/deny lists and
restrictions (ip, validity window) to a policy_id. Evaluation never
performs I/O: given a Policy snapshot and a request, the result is a
pure function of the two.

# Evaluation order

	1. missing or inactive policy -> deny
	2. restrictions (time window, ip lists) -> deny on first violation
	3. endpoint/operator allow+deny lists (deny takes precedence)
	4. maximum permission level across matching Permissions vs required level

# Defaults

pol_master, pol_admin, pol_user and pol_readonly are created at startup
and are reserved ids.
*/
package policy
