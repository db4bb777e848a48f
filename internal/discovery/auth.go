// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
package discovery

import "encoding/base64"

func basicAuthToken(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
