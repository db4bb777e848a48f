// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package obs provides the structured logger shared by every control
// plane subsystem.
package obs

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	DEBUG Level = "DEBUG"
	INFO  Level = "INFO"
	WARN  Level = "WARN"
	ERROR Level = "ERROR"
)

// Logger provides structured JSON logging tagged with the owning
// subsystem (policy, kernel, auth, operator, network, discovery,
// memory, dispatcher, api, ...).
type Logger struct {
	Component  string
	InstanceID string
	Container  string
}

// Entry is a single structured log record.
type Entry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      Level                  `json:"level"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id"`
	Container  string                 `json:"container"`
	ActorID    string                 `json:"actor_id,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// New creates a Logger for the given component.
func New(component string) *Logger {
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
	}
}

// Log writes a structured entry to stdout.
func (l *Logger) Log(level Level, actorID, requestID, message string, fields map[string]interface{}) {
	entry := Entry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		Container:  l.Container,
		ActorID:    actorID,
		RequestID:  requestID,
		Message:    message,
		Fields:     fields,
	}

	b, err := json.Marshal(entry)
	if err != nil {
		log.Printf("ERROR: failed to marshal log entry: %v", err)
		return
	}

	log.Println(string(b))
}

func (l *Logger) Info(actorID, requestID, message string, fields map[string]interface{}) {
	l.Log(INFO, actorID, requestID, message, fields)
}

func (l *Logger) Error(actorID, requestID, message string, fields map[string]interface{}) {
	l.Log(ERROR, actorID, requestID, message, fields)
}

func (l *Logger) Warn(actorID, requestID, message string, fields map[string]interface{}) {
	l.Log(WARN, actorID, requestID, message, fields)
}

func (l *Logger) Debug(actorID, requestID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, actorID, requestID, message, fields)
}

// InfoWithDuration is a convenience for latency-bearing info logs.
func (l *Logger) InfoWithDuration(actorID, requestID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(actorID, requestID, message, fields)
}

// ErrorWithCode is a convenience for HTTP-status-bearing error logs.
func (l *Logger) ErrorWithCode(actorID, requestID, message string, statusCode int, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["status_code"] = statusCode
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(actorID, requestID, message, fields)
}
