// Copyright 2026 The Forgecore Authors
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

// Package forgelog is the engine's single logging entry point. Every
// subsystem asks for a component-scoped entry rather than constructing its
// own logger, the way ui/build's Context carries one Logger reused by every
// subsystem in Soong.
package forgelog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	once sync.Once
	base *logrus.Logger
)

func root() *logrus.Logger {
	once.Do(func() {
		base = logrus.New()
		base.SetOutput(os.Stderr)
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	})
	return base
}

// SetLevel adjusts verbosity for the whole process. Called once at startup
// by the CLI front end.
func SetLevel(level logrus.Level) {
	root().SetLevel(level)
}

// For returns a logger scoped to a named component (e.g. "jobqueue",
// "fingerprint"). Callers add further fields (unit_id, pkg, profile) at
// call sites via WithField/WithFields.
func For(component string) *logrus.Entry {
	return root().WithField("component", component)
}

// WithSession tags every subsequent field addition with a build-session id,
// used by buildrunner to correlate a single compile() invocation's log
// lines across aggregators.
func WithSession(entry *logrus.Entry, sessionID string) *logrus.Entry {
	return entry.WithField("session", sessionID)
}
