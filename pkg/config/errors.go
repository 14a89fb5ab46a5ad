// Copyright 2025 Kadir Pekel
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

import "fmt"

// ConfigError reports missing or invalid configuration discovered at startup.
// It is fatal: the CLI maps it to exit code 1.
type ConfigError struct {
	Section string
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config: %s.%s: %s", e.Section, e.Field, e.Message)
	}
	return fmt.Sprintf("config: %s: %s", e.Section, e.Message)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(section, field, message string) *ConfigError {
	return &ConfigError{
		Section: section,
		Field:   field,
		Message: message,
	}
}
