// Copyright 2025 MedBundle Authors
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

package common

import (
	"errors"
	"fmt"
)

// Each failure mode a caller can act on differently gets its own sentinel.
// A corrupt archive, the wrong database and an empty export all look like
// "import failed" to the pipeline but need different user remediation.
var (
	ErrExtractionFailed    = errors.New("archive extraction failed")
	ErrRootNotFound        = errors.New("bundle root not found")
	ErrDatabaseOpen        = errors.New("bundle database cannot be opened")
	ErrMissingPatientTable = errors.New("bundle database has no patients table")
	ErrEmptyPatientTable   = errors.New("bundle database patients table is empty")
	ErrDecryptionFailed    = errors.New("database decryption failed")
	ErrEncryptionInvariant = errors.New("encryption invariant violated")
	ErrActiveMissingDB     = errors.New("active bundle is missing its database")
	ErrImportInProgress    = errors.New("another import is in progress")
	ErrUnknownPending      = errors.New("unknown pending overwrite handle")
	ErrFilesystemOp        = errors.New("filesystem operation failed")
)

// PathRole names what a path means to the lifecycle manager when a
// filesystem operation on it fails.
type PathRole string

const (
	RoleScratch   PathRole = "scratch"
	RoleStaging   PathRole = "staging"
	RoleCanonical PathRole = "canonical"
	RoleArchive   PathRole = "archive"
	RoleActive    PathRole = "active"
)

// FSError is a failed copy/move/remove, carrying the operation and the role
// of the path it touched so the error can say which part of a multi-step
// commit broke.
type FSError struct {
	Op   string // "copy", "move", "remove", "mkdir"
	Role PathRole
	Path string
	Err  error
}

func (e *FSError) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Path, e.Role, e.Err)
}

func (e *FSError) Unwrap() error { return e.Err }

// Is makes every FSError match ErrFilesystemOp under errors.Is.
func (e *FSError) Is(target error) bool { return target == ErrFilesystemOp }

// NewFSError wraps err with operation and path-role context.
func NewFSError(op string, role PathRole, path string, err error) *FSError {
	return &FSError{Op: op, Role: role, Path: path, Err: err}
}
